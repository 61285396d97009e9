// Package filestore persists each account's session document as a JSON file
// named "<account>_sessions.json" under a directory, by default
// ~/.biconomy/sessions.
//
// Writes go to a temporary file that is renamed over the document, so readers
// never observe a partial document. Concurrent writers in one process are
// serialized; writers in different processes are not, and the last rename
// wins. The directory is watched with fsnotify so that edits made by other
// processes surface through Store.Changes.
package filestore
