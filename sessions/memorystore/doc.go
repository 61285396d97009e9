// Package memorystore provides a volatile sessions.Store. State lives in the
// process and is lost on exit; use it for tests and short-lived tools.
//
// Example:
//
//	store := memorystore.New(accountAddress)
//	defer store.Close()
package memorystore
