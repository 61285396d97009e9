// Package sessions defines the persistence contract for session-key leaves of
// one smart account: the leaf records, the published Merkle root and the
// locally held session signers.
//
// A Store is backed by a Backend that persists a single Document per account.
// Backends only provide atomic read-modify-write of that document and a change
// feed; every search, status and revocation rule lives in this package so all
// backends behave identically. Four backends are provided:
//
//   - memorystore: volatile, for tests and short-lived processes
//   - filestore: one JSON file per account, watched for edits by other processes
//   - redisstore: shared between processes, optimistic WATCH/MULTI updates
//   - badgerstore: embedded durable key/value store
//
// The storetest package holds the conformance suite every backend runs.
//
// Revocation never removes a record. RevokeSessions marks the live record
// REVOKED and appends a tombstone record carrying the same permission content,
// so the set of leaf hashes only grows. Tombstones are invisible to
// GetSessionData and visible to GetAllSessionData.
package sessions
