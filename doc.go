// Package biconomy grants, uses and revokes session keys on a smart account.
//
// A Client ties together the account's session store, the session key
// manager module and its Merkle ledger, the batched session router and,
// optionally, the distributed account network that holds threshold session
// keys. Sessions are created with CreateSession or
// CreateSessionWithDistributedKey, used with SendSessionTransaction, and
// revoked with RevokeSessions.
//
// Mutations of one account's sessions are serialized in-process. Processes
// sharing a store should run Watch so their ledgers follow each other's
// writes.
package biconomy
