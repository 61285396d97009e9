// Package dan is the client of the distributed account network: a set of
// parties that jointly hold a secp256k1 session key and sign with it only when
// a threshold of them agree.
//
// Key generation is authorized once by the smart account owner, who signs
// EIP-712 typed data naming an ephemeral Ed25519 key. Every later signing
// request is authenticated by a short-lived EdDSA JWT minted with that
// ephemeral key, so no owner interaction is needed after setup.
//
// Requests are plain HTTP/JSON and are never retried. Cancelling the context
// stops waiting for the network; a ceremony already started remotely is not
// aborted.
package dan
