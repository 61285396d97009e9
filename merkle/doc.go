// Package merkle builds the Merkle tree whose root the session key manager
// module stores on chain.
//
// Leaves are used as given (they are already keccak-256 leaf hashes). Each
// parent is keccak256(min(a, b) || max(a, b)), so proofs need no direction
// bits. When a layer has an odd number of nodes the last node is promoted to
// the next layer unchanged. The root of an empty tree is the zero hash and the
// root of a one-leaf tree is the leaf itself.
package merkle
