// Package modules implements the session validation modules a smart account
// delegates user operation signing to.
//
// Three variants share one Merkle ledger per account:
//
//   - SessionKeyManager signs with a locally held session key.
//   - BatchedSessionRouter authorizes a batch of calls, each under its own
//     session leaf, with a single session key signature.
//   - DANSessionKeyManager signs through a threshold network so that no single
//     party ever holds the session key.
//
// Every variant returns signatures already wrapped as abi.encode(bytes
// signature, address module), the shape the account's validateUserOp expects.
package modules
