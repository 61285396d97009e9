// Package account describes the smart-account collaborators the session SDK
// drives but does not implement: the account itself, the bundler and the
// paymaster. It also holds the ERC-4337 v0.6 user operation type and the call
// data codecs the session flows need.
package account
