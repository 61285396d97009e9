// Package permission converts session permissions into the byte layouts that
// the on-chain session key manager and its session validation modules decode.
//
// Nothing in this package holds state. The two layouts that matter are:
//
//	leaf preimage  : bytes6(validUntil) || bytes6(validAfter) || bytes20(module) || sessionKeyData
//	ABI SVM datum  : sessionKey || contract || selector || uint128(valueLimit) || uint16(n) || rules...
//
// Every rule is packed as uint16(byte offset) || uint8(condition) || bytes32(reference).
// A Policy is the high-level declaration a dapp hands to the account owner; it
// compiles deterministically into a Datum whose SessionKeyData is the ABI SVM
// layout above.
//
// Example:
//
//	datum, err := permission.NewABISessionDatum(permission.Policy{
//		ContractAddress:   nft,
//		SessionKeyAddress: sessionKey,
//		FunctionSelector:  "safeMint(address)",
//		Rules: []permission.Rule{
//			{Offset: 0, Condition: permission.Equal, ReferenceValue: account},
//		},
//	})
//	hash, err := permission.LeafHash(datum.Leaf())
package permission
