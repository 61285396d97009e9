package permission

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MaxUint48 is the largest timestamp that fits the 6-byte on-chain fields.
const MaxUint48 = 1<<48 - 1

// Leaf carries the fields that are committed into a Merkle leaf. Status,
// session IDs and signer material are deliberately absent: they never affect
// the hash.
type Leaf struct {
	ValidUntil              uint64
	ValidAfter              uint64
	SessionValidationModule common.Address
	SessionKeyData          []byte
}

// EncodeLeafPreimage returns
// bytes6(validUntil) || bytes6(validAfter) || bytes20(module) || sessionKeyData.
func EncodeLeafPreimage(l Leaf) ([]byte, error) {
	if l.ValidUntil > MaxUint48 {
		return nil, encodingErr("validUntil", "exceeds uint48")
	}
	if l.ValidAfter > MaxUint48 {
		return nil, encodingErr("validAfter", "exceeds uint48")
	}
	out := make([]byte, 0, 6+6+common.AddressLength+len(l.SessionKeyData))
	out = appendUint48(out, l.ValidUntil)
	out = appendUint48(out, l.ValidAfter)
	out = append(out, l.SessionValidationModule.Bytes()...)
	out = append(out, l.SessionKeyData...)
	return out, nil
}

// LeafHash is keccak256(EncodeLeafPreimage(l)).
func LeafHash(l Leaf) (common.Hash, error) {
	pre, err := EncodeLeafPreimage(l)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(pre), nil
}

func appendUint48(dst []byte, v uint64) []byte {
	return append(dst,
		byte(v>>40),
		byte(v>>32),
		byte(v>>24),
		byte(v>>16),
		byte(v>>8),
		byte(v),
	)
}
