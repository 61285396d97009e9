package permission

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// RawReference is a hardcoded reference word. It must be exactly 32 bytes and
// is used verbatim.
type RawReference []byte

// ParseReferenceValue coerces a rule reference value into the 32-byte word the
// validation module compares calldata against. Integers are big-endian and
// left-padded; byte strings shorter than 32 bytes are left-padded.
func ParseReferenceValue(v any) ([32]byte, error) {
	var word [32]byte
	switch x := v.(type) {
	case nil:
		return word, encodingErr("referenceValue", "missing")
	case RawReference:
		if len(x) != 32 {
			return word, encodingErr("referenceValue", fmt.Sprintf("raw reference must be 32 bytes, got %d", len(x)))
		}
		copy(word[:], x)
	case [32]byte:
		word = x
	case common.Hash:
		word = x
	case common.Address:
		copy(word[12:], x.Bytes())
	case *common.Address:
		if x == nil {
			return word, encodingErr("referenceValue", "nil address")
		}
		copy(word[12:], x.Bytes())
	case *uint256.Int:
		if x == nil {
			return word, encodingErr("referenceValue", "nil integer")
		}
		word = x.Bytes32()
	case *big.Int:
		return bigWord(x)
	case json.Number:
		b, ok := new(big.Int).SetString(x.String(), 10)
		if !ok {
			return word, encodingErr("referenceValue", "not an integer: "+x.String())
		}
		return bigWord(b)
	case bool:
		if x {
			word[31] = 1
		}
	case uint8:
		return uint256.NewInt(uint64(x)).Bytes32(), nil
	case uint16:
		return uint256.NewInt(uint64(x)).Bytes32(), nil
	case uint32:
		return uint256.NewInt(uint64(x)).Bytes32(), nil
	case uint64:
		return uint256.NewInt(x).Bytes32(), nil
	case uint:
		return uint256.NewInt(uint64(x)).Bytes32(), nil
	case int:
		return intWord(int64(x))
	case int32:
		return intWord(int64(x))
	case int64:
		return intWord(x)
	case []byte:
		return bytesWord(x)
	case hexutil.Bytes:
		return bytesWord(x)
	case string:
		return stringWord(x)
	default:
		return word, encodingErr("referenceValue", fmt.Sprintf("unsupported type %T", v))
	}
	return word, nil
}

func bigWord(b *big.Int) ([32]byte, error) {
	var word [32]byte
	if b == nil {
		return word, encodingErr("referenceValue", "nil integer")
	}
	if b.Sign() < 0 {
		return word, encodingErr("referenceValue", "negative integer")
	}
	u, overflow := uint256.FromBig(b)
	if overflow {
		return word, encodingErr("referenceValue", "integer exceeds 32 bytes")
	}
	return u.Bytes32(), nil
}

func intWord(i int64) ([32]byte, error) {
	if i < 0 {
		return [32]byte{}, encodingErr("referenceValue", "negative integer")
	}
	return uint256.NewInt(uint64(i)).Bytes32(), nil
}

func bytesWord(b []byte) ([32]byte, error) {
	var word [32]byte
	if len(b) > 32 {
		return word, encodingErr("referenceValue", fmt.Sprintf("%d bytes exceed 32", len(b)))
	}
	copy(word[32-len(b):], b)
	return word, nil
}

func stringWord(s string) ([32]byte, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if !isHex(s[2:]) {
			return [32]byte{}, encodingErr("referenceValue", "malformed hex string")
		}
		return bytesWord(common.FromHex(s))
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return [32]byte{}, encodingErr("referenceValue", "string is neither hex nor decimal")
	}
	return bigWord(b)
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
