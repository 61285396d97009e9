package permission

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultERC20SessionValidationModule only permits ERC20 transfers of one token
// to one recipient.
var DefaultERC20SessionValidationModule = common.HexToAddress("0x000000D50C68705bd6897B2d17c7de32FB519fDA")

// ERC20SessionKey is the session key data understood by the ERC20 session
// validation module.
type ERC20SessionKey struct {
	SessionKey common.Address
	Token      common.Address
	Recipient  common.Address
	MaxAmount  *big.Int
}

var erc20SessionArgs = mustArguments("address", "address", "address", "uint256")

// EncodeERC20SessionKeyData returns
// abi.encode(sessionKey, token, recipient, maxAmount).
func EncodeERC20SessionKeyData(k ERC20SessionKey) ([]byte, error) {
	amount := k.MaxAmount
	if amount == nil {
		amount = new(big.Int)
	}
	if amount.Sign() < 0 {
		return nil, encodingErr("maxAmount", "negative")
	}
	if amount.BitLen() > 256 {
		return nil, encodingErr("maxAmount", "exceeds uint256")
	}
	out, err := erc20SessionArgs.Pack(k.SessionKey, k.Token, k.Recipient, amount)
	if err != nil {
		return nil, &EncodingError{Field: "erc20SessionKey", Reason: "abi pack failed", Err: err}
	}
	return out, nil
}

// NewERC20SessionDatum compiles an ERC20 session key for the ERC20 validation module.
func NewERC20SessionDatum(k ERC20SessionKey, iv Interval) (Datum, error) {
	if iv.ValidUntil > MaxUint48 || iv.ValidAfter > MaxUint48 {
		return Datum{}, encodingErr("interval", "exceeds uint48")
	}
	data, err := EncodeERC20SessionKeyData(k)
	if err != nil {
		return Datum{}, err
	}
	return Datum{
		ValidUntil:              iv.ValidUntil,
		ValidAfter:              iv.ValidAfter,
		SessionValidationModule: DefaultERC20SessionValidationModule,
		SessionPublicKey:        k.SessionKey,
		SessionKeyData:          data,
	}, nil
}

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}
