package account

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultEntryPoint is the ERC-4337 v0.6 entry point.
var DefaultEntryPoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")

// EntryPointVersion is the version string of DefaultEntryPoint.
const EntryPointVersion = "v0.6.0"

// UserOperation is an ERC-4337 v0.6 user operation.
type UserOperation struct {
	Sender               common.Address
	Nonce                *big.Int
	InitCode             []byte
	CallData             []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	PaymasterAndData     []byte
	Signature            []byte
}

// Copy returns a deep copy of op.
func (op *UserOperation) Copy() *UserOperation {
	cp := &UserOperation{
		Sender:               op.Sender,
		Nonce:                copyBig(op.Nonce),
		InitCode:             common.CopyBytes(op.InitCode),
		CallData:             common.CopyBytes(op.CallData),
		CallGasLimit:         copyBig(op.CallGasLimit),
		VerificationGasLimit: copyBig(op.VerificationGasLimit),
		PreVerificationGas:   copyBig(op.PreVerificationGas),
		MaxFeePerGas:         copyBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: copyBig(op.MaxPriorityFeePerGas),
		PaymasterAndData:     common.CopyBytes(op.PaymasterAndData),
		Signature:            common.CopyBytes(op.Signature),
	}
	return cp
}

type rpcUserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

// MarshalJSON encodes op in the bundler JSON-RPC form: hex quantities and
// 0x-prefixed byte strings.
func (op UserOperation) MarshalJSON() ([]byte, error) {
	return json.Marshal(rpcUserOperation{
		Sender:               op.Sender,
		Nonce:                (*hexutil.Big)(orZero(op.Nonce)),
		InitCode:             nonNil(op.InitCode),
		CallData:             nonNil(op.CallData),
		CallGasLimit:         (*hexutil.Big)(orZero(op.CallGasLimit)),
		VerificationGasLimit: (*hexutil.Big)(orZero(op.VerificationGasLimit)),
		PreVerificationGas:   (*hexutil.Big)(orZero(op.PreVerificationGas)),
		MaxFeePerGas:         (*hexutil.Big)(orZero(op.MaxFeePerGas)),
		MaxPriorityFeePerGas: (*hexutil.Big)(orZero(op.MaxPriorityFeePerGas)),
		PaymasterAndData:     nonNil(op.PaymasterAndData),
		Signature:            nonNil(op.Signature),
	})
}

func (op *UserOperation) UnmarshalJSON(b []byte) error {
	var r rpcUserOperation
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	*op = UserOperation{
		Sender:               r.Sender,
		Nonce:                (*big.Int)(r.Nonce),
		InitCode:             r.InitCode,
		CallData:             r.CallData,
		CallGasLimit:         (*big.Int)(r.CallGasLimit),
		VerificationGasLimit: (*big.Int)(r.VerificationGasLimit),
		PreVerificationGas:   (*big.Int)(r.PreVerificationGas),
		MaxFeePerGas:         (*big.Int)(r.MaxFeePerGas),
		MaxPriorityFeePerGas: (*big.Int)(r.MaxPriorityFeePerGas),
		PaymasterAndData:     r.PaymasterAndData,
		Signature:            r.Signature,
	}
	return nil
}

var packedUserOpArgs = mustArgs(
	"address", "uint256", "bytes32", "bytes32",
	"uint256", "uint256", "uint256", "uint256", "uint256",
	"bytes32",
)

var userOpHashArgs = mustArgs("bytes32", "address", "uint256")

// UserOpHash is the hash the entry point asks the account to validate:
// keccak256(abi.encode(keccak256(pack(op)), entryPoint, chainId)). The
// signature field is not covered.
func UserOpHash(op *UserOperation, entryPoint common.Address, chainID uint64) (common.Hash, error) {
	packed, err := packedUserOpArgs.Pack(
		op.Sender,
		orZero(op.Nonce),
		crypto.Keccak256Hash(op.InitCode),
		crypto.Keccak256Hash(op.CallData),
		orZero(op.CallGasLimit),
		orZero(op.VerificationGasLimit),
		orZero(op.PreVerificationGas),
		orZero(op.MaxFeePerGas),
		orZero(op.MaxPriorityFeePerGas),
		crypto.Keccak256Hash(op.PaymasterAndData),
	)
	if err != nil {
		return common.Hash{}, err
	}
	enc, err := userOpHashArgs.Pack(crypto.Keccak256Hash(packed), entryPoint, new(big.Int).SetUint64(chainID))
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

func mustArgs(types ...string) abi.Arguments {
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

func orZero(b *big.Int) *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return b
}

func copyBig(b *big.Int) *big.Int {
	if b == nil {
		return nil
	}
	return new(big.Int).Set(b)
}

func nonNil(b []byte) hexutil.Bytes {
	if b == nil {
		return hexutil.Bytes{}
	}
	return b
}
