package modules

import (
	"fmt"
	"math/big"

	"github.com/blockchain-hcj/biconomy-client-sdk/sessions"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// MockSessionKeySignature has the length and shape of a real session key
// signature and is used in dummy signatures.
var MockSessionKeySignature = hexutil.MustDecode("0x73c3ac716c487ca34bb858247b5ccf1dc354fbaabdd089af3b2ac8e78ba85a4959a2d76250325bd67c11771c31fccda87c33ceec17cc0de912690521bb95ffcb1b")

var (
	sessionEnvelopeArgs = mustArgs("uint48", "uint48", "address", "bytes", "bytes32[]", "bytes")
	wrapArgs            = mustArgs("bytes", "address")

	sessionDataTupleType = mustType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "validUntil", Type: "uint48"},
		{Name: "validAfter", Type: "uint48"},
		{Name: "sessionValidationModule", Type: "address"},
		{Name: "sessionKeyData", Type: "bytes"},
		{Name: "merkleProof", Type: "bytes32[]"},
		{Name: "callSpecificData", Type: "bytes"},
	})
	routerEnvelopeArgs = abi.Arguments{
		{Type: mustType("address", nil)},
		{Type: sessionDataTupleType},
		{Type: mustType("bytes", nil)},
	}
)

// sessionDataTuple mirrors one element of the router's session data array.
type sessionDataTuple struct {
	ValidUntil              *big.Int
	ValidAfter              *big.Int
	SessionValidationModule common.Address
	SessionKeyData          []byte
	MerkleProof             [][32]byte
	CallSpecificData        []byte
}

// encodeSessionEnvelope returns
// abi.encode(uint48 validUntil, uint48 validAfter, address module, bytes
// sessionKeyData, bytes32[] proof, bytes signature) || additional.
func encodeSessionEnvelope(r sessions.Record, proof []common.Hash, sig, additional []byte) ([]byte, error) {
	out, err := sessionEnvelopeArgs.Pack(
		new(big.Int).SetUint64(r.ValidUntil),
		new(big.Int).SetUint64(r.ValidAfter),
		r.SessionValidationModule,
		[]byte(r.SessionKeyData),
		words(proof),
		sig,
	)
	if err != nil {
		return nil, fmt.Errorf("modules: encode session envelope: %w", err)
	}
	return append(out, additional...), nil
}

func newSessionDataTuple(r sessions.Record, proof []common.Hash, callData []byte) sessionDataTuple {
	if callData == nil {
		callData = []byte{}
	}
	return sessionDataTuple{
		ValidUntil:              new(big.Int).SetUint64(r.ValidUntil),
		ValidAfter:              new(big.Int).SetUint64(r.ValidAfter),
		SessionValidationModule: r.SessionValidationModule,
		SessionKeyData:          []byte(r.SessionKeyData),
		MerkleProof:             words(proof),
		CallSpecificData:        callData,
	}
}

func encodeRouterEnvelope(sessionKeyManager common.Address, entries []sessionDataTuple, sig []byte) ([]byte, error) {
	out, err := routerEnvelopeArgs.Pack(sessionKeyManager, entries, sig)
	if err != nil {
		return nil, fmt.Errorf("modules: encode router envelope: %w", err)
	}
	return out, nil
}

// Wrap returns abi.encode(bytes sig, address module).
func Wrap(sig []byte, module common.Address) ([]byte, error) {
	out, err := wrapArgs.Pack(sig, module)
	if err != nil {
		return nil, fmt.Errorf("modules: wrap signature: %w", err)
	}
	return out, nil
}

// Unwrap splits a wrapped signature into the module signature and address.
func Unwrap(wrapped []byte) ([]byte, common.Address, error) {
	vals, err := wrapArgs.Unpack(wrapped)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("modules: unwrap signature: %w", err)
	}
	sig, ok1 := vals[0].([]byte)
	addr, ok2 := vals[1].(common.Address)
	if !ok1 || !ok2 {
		return nil, common.Address{}, fmt.Errorf("modules: unwrap signature: unexpected types %T, %T", vals[0], vals[1])
	}
	return sig, addr, nil
}

func words(hs []common.Hash) [][32]byte {
	out := make([][32]byte, len(hs))
	for i, h := range hs {
		out[i] = h
	}
	return out
}

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(err)
	}
	return typ
}

func mustArgs(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		args = append(args, abi.Argument{Type: mustType(t, nil)})
	}
	return args
}
