package modules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/blockchain-hcj/biconomy-client-sdk/account"
	"github.com/blockchain-hcj/biconomy-client-sdk/internal/logctx"
	"github.com/blockchain-hcj/biconomy-client-sdk/sessions"
	"github.com/ethereum/go-ethereum/common"
)

// ErrMissingChain is returned when a distributed signature is requested
// without naming the target chain.
var ErrMissingChain = errors.New("modules: target chain not provided")

// ThresholdSigner signs a message with a distributed session key.
type ThresholdSigner interface {
	SignMessage(ctx context.Context, info sessions.DanModuleInfo, message []byte) ([]byte, error)
}

// DANSessionKeyManager is the session key manager for sessions whose key is
// held by a threshold network. It shares the leaves, ledger and module
// address of the wrapped SessionKeyManager.
type DANSessionKeyManager struct {
	skm    *SessionKeyManager
	signer ThresholdSigner
	log    *slog.Logger
}

func NewDANSessionKeyManager(skm *SessionKeyManager, signer ThresholdSigner, opts ...Option) (*DANSessionKeyManager, error) {
	if skm == nil {
		return nil, &ConfigError{Field: "sessionKeyManager", Reason: "required"}
	}
	if signer == nil {
		return nil, &ConfigError{Field: "thresholdSigner", Reason: "required"}
	}
	o := applyOptions(opts)
	return &DANSessionKeyManager{
		skm:    skm,
		signer: signer,
		log:    o.log.With(slog.String("module", skm.Address().Hex())),
	}, nil
}

func (d *DANSessionKeyManager) Kind() Kind { return KindDistributed }

func (d *DANSessionKeyManager) Address() common.Address { return d.skm.Address() }

func (d *DANSessionKeyManager) SessionKeyManager() *SessionKeyManager { return d.skm }

func (d *DANSessionKeyManager) leafInfo(ctx context.Context, p Params) (sessions.Record, []common.Hash, error) {
	if p.SessionID == "" {
		return sessions.Record{}, nil, ErrMissingSession
	}
	r, proof, err := d.skm.leafInfo(ctx, SessionParams{SessionID: p.SessionID})
	if err != nil {
		return sessions.Record{}, nil, err
	}
	if !r.IsDistributed() {
		return sessions.Record{}, nil, fmt.Errorf("%w: %s", ErrNotDistributed, r.SessionID)
	}
	return r, proof, nil
}

func (d *DANSessionKeyManager) DummySignature(ctx context.Context, p Params) ([]byte, error) {
	r, proof, err := d.leafInfo(ctx, p)
	if err != nil {
		return nil, err
	}
	env, err := encodeSessionEnvelope(r, proof, MockSessionKeySignature, p.AdditionalSessionData)
	if err != nil {
		return nil, err
	}
	return Wrap(env, d.Address())
}

// SignUserOpHash asks the threshold network to sign the canonical JSON form
// of p.UserOp. The session's chain must equal p.ChainID; the check happens
// before the network is contacted.
func (d *DANSessionKeyManager) SignUserOpHash(ctx context.Context, userOpHash common.Hash, p Params) ([]byte, error) {
	if p.UserOp == nil {
		return nil, ErrMissingUserOp
	}
	if p.ChainID == 0 {
		return nil, ErrMissingChain
	}
	r, proof, err := d.leafInfo(ctx, p)
	if err != nil {
		return nil, err
	}
	info := *r.DanModuleInfo
	if info.ChainID != p.ChainID {
		return nil, &ChainMismatchError{SessionID: r.SessionID, SessionChain: info.ChainID, TargetChain: p.ChainID}
	}
	msg, err := CanonicalUserOpMessage(p.UserOp, p.entryPoint(), info.ChainID)
	if err != nil {
		return nil, err
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: r.SessionID, Kind: KindDistributed.String()})
	sig, err := d.signer.SignMessage(ctx, info, msg)
	if err != nil {
		return nil, fmt.Errorf("modules: distributed signature for session %s: %w", r.SessionID, err)
	}
	env, err := encodeSessionEnvelope(r, proof, sig, p.AdditionalSessionData)
	if err != nil {
		return nil, err
	}
	d.log.DebugContext(ctx, "user operation signed by threshold network",
		slog.String("user_op_hash", userOpHash.Hex()),
		slog.String("mpc_key_id", info.MPCKeyID),
	)
	return Wrap(env, d.Address())
}

func (d *DANSessionKeyManager) InitData(context.Context) ([]byte, error) { return nil, ErrNotImplemented }

func (d *DANSessionKeyManager) SignMessage(context.Context, []byte) ([]byte, error) {
	return nil, ErrNotImplemented
}

type danUserOperation struct {
	Sender               string `json:"sender"`
	Nonce                string `json:"nonce"`
	InitCode             string `json:"initCode"`
	CallData             string `json:"callData"`
	CallGasLimit         string `json:"callGasLimit"`
	VerificationGasLimit string `json:"verificationGasLimit"`
	PreVerificationGas   string `json:"preVerificationGas"`
	MaxFeePerGas         string `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas"`
	PaymasterAndData     string `json:"paymasterAndData"`
}

type danSignPayload struct {
	UserOperation     danUserOperation `json:"userOperation"`
	EntryPointVersion string           `json:"entryPointVersion"`
	EntryPointAddress string           `json:"entryPointAddress"`
	ChainID           uint64           `json:"chainId"`
}

// CanonicalUserOpMessage is the message the threshold network signs for a
// user operation: a JSON object with exactly the keys userOperation,
// entryPointVersion, entryPointAddress and chainId. Byte fields are hex
// without the 0x prefix and quantities are decimal strings. The signature
// field is not included.
func CanonicalUserOpMessage(op *account.UserOperation, entryPoint common.Address, chainID uint64) ([]byte, error) {
	if op == nil {
		return nil, ErrMissingUserOp
	}
	if op.CallGasLimit == nil || op.VerificationGasLimit == nil || len(op.CallData) == 0 {
		return nil, errors.New("modules: user operation is missing gas limits or call data")
	}
	return json.Marshal(danSignPayload{
		UserOperation: danUserOperation{
			Sender:               op.Sender.Hex(),
			Nonce:                decimal(op.Nonce),
			InitCode:             common.Bytes2Hex(op.InitCode),
			CallData:             common.Bytes2Hex(op.CallData),
			CallGasLimit:         decimal(op.CallGasLimit),
			VerificationGasLimit: decimal(op.VerificationGasLimit),
			PreVerificationGas:   decimal(op.PreVerificationGas),
			MaxFeePerGas:         decimal(op.MaxFeePerGas),
			MaxPriorityFeePerGas: decimal(op.MaxPriorityFeePerGas),
			PaymasterAndData:     common.Bytes2Hex(op.PaymasterAndData),
		},
		EntryPointVersion: account.EntryPointVersion,
		EntryPointAddress: entryPoint.Hex(),
		ChainID:           chainID,
	})
}

func decimal(b *big.Int) string {
	if b == nil {
		return "0"
	}
	return b.String()
}

// DistributedState is the lifecycle position of a distributed-key session.
type DistributedState string

const (
	StateUnregistered DistributedState = "UNREGISTERED"
	StateKeyGenerated DistributedState = "KEY_GENERATED"
	StateLeafPending  DistributedState = "LEAF_PENDING"
	StateLeafActive   DistributedState = "LEAF_ACTIVE"
	StateLeafInactive DistributedState = "LEAF_INACTIVE"
	StateRevoked      DistributedState = "REVOKED"
)

// StateOf derives the distributed lifecycle state of r. A record with key
// material but no permission payload has generated its key and has not yet
// been turned into a leaf.
func StateOf(r sessions.Record) DistributedState {
	switch {
	case r.DanModuleInfo == nil || r.DanModuleInfo.MPCKeyID == "":
		return StateUnregistered
	case len(r.SessionKeyData) == 0:
		return StateKeyGenerated
	}
	switch r.Status {
	case sessions.StatusActive:
		return StateLeafActive
	case sessions.StatusRevoked:
		return StateRevoked
	case sessions.StatusInactive, sessions.StatusExpired:
		return StateLeafInactive
	}
	return StateLeafPending
}
