package modules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blockchain-hcj/biconomy-client-sdk/account"
	"github.com/blockchain-hcj/biconomy-client-sdk/internal/logctx"
	"github.com/ethereum/go-ethereum/common"
)

// BatchedSessionRouter authorizes every call of an executeBatch operation
// under its own session leaf of the session key manager.
type BatchedSessionRouter struct {
	address common.Address
	version Version
	skm     *SessionKeyManager
	log     *slog.Logger
}

// NewBatchedSessionRouter returns the router for cfg, resolving leaves
// through skm.
func NewBatchedSessionRouter(cfg Config, skm *SessionKeyManager, opts ...Option) (*BatchedSessionRouter, error) {
	if skm == nil {
		return nil, &ConfigError{Field: "sessionKeyManager", Reason: "required"}
	}
	o := applyOptions(opts)
	return &BatchedSessionRouter{
		address: cfg.Address,
		version: cfg.Version,
		skm:     skm,
		log:     o.log.With(slog.String("module", cfg.Address.Hex())),
	}, nil
}

func (b *BatchedSessionRouter) Kind() Kind { return KindBatched }

func (b *BatchedSessionRouter) Address() common.Address { return b.address }

func (b *BatchedSessionRouter) Version() Version { return b.version }

// SessionKeyManager is the manager whose leaves the router resolves.
func (b *BatchedSessionRouter) SessionKeyManager() *SessionKeyManager { return b.skm }

// checkBatch verifies there is one session per call of the operation.
func (b *BatchedSessionRouter) checkBatch(p Params) error {
	calls := -1
	if p.UserOp != nil {
		n, err := account.DecodeBatchCallCount(p.UserOp.CallData)
		if err != nil {
			return err
		}
		calls = n
	}
	switch {
	case len(p.Batch) == 0 && calls < 0:
		return fmt.Errorf("%w: empty batch", ErrBatchMismatch)
	case calls >= 0 && calls != len(p.Batch):
		return &BatchMismatchError{Sessions: len(p.Batch), Calls: calls}
	}
	return nil
}

func (b *BatchedSessionRouter) entries(ctx context.Context, p Params) ([]sessionDataTuple, error) {
	out := make([]sessionDataTuple, 0, len(p.Batch))
	for i, sp := range p.Batch {
		r, proof, err := b.skm.leafInfo(ctx, sp)
		if err != nil {
			return nil, fmt.Errorf("modules: batch entry %d: %w", i, err)
		}
		out = append(out, newSessionDataTuple(r, proof, sp.AdditionalSessionData))
	}
	return out, nil
}

func (b *BatchedSessionRouter) DummySignature(ctx context.Context, p Params) ([]byte, error) {
	if err := b.checkBatch(p); err != nil {
		return nil, err
	}
	entries, err := b.entries(ctx, p)
	if err != nil {
		return nil, err
	}
	env, err := encodeRouterEnvelope(b.skm.Address(), entries, MockSessionKeySignature)
	if err != nil {
		return nil, err
	}
	return Wrap(env, b.address)
}

// SignUserOpHash signs once with the first batch entry's session key.
func (b *BatchedSessionRouter) SignUserOpHash(ctx context.Context, userOpHash common.Hash, p Params) ([]byte, error) {
	if err := b.checkBatch(p); err != nil {
		return nil, err
	}
	for i, sp := range p.Batch {
		if sp.SessionValidationModule == (common.Address{}) && sp.SessionID == "" {
			return nil, fmt.Errorf("modules: batch entry %d: %w", i, ErrMissingSession)
		}
	}
	signer := p.Batch[0].Signer
	if signer == nil {
		return nil, ErrMissingSigner
	}
	entries, err := b.entries(ctx, p)
	if err != nil {
		return nil, err
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: p.Batch[0].SessionID, Kind: KindBatched.String()})
	sig, err := signer.SignMessage(ctx, userOpHash.Bytes())
	if err != nil {
		return nil, err
	}
	env, err := encodeRouterEnvelope(b.skm.Address(), entries, sig)
	if err != nil {
		return nil, err
	}
	b.log.DebugContext(ctx, "batched user operation signed", slog.Int("sessions", len(entries)), slog.String("user_op_hash", userOpHash.Hex()))
	return Wrap(env, b.address)
}

func (b *BatchedSessionRouter) InitData(context.Context) ([]byte, error) { return nil, ErrNotImplemented }

func (b *BatchedSessionRouter) SignMessage(context.Context, []byte) ([]byte, error) {
	return nil, ErrNotImplemented
}
