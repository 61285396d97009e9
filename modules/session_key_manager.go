package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/blockchain-hcj/biconomy-client-sdk/account"
	"github.com/blockchain-hcj/biconomy-client-sdk/internal/logctx"
	"github.com/blockchain-hcj/biconomy-client-sdk/merkle"
	"github.com/blockchain-hcj/biconomy-client-sdk/permission"
	"github.com/blockchain-hcj/biconomy-client-sdk/sessions"
	"github.com/ethereum/go-ethereum/common"
)

// Option configures a module.
type Option func(*moduleOptions)

type moduleOptions struct {
	log *slog.Logger
}

// WithLogger sets the module logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *moduleOptions) { o.log = l }
}

func applyOptions(opts []Option) moduleOptions {
	var o moduleOptions
	for _, fn := range opts {
		fn(&o)
	}
	o.log = logctx.Wrap(o.log)
	return o
}

// SessionKeyManager is the session key manager module of one smart account.
// It keeps the account's Merkle ledger consistent with its session store.
type SessionKeyManager struct {
	cfg Config
	log *slog.Logger
}

// NewSessionKeyManager resolves the module and rebuilds its ledger from every
// record in the store.
func NewSessionKeyManager(ctx context.Context, cfg Config, opts ...Option) (*SessionKeyManager, error) {
	if cfg.Store == nil {
		return nil, &ConfigError{Field: "store", Reason: "required"}
	}
	if cfg.Ledger == nil {
		cfg.Ledger = merkle.NewLedger()
	}
	o := applyOptions(opts)
	m := &SessionKeyManager{
		cfg: cfg,
		log: o.log.With(
			slog.String("module", cfg.Address.Hex()),
			slog.String("account", cfg.Store.AccountAddress().Hex()),
		),
	}
	if _, err := m.Rebuild(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SessionKeyManager) Kind() Kind { return KindSingle }

func (m *SessionKeyManager) Address() common.Address { return m.cfg.Address }

func (m *SessionKeyManager) Version() Version { return m.cfg.Version }

func (m *SessionKeyManager) Store() sessions.Store { return m.cfg.Store }

func (m *SessionKeyManager) Ledger() *merkle.Ledger { return m.cfg.Ledger }

// CreateSessionData registers compiled policies as PENDING session leaves and
// publishes the new root to the store.
func (m *SessionKeyManager) CreateSessionData(ctx context.Context, data []permission.Datum) (*CreateSessionDataResponse, error) {
	records := make([]sessions.Record, len(data))
	for i, d := range data {
		records[i] = sessions.NewRecord(d)
	}
	return m.CreateSessionRecords(ctx, records)
}

// CreateSessionRecords is CreateSessionData for prepared records, such as
// distributed-key records that carry dan module info. The records and the root
// of the store's full leaf set are written together; on error neither is.
func (m *SessionKeyManager) CreateSessionRecords(ctx context.Context, records []sessions.Record) (*CreateSessionDataResponse, error) {
	if len(records) == 0 {
		return nil, errors.New("modules: no session data")
	}
	batch := make([]sessions.Record, len(records))
	for i, r := range records {
		if _, err := r.LeafHash(); err != nil {
			return nil, err
		}
		r.Status = sessions.StatusPending
		batch[i] = r
	}

	var ids []string
	tree, err := m.cfg.Ledger.Publish(func(root sessions.RootFunc) error {
		stored, err := m.cfg.Store.AddSessionDataBatch(ctx, batch, root)
		if err != nil {
			return err
		}
		ids = ids[:0]
		for _, r := range stored {
			ids = append(ids, r.SessionID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("modules: create session data: %w", err)
	}
	m.log.InfoContext(ctx, "session leaves added", slog.Any("session_ids", ids), slog.String("root", tree.Root().Hex()))
	return &CreateSessionDataResponse{
		Data:       account.EncodeSetMerkleRoot(tree.Root()),
		SessionIDs: ids,
		Root:       tree.Root(),
	}, nil
}

// RevokeSessions revokes the sessions, adds their tombstone leaves to the
// tree and publishes the new root. The response's SessionIDs are the
// tombstone IDs.
func (m *SessionKeyManager) RevokeSessions(ctx context.Context, sessionIDs []string) (*CreateSessionDataResponse, error) {
	var ids []string
	tree, err := m.cfg.Ledger.Publish(func(root sessions.RootFunc) error {
		tombstones, err := m.cfg.Store.RevokeSessions(ctx, sessionIDs, root)
		if err != nil {
			return err
		}
		ids = ids[:0]
		for _, t := range tombstones {
			ids = append(ids, t.SessionID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("modules: revoke sessions: %w", err)
	}
	m.log.InfoContext(ctx, "sessions revoked", slog.Any("session_ids", sessionIDs), slog.String("root", tree.Root().Hex()))
	return &CreateSessionDataResponse{
		Data:       account.EncodeSetMerkleRoot(tree.Root()),
		SessionIDs: ids,
		Root:       tree.Root(),
	}, nil
}

// UpdateSessionStatus changes the status of one session. The tree is not
// affected: status is not part of the leaf.
func (m *SessionKeyManager) UpdateSessionStatus(ctx context.Context, p sessions.SearchParam, status sessions.Status) error {
	return m.cfg.Store.UpdateSessionStatus(ctx, p, status)
}

// UpdateSessionStatuses changes the status of every listed session, or of none.
func (m *SessionKeyManager) UpdateSessionStatuses(ctx context.Context, sessionIDs []string, status sessions.Status) error {
	return m.cfg.Store.UpdateSessionStatuses(ctx, sessionIDs, status)
}

// ClearPendingSessions drops every PENDING session and publishes the root of
// what remains.
func (m *SessionKeyManager) ClearPendingSessions(ctx context.Context) error {
	tree, err := m.cfg.Ledger.Publish(func(root sessions.RootFunc) error {
		return m.cfg.Store.ClearPendingSessions(ctx, root)
	})
	if err != nil {
		return fmt.Errorf("modules: clear pending sessions: %w", err)
	}
	m.log.DebugContext(ctx, "pending sessions cleared", slog.String("root", tree.Root().Hex()))
	return nil
}

// Rebuild recomputes the tree from the store. A stored root that does not
// match the leaves is recomputed in the store.
func (m *SessionKeyManager) Rebuild(ctx context.Context) (common.Hash, error) {
	stale := false
	tree, err := m.cfg.Ledger.Mutate(func(cur merkle.Tree) (merkle.Tree, error) {
		records, err := m.cfg.Store.GetAllSessionData(ctx, sessions.SearchParam{})
		if err != nil {
			return cur, err
		}
		next, err := merkle.FromRecords(records)
		if err != nil {
			return cur, err
		}
		stored, err := m.cfg.Store.GetMerkleRoot(ctx)
		if err != nil {
			return cur, err
		}
		stale = stored != next.Root()
		return next, nil
	})
	if err == nil && stale {
		tree, err = m.cfg.Ledger.Publish(func(root sessions.RootFunc) error {
			_, err := m.cfg.Store.AddSessionDataBatch(ctx, nil, root)
			return err
		})
	}
	if err != nil {
		return common.Hash{}, fmt.Errorf("modules: rebuild ledger: %w", err)
	}
	m.log.DebugContext(ctx, "ledger rebuilt", slog.Int("leaves", tree.Len()), slog.String("root", tree.Root().Hex()))
	return tree.Root(), nil
}

// leafInfo resolves the session and its proof in the current tree.
func (m *SessionKeyManager) leafInfo(ctx context.Context, p SessionParams) (sessions.Record, []common.Hash, error) {
	search, err := p.search()
	if err != nil {
		return sessions.Record{}, nil, err
	}
	r, err := m.cfg.Store.GetSessionData(ctx, search)
	if err != nil {
		return sessions.Record{}, nil, err
	}
	if r.Status == sessions.StatusRevoked {
		return sessions.Record{}, nil, fmt.Errorf("%w: %s", ErrSessionRevoked, r.SessionID)
	}
	leaf, err := r.LeafHash()
	if err != nil {
		return sessions.Record{}, nil, err
	}
	proof, err := m.cfg.Ledger.Proof(leaf)
	if err != nil {
		return sessions.Record{}, nil, fmt.Errorf("modules: session %s: %w", r.SessionID, err)
	}
	return r, proof, nil
}

func (m *SessionKeyManager) DummySignature(ctx context.Context, p Params) ([]byte, error) {
	r, proof, err := m.leafInfo(ctx, p.SessionParams)
	if err != nil {
		return nil, err
	}
	env, err := encodeSessionEnvelope(r, proof, MockSessionKeySignature, p.AdditionalSessionData)
	if err != nil {
		return nil, err
	}
	return Wrap(env, m.Address())
}

// SignUserOpHash signs the hash with the local session key as an EIP-191
// personal message.
func (m *SessionKeyManager) SignUserOpHash(ctx context.Context, userOpHash common.Hash, p Params) ([]byte, error) {
	if p.Signer == nil {
		return nil, ErrMissingSigner
	}
	r, proof, err := m.leafInfo(ctx, p.SessionParams)
	if err != nil {
		return nil, err
	}
	if r.SessionPublicKey != p.Signer.Address() {
		return nil, fmt.Errorf("modules: signer %s is not the key of session %s", p.Signer.Address().Hex(), r.SessionID)
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: r.SessionID, Kind: KindSingle.String()})
	sig, err := p.Signer.SignMessage(ctx, userOpHash.Bytes())
	if err != nil {
		return nil, err
	}
	env, err := encodeSessionEnvelope(r, proof, sig, p.AdditionalSessionData)
	if err != nil {
		return nil, err
	}
	m.log.DebugContext(ctx, "user operation signed", slog.String("user_op_hash", userOpHash.Hex()))
	return Wrap(env, m.Address())
}

func (m *SessionKeyManager) InitData(context.Context) ([]byte, error) { return nil, ErrNotImplemented }

func (m *SessionKeyManager) SignMessage(context.Context, []byte) ([]byte, error) {
	return nil, ErrNotImplemented
}
