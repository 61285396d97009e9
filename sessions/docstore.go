package sessions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blockchain-hcj/biconomy-client-sdk/internal/logctx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// DocumentStore implements Store over a Backend.
type DocumentStore struct {
	account common.Address
	backend Backend
	log     *slog.Logger
	newID   func() string
}

var _ Store = (*DocumentStore)(nil)

// StoreOption configures a DocumentStore.
type StoreOption func(*DocumentStore)

// WithLogger sets the logger used for mutation diagnostics.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *DocumentStore) {
		if l != nil {
			s.log = l
		}
	}
}

// WithIDGenerator replaces the random session ID generator.
func WithIDGenerator(fn func() string) StoreOption {
	return func(s *DocumentStore) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// StoreLogger returns the logger opts configure, wrapped the way a
// DocumentStore wraps it, so backends log through the same handler.
func StoreLogger(opts ...StoreOption) *slog.Logger {
	s := &DocumentStore{log: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(s)
	}
	return logctx.Wrap(s.log)
}

// NewDocumentStore returns a Store for account persisted through b.
func NewDocumentStore(account common.Address, b Backend, opts ...StoreOption) *DocumentStore {
	s := &DocumentStore{
		account: account,
		backend: b,
		log:     slog.New(slog.DiscardHandler),
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = logctx.Wrap(s.log).With(slog.String("account", account.Hex()))
	return s
}

func (s *DocumentStore) AccountAddress() common.Address { return s.account }

func (s *DocumentStore) AddSessionData(ctx context.Context, r Record) (Record, error) {
	out, err := s.AddSessionDataBatch(ctx, []Record{r}, nil)
	if err != nil {
		return Record{}, err
	}
	return out[0], nil
}

func (s *DocumentStore) AddSessionDataBatch(ctx context.Context, records []Record, root RootFunc) ([]Record, error) {
	batch := make([]Record, len(records))
	for i, r := range records {
		r = r.clone()
		if r.Status == "" {
			r.Status = StatusPending
		}
		if !r.Status.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, r.Status)
		}
		if r.SessionID == "" {
			r.SessionID = s.newID()
		}
		batch[i] = r
	}
	err := s.backend.Update(ctx, func(d *Document) error {
		seen := make(map[string]bool, len(batch))
		for _, r := range batch {
			if seen[r.SessionID] || d.hasSessionID(r.SessionID) {
				return fmt.Errorf("%w: %s", ErrDuplicateSession, r.SessionID)
			}
			seen[r.SessionID] = true
		}
		for _, r := range batch {
			d.Leaves = append(d.Leaves, r.clone())
		}
		return d.applyRoot(root)
	})
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(batch))
	for i, r := range batch {
		s.log.DebugContext(ctx, "session leaf added", slog.String("session_id", r.SessionID), slog.String("status", string(r.Status)))
		out[i] = r.clone()
	}
	return out, nil
}

func (s *DocumentStore) GetSessionData(ctx context.Context, p SearchParam) (Record, error) {
	if p.IsEmpty() {
		return Record{}, ErrInvalidSearch
	}
	d, err := s.backend.Load(ctx)
	if err != nil {
		return Record{}, err
	}
	i, err := selectOne(d.Leaves, p)
	if err != nil {
		return Record{}, err
	}
	return d.Leaves[i].clone(), nil
}

func (s *DocumentStore) GetAllSessionData(ctx context.Context, p SearchParam) ([]Record, error) {
	d, err := s.backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := Filter(d.Leaves, p)
	for i := range out {
		out[i] = out[i].clone()
	}
	return out, nil
}

func settableStatus(status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if status == StatusRevoked {
		return fmt.Errorf("%w: %s is only set by revocation", ErrInvalidStatus, status)
	}
	return nil
}

func setStatus(d *Document, p SearchParam, status Status) (string, error) {
	i, err := selectOne(d.Leaves, p)
	if err != nil {
		return "", err
	}
	r := &d.Leaves[i]
	if r.Status == StatusRevoked {
		return "", fmt.Errorf("%w: session %s is revoked", ErrInvalidStatus, r.SessionID)
	}
	r.Status = status
	return r.SessionID, nil
}

func (s *DocumentStore) UpdateSessionStatus(ctx context.Context, p SearchParam, status Status) error {
	if err := settableStatus(status); err != nil {
		return err
	}
	var id string
	err := s.backend.Update(ctx, func(d *Document) error {
		var err error
		id, err = setStatus(d, p, status)
		return err
	})
	if err != nil {
		return err
	}
	s.log.DebugContext(ctx, "session status updated", slog.String("session_id", id), slog.String("status", string(status)))
	return nil
}

func (s *DocumentStore) UpdateSessionStatuses(ctx context.Context, sessionIDs []string, status Status) error {
	if err := settableStatus(status); err != nil {
		return err
	}
	err := s.backend.Update(ctx, func(d *Document) error {
		for _, id := range sessionIDs {
			if id == "" {
				return ErrInvalidSearch
			}
			if _, err := setStatus(d, SearchParam{SessionID: id}, status); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.DebugContext(ctx, "session statuses updated", slog.Any("session_ids", sessionIDs), slog.String("status", string(status)))
	return nil
}

func (s *DocumentStore) RevokeSessions(ctx context.Context, sessionIDs []string, root RootFunc) ([]Record, error) {
	var tombstones []Record
	err := s.backend.Update(ctx, func(d *Document) error {
		tombstones = tombstones[:0]
		idx := make([]int, 0, len(sessionIDs))
		for _, id := range sessionIDs {
			if id == "" {
				return ErrInvalidSearch
			}
			i, err := selectOne(d.Leaves, SearchParam{SessionID: id})
			if err != nil {
				return err
			}
			idx = append(idx, i)
		}
		for _, i := range idx {
			if d.Leaves[i].Status == StatusRevoked {
				continue
			}
			d.Leaves[i].Status = StatusRevoked
			t := Tombstone(d.Leaves[i], s.newID())
			d.Leaves = append(d.Leaves, t)
			tombstones = append(tombstones, t.clone())
		}
		return d.applyRoot(root)
	})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "sessions revoked", slog.Any("session_ids", sessionIDs), slog.Int("tombstones", len(tombstones)))
	return tombstones, nil
}

func (s *DocumentStore) ClearPendingSessions(ctx context.Context, root RootFunc) error {
	removed := 0
	err := s.backend.Update(ctx, func(d *Document) error {
		removed = 0
		kept := d.Leaves[:0]
		for _, r := range d.Leaves {
			if r.Status == StatusPending {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		d.Leaves = kept
		return d.applyRoot(root)
	})
	if err != nil {
		return err
	}
	s.log.DebugContext(ctx, "pending sessions cleared", slog.Int("removed", removed))
	return nil
}

func (s *DocumentStore) GetMerkleRoot(ctx context.Context) (common.Hash, error) {
	d, err := s.backend.Load(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	return d.MerkleRoot, nil
}

func (s *DocumentStore) SetMerkleRoot(ctx context.Context, root common.Hash) error {
	return s.backend.Update(ctx, func(d *Document) error {
		d.MerkleRoot = root
		return nil
	})
}

func (s *DocumentStore) AddSigner(ctx context.Context, data *SignerData, chainID uint64) (Signer, error) {
	var sd SignerData
	if data == nil {
		gen, err := NewRandomSigner(chainID)
		if err != nil {
			return nil, err
		}
		sd = gen
	} else {
		sd = *data
		sd.PrivateKey = append([]byte(nil), data.PrivateKey...)
		if sd.ChainID == 0 {
			sd.ChainID = chainID
		}
	}
	signer, err := NewLocalSigner(sd)
	if err != nil {
		return nil, err
	}
	sd.PublicKey = signer.Address()
	if err := s.backend.Update(ctx, func(d *Document) error {
		d.putSigner(sd)
		return nil
	}); err != nil {
		return nil, err
	}
	s.log.DebugContext(ctx, "session signer added", slog.String("session_key", sd.PublicKey.Hex()))
	return signer, nil
}

func (s *DocumentStore) GetSignerByKey(ctx context.Context, publicKey common.Address, chainID uint64) (Signer, error) {
	d, err := s.backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	return signerFrom(d, publicKey, chainID)
}

func (s *DocumentStore) GetSignerBySession(ctx context.Context, p SearchParam, chainID uint64) (Signer, error) {
	d, err := s.backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	i, err := selectOne(d.Leaves, p)
	if err != nil {
		return nil, err
	}
	return signerFrom(d, d.Leaves[i].SessionPublicKey, chainID)
}

func signerFrom(d *Document, key common.Address, chainID uint64) (Signer, error) {
	sd, ok := d.signer(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSignerNotFound, key.Hex())
	}
	if chainID != 0 && sd.ChainID != 0 && sd.ChainID != chainID {
		return nil, fmt.Errorf("%w: %s is registered for chain %d, not %d", ErrSignerNotFound, key.Hex(), sd.ChainID, chainID)
	}
	return NewLocalSigner(sd)
}

func (s *DocumentStore) Changes() <-chan struct{} { return s.backend.Changes() }

func (s *DocumentStore) Close() error { return s.backend.Close() }
