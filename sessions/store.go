package sessions

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

var zeroAddr common.Address

// RootFunc computes the Merkle root of a complete leaf set given in insertion
// order, tombstones included.
type RootFunc func(leaves []Record) (common.Hash, error)

// Store is the authoritative record of session leaves, the published Merkle
// root and the session signers of one smart account. Implementations must be
// safe for concurrent use and must apply each mutation atomically.
type Store interface {
	// AccountAddress is the smart account the store belongs to.
	AccountAddress() common.Address

	// AddSessionData appends a record. An empty session ID is replaced with a
	// random one; a session ID already in use fails with ErrDuplicateSession.
	// The stored record is returned.
	AddSessionData(ctx context.Context, r Record) (Record, error)
	// AddSessionDataBatch appends records in one write: either every record is
	// stored or none is. When root is non-nil the stored Merkle root is set to
	// root of the resulting leaf set in the same write; an empty batch only
	// recomputes the root.
	AddSessionDataBatch(ctx context.Context, records []Record, root RootFunc) ([]Record, error)
	// GetSessionData returns the single live record matching p. Tombstones are
	// never returned. A session ID lookup must match exactly one record; other
	// lookups return the most recently added match.
	GetSessionData(ctx context.Context, p SearchParam) (Record, error)
	// GetAllSessionData returns every record matching p in insertion order,
	// tombstones included. The empty SearchParam matches everything.
	GetAllSessionData(ctx context.Context, p SearchParam) ([]Record, error)
	// UpdateSessionStatus sets the status of the record GetSessionData(p)
	// selects. REVOKED is only reachable through RevokeSessions, and a revoked
	// record keeps its status; both fail with ErrInvalidStatus.
	UpdateSessionStatus(ctx context.Context, p SearchParam, status Status) error
	// UpdateSessionStatuses is UpdateSessionStatus for several session IDs in
	// one write. If any ID fails nothing is written.
	UpdateSessionStatuses(ctx context.Context, sessionIDs []string, status Status) error
	// RevokeSessions marks each session REVOKED and appends one tombstone per
	// newly revoked session. It returns the tombstones. If any ID is unknown
	// nothing is written. A non-nil root is applied as in AddSessionDataBatch.
	RevokeSessions(ctx context.Context, sessionIDs []string, root RootFunc) ([]Record, error)
	// ClearPendingSessions removes every PENDING record. A non-nil root is
	// applied as in AddSessionDataBatch.
	ClearPendingSessions(ctx context.Context, root RootFunc) error

	GetMerkleRoot(ctx context.Context) (common.Hash, error)
	SetMerkleRoot(ctx context.Context, root common.Hash) error

	// AddSigner stores data, or a freshly generated key when data is nil.
	AddSigner(ctx context.Context, data *SignerData, chainID uint64) (Signer, error)
	GetSignerByKey(ctx context.Context, publicKey common.Address, chainID uint64) (Signer, error)
	// GetSignerBySession resolves the record selected by p, then its signer.
	GetSignerBySession(ctx context.Context, p SearchParam, chainID uint64) (Signer, error)

	// Changes returns a channel signalled whenever the stored document may
	// have changed, including changes made by other processes where the
	// backend can observe them. The channel is closed by Close.
	Changes() <-chan struct{}
	Close() error
}

// Backend persists the Document of one account. Store semantics are layered
// on top by DocumentStore.
type Backend interface {
	// Load returns a copy of the current document, or an empty document when
	// nothing has been stored yet.
	Load(ctx context.Context) (*Document, error)
	// Update applies fn to the current document and persists the result
	// atomically. If fn returns an error nothing is written and that error is
	// returned unchanged.
	Update(ctx context.Context, fn func(*Document) error) error
	// Changes returns a new subscription to document change signals.
	Changes() <-chan struct{}
	Close() error
}
