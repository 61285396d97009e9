package memorystore

import (
	"context"
	"sync"

	"github.com/blockchain-hcj/biconomy-client-sdk/sessions"
	"github.com/ethereum/go-ethereum/common"
)

// Backend keeps the document of one account in memory.
type Backend struct {
	mu       sync.RWMutex
	doc      *sessions.Document
	closed   bool
	notifier sessions.ChangeNotifier
}

var _ sessions.Backend = (*Backend)(nil)

// NewBackend returns an empty in-memory backend.
func NewBackend() *Backend {
	return &Backend{doc: &sessions.Document{}}
}

// New returns a volatile Store for account.
func New(account common.Address, opts ...sessions.StoreOption) *sessions.DocumentStore {
	return sessions.NewDocumentStore(account, NewBackend(), opts...)
}

func (b *Backend) Load(ctx context.Context) (*sessions.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, sessions.ErrClosed
	}
	return b.doc.Clone(), nil
}

func (b *Backend) Update(ctx context.Context, fn func(*sessions.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return sessions.ErrClosed
	}
	next := b.doc.Clone()
	if err := fn(next); err != nil {
		b.mu.Unlock()
		return err
	}
	b.doc = next
	b.mu.Unlock()

	b.notifier.Notify()
	return nil
}

func (b *Backend) Changes() <-chan struct{} { return b.notifier.Subscriber() }

func (b *Backend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.notifier.Close()
	return nil
}
