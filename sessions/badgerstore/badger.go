package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/blockchain-hcj/biconomy-client-sdk/sessions"
	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/pb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joeshaw/envdecode"
	"github.com/mitchellh/go-homedir"
)

const (
	keyPrefix     = "session-doc/"
	maxTxAttempts = 64
)

// Config for the Badger-backed store. Defaults can be loaded via envdecode.
type Config struct {
	// Dir is the database directory. ENV: SESSIONS_BADGER_DIR
	Dir string `env:"SESSIONS_BADGER_DIR,default=~/.biconomy/badger"`
	// InMemory keeps the database in memory and ignores Dir. ENV: SESSIONS_BADGER_IN_MEMORY
	InMemory bool `env:"SESSIONS_BADGER_IN_MEMORY,default=false"`
}

// DB is an open Badger database shared by the stores of many accounts.
type DB struct {
	db  *badger.DB
	log *slog.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger of the database and of its backends.
func WithLogger(l *slog.Logger) Option {
	return func(d *DB) {
		if l != nil {
			d.log = l
		}
	}
}

// Open opens or creates the database described by cfg.
func Open(cfg Config, opts ...Option) (*DB, error) {
	var bopts badger.Options
	if cfg.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dir, err := homedir.Expand(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("badgerstore: expand %q: %w", cfg.Dir, err)
		}
		if dir == "" {
			return nil, errors.New("badgerstore: missing database directory")
		}
		bopts = badger.DefaultOptions(dir)
	}
	// Badger's own logger is very chatty at info level.
	bopts = bopts.WithLogger(nil)
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}
	d := &DB{db: db, log: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// OpenFromEnv opens a database using envdecode to populate Config.
func OpenFromEnv() (*DB, error) {
	var cfg Config
	// Defaults are provided via struct tags.
	_ = envdecode.Decode(&cfg)
	return Open(cfg)
}

// Close closes the database. Stores obtained from it stop working.
func (d *DB) Close() error { return d.db.Close() }

// Store returns the Store of account. Closing the store does not close d.
func (d *DB) Store(account common.Address, opts ...sessions.StoreOption) *sessions.DocumentStore {
	return sessions.NewDocumentStore(account, d.Backend(account), opts...)
}

// Backend returns the sessions.Backend of account. It watches the database for
// writes to the account's document made through other backends.
func (d *DB) Backend(account common.Address) *Backend {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Backend{
		db:     d.db,
		key:    []byte(keyPrefix + strings.ToLower(account.Hex())),
		log:    d.log.With(slog.String("account", account.Hex())),
		cancel: cancel,
	}
	go b.subscribe(ctx)
	b.log.Debug("badgerstore backend opened", slog.String("key", string(b.key)))
	return b
}

// Backend stores the document of one account in a Badger database.
type Backend struct {
	db  *badger.DB
	key []byte
	log *slog.Logger

	notifier  sessions.ChangeNotifier
	cancel    context.CancelFunc
	closeOnce sync.Once
	ownsDB    bool
}

var _ sessions.Backend = (*Backend)(nil)

// New opens a database owned by the returned Store; closing the store closes
// the database.
func New(cfg Config, account common.Address, opts ...sessions.StoreOption) (*sessions.DocumentStore, error) {
	d, err := Open(cfg, WithLogger(sessions.StoreLogger(opts...)))
	if err != nil {
		return nil, err
	}
	b := d.Backend(account)
	b.ownsDB = true
	return sessions.NewDocumentStore(account, b, opts...), nil
}

func (b *Backend) Load(ctx context.Context) (*sessions.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var raw []byte
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		raw, err = b.get(txn)
		return err
	})
	if err != nil {
		return nil, b.wrap(err)
	}
	return sessions.DecodeDocument(raw)
}

func (b *Backend) Update(ctx context.Context, fn func(*sessions.Document) error) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := b.db.Update(func(txn *badger.Txn) error {
			raw, err := b.get(txn)
			if err != nil {
				return err
			}
			doc, err := sessions.DecodeDocument(raw)
			if err != nil {
				return err
			}
			if err := fn(doc); err != nil {
				return err
			}
			next, err := doc.Encode()
			if err != nil {
				return err
			}
			return txn.Set(b.key, next)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return b.wrap(err)
		}
		b.notifier.Notify()
		return nil
	}
	return fmt.Errorf("badgerstore: update of %s: %w after %d attempts", b.key, badger.ErrConflict, maxTxAttempts)
}

func (b *Backend) get(txn *badger.Txn) ([]byte, error) {
	item, err := txn.Get(b.key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (b *Backend) wrap(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return fmt.Errorf("%w: %v", sessions.ErrClosed, err)
	}
	return err
}

func (b *Backend) subscribe(ctx context.Context) {
	err := b.db.Subscribe(ctx, func(kv *badger.KVList) error {
		b.notifier.Notify()
		return nil
	}, []pb.Match{{Prefix: b.key}})
	if err != nil && !errors.Is(err, context.Canceled) {
		b.log.Debug("badgerstore subscription ended", slog.String("key", string(b.key)), slog.String("err", err.Error()))
	}
}

func (b *Backend) Changes() <-chan struct{} { return b.notifier.Subscriber() }

func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.cancel()
		b.notifier.Close()
		if b.ownsDB {
			err = b.db.Close()
		}
	})
	return err
}
