package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blockchain-hcj/biconomy-client-sdk/sessions"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fsnotify/fsnotify"
	"github.com/joeshaw/envdecode"
	"github.com/mitchellh/go-homedir"
)

// DefaultDir is where documents are kept when Config.Dir is empty.
const DefaultDir = "~/.biconomy/sessions"

// Config for the file-backed store. Defaults can be loaded via envdecode.
type Config struct {
	// Dir holds one document per account. A leading "~" is expanded. ENV: SESSIONS_DIR
	Dir string `env:"SESSIONS_DIR,default=~/.biconomy/sessions"`
	// Watch enables fsnotify change detection. ENV: SESSIONS_WATCH
	Watch bool `env:"SESSIONS_WATCH,default=true"`
}

// Backend stores the document of one account in a single file.
type Backend struct {
	path string
	log  *slog.Logger

	mu       sync.Mutex
	closed   bool
	notifier sessions.ChangeNotifier
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

var _ sessions.Backend = (*Backend)(nil)

// NewBackend opens (creating if needed) the directory in cfg and returns the
// backend for account. A nil log discards watcher diagnostics.
func NewBackend(cfg Config, account common.Address, log *slog.Logger) (*Backend, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	dir := cfg.Dir
	if dir == "" {
		dir = DefaultDir
	}
	dir, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("filestore: expand %q: %w", cfg.Dir, err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("filestore: create %s: %w", dir, err)
	}
	b := &Backend{
		path: filepath.Join(dir, strings.ToLower(account.Hex())+"_sessions.json"),
		log:  log.With(slog.String("account", account.Hex())),
		done: make(chan struct{}),
	}
	if cfg.Watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("filestore: watcher: %w", err)
		}
		// Watch the directory: the document itself is replaced on every write.
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("filestore: watch %s: %w", dir, err)
		}
		b.watcher = w
		go b.watch()
	}
	b.log.Debug("filestore backend opened", slog.String("path", b.path), slog.Bool("watch", cfg.Watch))
	return b, nil
}

// New returns a file-backed Store for account.
func New(cfg Config, account common.Address, opts ...sessions.StoreOption) (*sessions.DocumentStore, error) {
	b, err := NewBackend(cfg, account, sessions.StoreLogger(opts...))
	if err != nil {
		return nil, err
	}
	return sessions.NewDocumentStore(account, b, opts...), nil
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv(account common.Address, opts ...sessions.StoreOption) (*sessions.DocumentStore, error) {
	var cfg Config
	// Defaults are provided via struct tags.
	_ = envdecode.Decode(&cfg)
	return New(cfg, account, opts...)
}

// Path is the document file of this backend.
func (b *Backend) Path() string { return b.path }

func (b *Backend) Load(ctx context.Context) (*sessions.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, sessions.ErrClosed
	}
	return b.read()
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
	doc, err := b.read()
	if err != nil {
		b.mu.Unlock()
		return err
	}
	if err := fn(doc); err != nil {
		b.mu.Unlock()
		return err
	}
	err = b.write(doc)
	b.mu.Unlock()
	if err != nil {
		return err
	}
	b.notifier.Notify()
	return nil
}

func (b *Backend) read() (*sessions.Document, error) {
	raw, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &sessions.Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: read %s: %w", b.path, err)
	}
	return sessions.DecodeDocument(raw)
}

func (b *Backend) write(doc *sessions.Document) error {
	raw, err := doc.Encode()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".sessions-*.tmp")
	if err != nil {
		return fmt.Errorf("filestore: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("filestore: write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("filestore: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("filestore: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("filestore: replace %s: %w", b.path, err)
	}
	return nil
}

func (b *Backend) watch() {
	for {
		select {
		case <-b.done:
			return
		case ev, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != b.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
				b.notifier.Notify()
			}
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.log.Debug("filestore watcher error", slog.String("path", b.path), slog.String("err", err.Error()))
		}
	}
}

func (b *Backend) Changes() <-chan struct{} { return b.notifier.Subscriber() }

func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.done)
	var err error
	if b.watcher != nil {
		err = b.watcher.Close()
	}
	b.notifier.Close()
	return err
}
