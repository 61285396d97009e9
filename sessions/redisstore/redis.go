package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blockchain-hcj/biconomy-client-sdk/sessions"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// maxTxAttempts bounds optimistic retries of one Update.
const maxTxAttempts = 64

// Config for the Redis-backed store. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: SESSIONS_KEY_PREFIX
	KeyPrefix string `env:"SESSIONS_KEY_PREFIX,default=biconomy:sessions:"`
}

// Backend stores the document of one account in Redis.
type Backend struct {
	client  *redis.Client
	key     string
	channel string

	pubsub   *redis.PubSub
	notifier sessions.ChangeNotifier
	done     chan struct{}
}

var _ sessions.Backend = (*Backend)(nil)

// NewBackend connects to Redis and subscribes to the account's change channel.
func NewBackend(cfg Config, account common.Address) (*Backend, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "biconomy:sessions:"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	ctx := context.Background()
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	id := strings.ToLower(account.Hex())
	b := &Backend{
		client:  cl,
		key:     prefix + "account:" + id,
		channel: prefix + "changes:" + id,
		done:    make(chan struct{}),
	}
	b.pubsub = cl.Subscribe(ctx, b.channel)
	// Wait for the subscription confirmation so no publish after return is missed.
	if _, err := b.pubsub.Receive(ctx); err != nil {
		_ = b.pubsub.Close()
		_ = cl.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	go b.forward()
	return b, nil
}

// New returns a Redis-backed Store for account.
func New(cfg Config, account common.Address, opts ...sessions.StoreOption) (*sessions.DocumentStore, error) {
	b, err := NewBackend(cfg, account)
	if err != nil {
		return nil, err
	}
	return sessions.NewDocumentStore(account, b, opts...), nil
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv(account common.Address, opts ...sessions.StoreOption) (*sessions.DocumentStore, error) {
	var cfg Config
	// Use envdecode; defaults are provided via struct tags.
	_ = envdecode.Decode(&cfg)
	return New(cfg, account, opts...)
}

func (b *Backend) Load(ctx context.Context) (*sessions.Document, error) {
	raw, err := b.client.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return &sessions.Document{}, nil
	}
	if err != nil {
		return nil, err
	}
	return sessions.DecodeDocument(raw)
}

func (b *Backend) Update(ctx context.Context, fn func(*sessions.Document) error) error {
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, b.key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
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
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, b.key, next, 0)
			pipe.Publish(ctx, b.channel, "1")
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := b.client.Watch(ctx, txf, b.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redisstore: update of %s: %w after %d attempts", b.key, redis.TxFailedErr, maxTxAttempts)
}

func (b *Backend) forward() {
	ch := b.pubsub.Channel()
	for {
		select {
		case <-b.done:
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			b.notifier.Notify()
		}
	}
}

func (b *Backend) Changes() <-chan struct{} { return b.notifier.Subscriber() }

// Close closes the subscription and the Redis client.
func (b *Backend) Close() error {
	select {
	case <-b.done:
		return nil
	default:
	}
	close(b.done)
	b.notifier.Close()
	_ = b.pubsub.Close()
	return b.client.Close()
}
