package biconomy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blockchain-hcj/biconomy-client-sdk/account"
	"github.com/blockchain-hcj/biconomy-client-sdk/dan"
	"github.com/blockchain-hcj/biconomy-client-sdk/internal/logctx"
	"github.com/blockchain-hcj/biconomy-client-sdk/modules"
	"github.com/blockchain-hcj/biconomy-client-sdk/sessions"
	"github.com/ethereum/go-ethereum/common"
)

// ClientConfig wires a Client to its collaborators.
type ClientConfig struct {
	// Account is the smart account sessions are granted on.
	Account account.SmartAccount
	// Bundler relays session-signed user operations.
	Bundler account.Bundler
	// Paymaster, when set, sponsors operations built with SponsorWithPaymaster.
	Paymaster account.Paymaster

	// Store holds the account's sessions. It must belong to Account.
	Store sessions.Store

	ChainID uint64
	// EntryPoint defaults to account.DefaultEntryPoint.
	EntryPoint common.Address

	// SessionKeyManagerAddress and SessionKeyManagerVersion select the module;
	// see modules.ResolveConfig.
	SessionKeyManagerAddress *common.Address
	SessionKeyManagerVersion modules.Version
	// BatchedRouterAddress overrides the batched session router.
	BatchedRouterAddress *common.Address

	// DAN enables distributed-key sessions.
	DAN *dan.Client

	// LogHandler is an optional slog.Handler for logging within the client. If nil, logging is discarded.
	LogHandler slog.Handler
}

// Client manages the sessions of one smart account on one chain.
type Client struct {
	account    account.SmartAccount
	bundler    account.Bundler
	paymaster  account.Paymaster
	store      sessions.Store
	address    common.Address
	chainID    uint64
	entryPoint common.Address
	dan        *dan.Client
	log        *slog.Logger
	now        func() time.Time

	skm    *modules.SessionKeyManager
	router *modules.BatchedSessionRouter
	danSKM *modules.DANSessionKeyManager
}

// NewClient resolves the module configuration and rebuilds the account's
// ledger from the store.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	switch {
	case cfg.Account == nil:
		return nil, &ConfigError{Field: "account", Reason: "required"}
	case cfg.Bundler == nil:
		return nil, &ConfigError{Field: "bundler", Reason: "required"}
	case cfg.Store == nil:
		return nil, &ConfigError{Field: "store", Reason: "required"}
	case cfg.ChainID == 0:
		return nil, &ConfigError{Field: "chainId", Reason: "required"}
	}

	addr, err := cfg.Account.Address(ctx)
	if err != nil {
		return nil, fmt.Errorf("biconomy: account address: %w", err)
	}
	if got := cfg.Store.AccountAddress(); got != addr {
		return nil, &ConfigError{Field: "store", Reason: fmt.Sprintf("store belongs to %s, account is %s", got.Hex(), addr.Hex())}
	}

	log := slog.New(slog.DiscardHandler)
	if cfg.LogHandler != nil {
		log = slog.New(cfg.LogHandler)
	}
	log = logctx.Wrap(log)

	c := &Client{
		account:    cfg.Account,
		bundler:    cfg.Bundler,
		paymaster:  cfg.Paymaster,
		store:      cfg.Store,
		address:    addr,
		chainID:    cfg.ChainID,
		entryPoint: cfg.EntryPoint,
		dan:        cfg.DAN,
		log:        log,
		now:        time.Now,
	}
	if c.entryPoint == (common.Address{}) {
		c.entryPoint = account.DefaultEntryPoint
	}

	skmCfg, err := modules.ResolveConfig(modules.KindSingle, modules.RawConfig{
		ModuleAddress: cfg.SessionKeyManagerAddress,
		Version:       cfg.SessionKeyManagerVersion,
		Store:         cfg.Store,
	})
	if err != nil {
		return nil, err
	}
	routerCfg, err := modules.ResolveConfig(modules.KindBatched, modules.RawConfig{
		ModuleAddress: cfg.BatchedRouterAddress,
	})
	if err != nil {
		return nil, err
	}

	ctx = c.withAccount(ctx)
	unlock := lockAccount(addr)
	defer unlock()

	if c.skm, err = modules.NewSessionKeyManager(ctx, skmCfg, modules.WithLogger(log)); err != nil {
		return nil, err
	}
	if c.router, err = modules.NewBatchedSessionRouter(routerCfg, c.skm, modules.WithLogger(log)); err != nil {
		return nil, err
	}
	if cfg.DAN != nil {
		if c.danSKM, err = modules.NewDANSessionKeyManager(c.skm, cfg.DAN, modules.WithLogger(log)); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Address is the smart account address.
func (c *Client) Address() common.Address { return c.address }

func (c *Client) ChainID() uint64 { return c.chainID }

func (c *Client) Store() sessions.Store { return c.store }

// SessionKeyManager is the module that validates single-session operations.
func (c *Client) SessionKeyManager() *modules.SessionKeyManager { return c.skm }

func (c *Client) BatchedSessionRouter() *modules.BatchedSessionRouter { return c.router }

// Module returns the module that signs operations of kind.
func (c *Client) Module(kind modules.Kind) (modules.Module, error) {
	switch kind {
	case modules.KindSingle:
		return c.skm, nil
	case modules.KindBatched:
		return c.router, nil
	case modules.KindDistributed:
		if c.danSKM == nil {
			return nil, ErrDistributedUnavailable
		}
		return c.danSKM, nil
	}
	return nil, fmt.Errorf("biconomy: unknown session kind %s", kind)
}

func (c *Client) withAccount(ctx context.Context) context.Context {
	return logctx.WithAccountData(ctx, &logctx.AccountData{Address: c.address.Hex(), ChainID: c.chainID})
}

// accountLocks serializes ledger mutations per account across every Client in
// the process.
var accountLocks sync.Map

func lockAccount(addr common.Address) (unlock func()) {
	v, _ := accountLocks.LoadOrStore(addr, new(sync.Mutex))
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
