package biconomy

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/blockchain-hcj/biconomy-client-sdk/account"
	"github.com/blockchain-hcj/biconomy-client-sdk/dan"
	"github.com/blockchain-hcj/biconomy-client-sdk/modules"
	"github.com/blockchain-hcj/biconomy-client-sdk/sessions"
	"github.com/blockchain-hcj/biconomy-client-sdk/sessions/badgerstore"
	"github.com/blockchain-hcj/biconomy-client-sdk/sessions/filestore"
	"github.com/blockchain-hcj/biconomy-client-sdk/sessions/memorystore"
	"github.com/blockchain-hcj/biconomy-client-sdk/sessions/redisstore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joeshaw/envdecode"
)

// StoreKind names a session store backend.
type StoreKind string

const (
	StoreMemory StoreKind = "memory"
	StoreFile   StoreKind = "file"
	StoreRedis  StoreKind = "redis"
	StoreBadger StoreKind = "badger"
)

// Config is the raw, environment-loadable client configuration. Every field is
// optional; ResolveClientConfig decides what the combination means.
type Config struct {
	// BundlerURL like "https://bundler.biconomy.io/api/v2/80001/<key>". ENV: BICONOMY_BUNDLER_URL
	BundlerURL string `env:"BICONOMY_BUNDLER_URL"`
	// PaymasterURL like "https://paymaster.biconomy.io/api/v1/80001/<key>". ENV: BICONOMY_PAYMASTER_URL
	PaymasterURL string `env:"BICONOMY_PAYMASTER_URL"`
	// ChainID, when zero, is taken from BundlerURL. ENV: BICONOMY_CHAIN_ID
	ChainID uint64 `env:"BICONOMY_CHAIN_ID"`
	// EntryPoint overrides the v0.6 entry point. ENV: BICONOMY_ENTRY_POINT
	EntryPoint string `env:"BICONOMY_ENTRY_POINT"`
	// SessionKeyManagerVersion selects the deployed module. ENV: BICONOMY_SKM_VERSION
	SessionKeyManagerVersion string `env:"BICONOMY_SKM_VERSION"`
	// DANURL is the distributed account network. ENV: BICONOMY_DAN_URL
	DANURL string `env:"BICONOMY_DAN_URL,default=https://dan.staging.biconomy.io"`

	// Store is one of memory, file, redis or badger. ENV: BICONOMY_SESSION_STORE
	Store string `env:"BICONOMY_SESSION_STORE,default=memory"`
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// SessionsDir holds file store documents. ENV: SESSIONS_DIR
	SessionsDir string `env:"SESSIONS_DIR,default=~/.biconomy/sessions"`
	// BadgerDir is the badger store directory. ENV: SESSIONS_BADGER_DIR
	BadgerDir string `env:"SESSIONS_BADGER_DIR,default=~/.biconomy/badger"`
}

// LoadConfig reads Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("biconomy: load config: %w", err)
	}
	return cfg, nil
}

// ResolvedConfig is a validated configuration.
type ResolvedConfig struct {
	ChainID                  uint64
	EntryPoint               common.Address
	BundlerURL               string
	PaymasterURL             string
	DANURL                   string
	SessionKeyManagerVersion modules.Version
	Store                    StoreKind
	RedisAddr                string
	SessionsDir              string
	BadgerDir                string
}

// ResolveClientConfig validates cfg and fills in what can be derived. The
// chain ID comes from ChainID or the bundler URL; when both are present they
// must agree, and so must the paymaster URL's chain.
func ResolveClientConfig(cfg Config) (ResolvedConfig, error) {
	rc := ResolvedConfig{
		ChainID:      cfg.ChainID,
		EntryPoint:   account.DefaultEntryPoint,
		BundlerURL:   cfg.BundlerURL,
		PaymasterURL: cfg.PaymasterURL,
		DANURL:       cfg.DANURL,
		RedisAddr:    cfg.RedisAddr,
		SessionsDir:  cfg.SessionsDir,
		BadgerDir:    cfg.BadgerDir,
	}

	if cfg.BundlerURL != "" {
		id, err := ChainIDFromBundlerURL(cfg.BundlerURL)
		if err != nil {
			return ResolvedConfig{}, &ConfigError{Field: "bundlerURL", Reason: err.Error()}
		}
		if rc.ChainID != 0 && rc.ChainID != id {
			return ResolvedConfig{}, fmt.Errorf("%w: chain id %d but bundler url is for chain %d", ErrChainMismatch, rc.ChainID, id)
		}
		rc.ChainID = id
	}
	if rc.ChainID == 0 {
		return ResolvedConfig{}, &ConfigError{Field: "chainId", Reason: "required when no bundler url is given"}
	}
	if cfg.PaymasterURL != "" {
		id, err := ChainIDFromPaymasterURL(cfg.PaymasterURL)
		if err != nil {
			return ResolvedConfig{}, &ConfigError{Field: "paymasterURL", Reason: err.Error()}
		}
		if id != rc.ChainID {
			return ResolvedConfig{}, fmt.Errorf("%w: chain id %d but paymaster url is for chain %d", ErrChainMismatch, rc.ChainID, id)
		}
	}

	if cfg.EntryPoint != "" {
		if !common.IsHexAddress(cfg.EntryPoint) {
			return ResolvedConfig{}, &ConfigError{Field: "entryPoint", Reason: fmt.Sprintf("%q is not an address", cfg.EntryPoint)}
		}
		rc.EntryPoint = common.HexToAddress(cfg.EntryPoint)
	}

	switch v := modules.Version(cfg.SessionKeyManagerVersion); v {
	case "", modules.V1_0_0, modules.V1_0_1:
		rc.SessionKeyManagerVersion = v
	default:
		return ResolvedConfig{}, &ConfigError{Field: "sessionKeyManagerVersion", Reason: fmt.Sprintf("unknown version %q", v)}
	}

	switch k := StoreKind(strings.ToLower(cfg.Store)); k {
	case "":
		rc.Store = StoreMemory
	case StoreMemory, StoreFile, StoreRedis, StoreBadger:
		rc.Store = k
	default:
		return ResolvedConfig{}, &ConfigError{Field: "store", Reason: fmt.Sprintf("unknown store %q", cfg.Store)}
	}
	return rc, nil
}

var (
	bundlerURLRe   = regexp.MustCompile(`/api/v2/(\d+)/[a-zA-Z0-9.-]+$`)
	paymasterURLRe = regexp.MustCompile(`/api/v\d+/(\d+)/`)
)

// ChainIDFromBundlerURL extracts the chain ID from a bundler URL of the form
// ".../api/v2/<chainId>/<apiKey>".
func ChainIDFromBundlerURL(url string) (uint64, error) {
	return chainIDFromURL(bundlerURLRe, url)
}

// ChainIDFromPaymasterURL extracts the chain ID from a paymaster URL of the
// form ".../api/v<n>/<chainId>/<apiKey>".
func ChainIDFromPaymasterURL(url string) (uint64, error) {
	return chainIDFromURL(paymasterURLRe, url)
}

func chainIDFromURL(re *regexp.Regexp, url string) (uint64, error) {
	m := re.FindStringSubmatch(url)
	if m == nil {
		return 0, fmt.Errorf("no chain id in %q", url)
	}
	id, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid chain id in %q", url)
	}
	return id, nil
}

// OpenStore opens the configured session store for acct.
func (rc ResolvedConfig) OpenStore(acct common.Address, opts ...sessions.StoreOption) (sessions.Store, error) {
	var (
		store *sessions.DocumentStore
		err   error
	)
	switch rc.Store {
	case StoreMemory, "":
		store = memorystore.New(acct, opts...)
	case StoreFile:
		store, err = filestore.New(filestore.Config{Dir: rc.SessionsDir, Watch: true}, acct, opts...)
	case StoreRedis:
		store, err = redisstore.New(redisstore.Config{RedisAddr: rc.RedisAddr}, acct, opts...)
	case StoreBadger:
		store, err = badgerstore.New(badgerstore.Config{Dir: rc.BadgerDir}, acct, opts...)
	default:
		return nil, &ConfigError{Field: "store", Reason: fmt.Sprintf("unknown store %q", rc.Store)}
	}
	if err != nil {
		return nil, fmt.Errorf("biconomy: open %s store: %w", rc.Store, err)
	}
	return store, nil
}

// DANClient returns a client for the configured distributed account network.
func (rc ResolvedConfig) DANClient(opts ...dan.Option) *dan.Client {
	return dan.New(rc.DANURL, opts...)
}
