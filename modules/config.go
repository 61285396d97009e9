package modules

import (
	"fmt"

	"github.com/blockchain-hcj/biconomy-client-sdk/merkle"
	"github.com/blockchain-hcj/biconomy-client-sdk/sessions"
	"github.com/ethereum/go-ethereum/common"
)

// Kind identifies a module variant.
type Kind int

const (
	KindSingle Kind = iota + 1
	KindBatched
	KindDistributed
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "STANDARD"
	case KindBatched:
		return "BATCHED"
	case KindDistributed:
		return "DISTRIBUTED_KEY"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Version names a deployed module contract.
type Version string

const (
	V1_0_0 Version = "V1_0_0"
	V1_0_1 Version = "V1_0_1"
)

var (
	DefaultSessionKeyManager    = common.HexToAddress("0x000002FbFfedd9B33F4E7156F2DE8D48945E7489")
	DefaultBatchedSessionRouter = common.HexToAddress("0x00000D09967410f8C76752A104c9848b57ebba55")

	sessionKeyManagerByVersion = map[Version]common.Address{
		V1_0_0: common.HexToAddress("0x000000456b395c4e107e0302553B90D1eF4a32e9"),
		V1_0_1: DefaultSessionKeyManager,
	}
	batchedRouterByVersion = map[Version]common.Address{
		V1_0_0: DefaultBatchedSessionRouter,
	}
)

// RawConfig is the caller's module configuration. Every field is optional
// except Store for the session key managers.
type RawConfig struct {
	ModuleAddress *common.Address
	Version       Version
	Store         sessions.Store
	Ledger        *merkle.Ledger
}

// Config is a resolved module configuration.
type Config struct {
	Kind    Kind
	Address common.Address
	// Version is empty when the address was supplied without one.
	Version Version
	Store   sessions.Store
	Ledger  *merkle.Ledger
}

// ResolveConfig validates raw and fills in defaults for kind. An explicit
// address wins over the default; an address and a version that disagree are
// rejected rather than silently reconciled.
func ResolveConfig(kind Kind, raw RawConfig) (Config, error) {
	var (
		table      map[Version]common.Address
		defaultVer Version
		defaultAdr common.Address
	)
	switch kind {
	case KindSingle, KindDistributed:
		table, defaultVer, defaultAdr = sessionKeyManagerByVersion, V1_0_1, DefaultSessionKeyManager
	case KindBatched:
		table, defaultVer, defaultAdr = batchedRouterByVersion, V1_0_0, DefaultBatchedSessionRouter
	default:
		return Config{}, &ConfigError{Field: "kind", Reason: kind.String()}
	}

	cfg := Config{Kind: kind, Store: raw.Store, Ledger: raw.Ledger}
	switch {
	case raw.Version != "":
		addr, ok := table[raw.Version]
		if !ok {
			return Config{}, &ConfigError{Field: "version", Reason: fmt.Sprintf("unknown %s version %q", kind, raw.Version)}
		}
		if raw.ModuleAddress != nil && *raw.ModuleAddress != addr {
			return Config{}, &ConfigError{
				Field:  "moduleAddress",
				Reason: fmt.Sprintf("%s does not match version %s (%s)", raw.ModuleAddress.Hex(), raw.Version, addr.Hex()),
			}
		}
		cfg.Address, cfg.Version = addr, raw.Version
	case raw.ModuleAddress != nil:
		if *raw.ModuleAddress == (common.Address{}) {
			return Config{}, &ConfigError{Field: "moduleAddress", Reason: "zero address"}
		}
		cfg.Address = *raw.ModuleAddress
		for v, a := range table {
			if a == cfg.Address {
				cfg.Version = v
			}
		}
	default:
		cfg.Address, cfg.Version = defaultAdr, defaultVer
	}

	if kind != KindBatched && cfg.Store == nil {
		return Config{}, &ConfigError{Field: "store", Reason: "required"}
	}
	if cfg.Ledger == nil {
		cfg.Ledger = merkle.NewLedger()
	}
	return cfg, nil
}
