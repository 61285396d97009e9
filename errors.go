package biconomy

import (
	"errors"
	"fmt"

	"github.com/blockchain-hcj/biconomy-client-sdk/modules"
)

var (
	// ErrChainMismatch is matched by chain conflicts in configuration and by
	// *ChainMismatchError.
	ErrChainMismatch = modules.ErrChainMismatch
	// ErrBatchMismatch is matched by *BatchMismatchError.
	ErrBatchMismatch = modules.ErrBatchMismatch
	// ErrInvalidConfig is matched by every *ConfigError.
	ErrInvalidConfig = errors.New("biconomy: invalid configuration")
	// ErrNoSessions is returned when a leaf index is resolved against an empty store.
	ErrNoSessions = errors.New("biconomy: no sessions in store")
	// ErrDistributedUnavailable is returned by distributed-key operations on a
	// client configured without a threshold network client.
	ErrDistributedUnavailable = errors.New("biconomy: distributed account network not configured")
	// ErrLeafIndex is returned for an explicit leaf index outside the store.
	ErrLeafIndex = errors.New("biconomy: leaf index out of range")
)

type (
	ChainMismatchError = modules.ChainMismatchError
	BatchMismatchError = modules.BatchMismatchError
)

// ConfigError reports a client configuration that cannot be resolved.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("biconomy: invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }
