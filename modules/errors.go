package modules

import (
	"errors"
	"fmt"
)

var (
	// ErrNotImplemented is returned by operations session modules do not support.
	ErrNotImplemented = errors.New("modules: not implemented")
	// ErrSessionRevoked is returned when asked to sign for a revoked session.
	ErrSessionRevoked = errors.New("modules: session revoked")
	// ErrMissingSigner is returned when a local session signer is required but absent.
	ErrMissingSigner = errors.New("modules: session signer not provided")
	// ErrMissingSession is returned when neither a session ID nor a validation
	// module identifies the session.
	ErrMissingSession = errors.New("modules: sessionID or sessionValidationModule must be provided")
	// ErrNotDistributed is returned when a distributed-key operation targets a
	// session without dan module info.
	ErrNotDistributed = errors.New("modules: session has no distributed key")
	// ErrMissingUserOp is returned when the operation being signed is required but absent.
	ErrMissingUserOp = errors.New("modules: user operation not provided")

	ErrChainMismatch = errors.New("modules: chain mismatch")
	ErrBatchMismatch = errors.New("modules: batch mismatch")
	ErrInvalidConfig = errors.New("modules: invalid configuration")
)

// ChainMismatchError reports a session bound to a different chain than the
// operation being signed.
type ChainMismatchError struct {
	SessionID    string
	SessionChain uint64
	TargetChain  uint64
}

func (e *ChainMismatchError) Error() string {
	return fmt.Sprintf("modules: session %s is bound to chain %d, operation targets chain %d", e.SessionID, e.SessionChain, e.TargetChain)
}

func (e *ChainMismatchError) Is(target error) bool { return target == ErrChainMismatch }

// BatchMismatchError reports a batch whose session count differs from the
// number of calls in the user operation.
type BatchMismatchError struct {
	Sessions int
	Calls    int
}

func (e *BatchMismatchError) Error() string {
	return fmt.Sprintf("modules: %d batch sessions for %d calls", e.Sessions, e.Calls)
}

func (e *BatchMismatchError) Is(target error) bool { return target == ErrBatchMismatch }

// ConfigError reports a module configuration that cannot be resolved.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("modules: invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }
