package permission

import (
	"errors"
	"fmt"
)

var (
	// ErrEncoding is matched by every *EncodingError via errors.Is.
	ErrEncoding = errors.New("permission: encoding error")
	// ErrInvalidSelector is matched by every *InvalidSelectorError via errors.Is.
	ErrInvalidSelector = errors.New("permission: invalid function selector")
)

// EncodingError reports a value that cannot be represented in the fixed
// on-chain byte layout.
type EncodingError struct {
	Field  string
	Reason string
	Err    error
}

func (e *EncodingError) Error() string {
	msg := fmt.Sprintf("permission: cannot encode %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EncodingError) Unwrap() error { return e.Err }

func (e *EncodingError) Is(target error) bool { return target == ErrEncoding }

func encodingErr(field, reason string) error {
	return &EncodingError{Field: field, Reason: reason}
}

// InvalidSelectorError reports a malformed function signature or literal selector.
type InvalidSelectorError struct {
	Input  string
	Reason string
}

func (e *InvalidSelectorError) Error() string {
	return fmt.Sprintf("permission: invalid function selector %q: %s", e.Input, e.Reason)
}

func (e *InvalidSelectorError) Is(target error) bool { return target == ErrInvalidSelector }
