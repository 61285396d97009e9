package dan

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication is matched by every *AuthenticationError.
	ErrAuthentication = errors.New("dan: authentication failed")
	// ErrOwnerDeclined is returned by an OwnerWallet whose user refused to sign.
	ErrOwnerDeclined = errors.New("dan: owner declined")
	// ErrThresholdNotMet is returned when too few parties took part in a ceremony.
	ErrThresholdNotMet = errors.New("dan: threshold not met")
	// ErrMalformedResponse is matched by every *MalformedResponseError.
	ErrMalformedResponse = errors.New("dan: malformed response")
	// ErrInvalidReceipt is returned when a key generation receipt fails verification.
	ErrInvalidReceipt = errors.New("dan: invalid key generation receipt")
)

// AuthenticationReason distinguishes why authentication failed.
type AuthenticationReason string

const (
	// ReasonOwnerDeclined means the owner's wallet refused the authorization.
	ReasonOwnerDeclined AuthenticationReason = "owner_declined"
	// ReasonNoWallet means no wallet able to sign the authorization was supplied.
	ReasonNoWallet AuthenticationReason = "no_wallet"
	// ReasonRejected means the network rejected the presented credential.
	ReasonRejected AuthenticationReason = "rejected"
)

// AuthenticationError reports an owner or ephemeral credential that could not
// be produced or was not accepted.
type AuthenticationError struct {
	Reason AuthenticationReason
	// Status is the HTTP status for ReasonRejected.
	Status  int
	Message string
	Err     error
}

func (e *AuthenticationError) Error() string {
	msg := fmt.Sprintf("dan: authentication failed (%s)", e.Reason)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

func (e *AuthenticationError) Is(target error) bool { return target == ErrAuthentication }

// RemoteError is a non-success response the client has no specific error for.
type RemoteError struct {
	Status  int
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("dan: remote error %d %s: %s", e.Status, e.Code, e.Message)
}

// MalformedResponseError reports a success response missing required fields
// or carrying values that cannot be decoded.
type MalformedResponseError struct {
	Field  string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("dan: malformed response: %s: %s", e.Field, e.Reason)
}

func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }
