package sessions

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is matched by every *SessionNotFoundError.
	ErrSessionNotFound = errors.New("sessions: session not found")
	// ErrInvalidSearch is returned when a lookup carries no search criteria.
	ErrInvalidSearch = errors.New("sessions: empty search parameter")
	// ErrDuplicateSession is returned when a record reuses an existing session ID.
	ErrDuplicateSession = errors.New("sessions: duplicate session id")
	// ErrSignerNotFound is returned when no signer is stored for a public key.
	ErrSignerNotFound = errors.New("sessions: signer not found")
	// ErrInvalidStatus is returned for a status outside the known set.
	ErrInvalidStatus = errors.New("sessions: invalid status")
	// ErrClosed is returned by stores after Close.
	ErrClosed = errors.New("sessions: store closed")
)

// SessionNotFoundError reports a lookup that matched zero records, or more than
// one record for a session ID lookup.
type SessionNotFoundError struct {
	Param   SearchParam
	Matches int
}

func (e *SessionNotFoundError) Error() string {
	if e.Matches > 1 {
		return fmt.Sprintf("sessions: session not found: %s matched %d records", e.Param, e.Matches)
	}
	return fmt.Sprintf("sessions: session not found: %s", e.Param)
}

func (e *SessionNotFoundError) Is(target error) bool { return target == ErrSessionNotFound }
