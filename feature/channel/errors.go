package channel

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the channel services.
var (
	// ErrChannelExists is returned when a (hotel, channel name) pair is
	// already registered.
	ErrChannelExists = errors.New("channel already registered for hotel")
	// ErrChannelNotFound is returned for unknown channel ids.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrConnectorUnknown is returned when no connector implementation is
	// registered under the channel's name.
	ErrConnectorUnknown = errors.New("no connector registered for channel")
	// ErrMappingNotFound is returned when a room type has no mapping for
	// the channel.
	ErrMappingNotFound = errors.New("room type mapping not found")
	// ErrBookingNotFound is returned for unknown booking ids.
	ErrBookingNotFound = errors.New("booking not found")
	// ErrOversellRejected is returned by the ledger when accepting a
	// reservation would exceed the physical-stock ceiling.
	ErrOversellRejected = errors.New("oversell rejected")
	// ErrParityViolation marks an inventory record whose sell rate diverges
	// from the direct channel while rate parity is enabled. The push is
	// withheld, never sent.
	ErrParityViolation = errors.New("rate parity violation")
)

// TransientError wraps a connector failure worth retrying (network errors,
// timeouts, 5xx responses).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient connector error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// AuthError wraps a connector authentication or authorization failure.
// It is never retried; the channel moves to the error state and requires
// reconnection.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("connector auth error during %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ValidationError is a record-level payload problem. It fails the record,
// not the batch.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	var a *AuthError
	return errors.As(err, &a)
}
