package kettle

import (
	"errors"
	"fmt"
)

// Failure categories surfaced by the transport clients. Everything here is a
// result, not a panic: codec and transport problems are converted to these
// errors at the client boundary and the coordinator only ever observes
// definite success or failure.
var (
	// ErrDeviceNotFound means discovery produced no usable handle for the
	// configured address.
	ErrDeviceNotFound = errors.New("kettle: device not found")

	// ErrConnectionFailed means every connection attempt was exhausted.
	ErrConnectionFailed = errors.New("kettle: connection failed")

	// ErrAuthenticationFailed means every authentication strategy was tried
	// and rejected on an otherwise healthy connection.
	ErrAuthenticationFailed = errors.New("kettle: authentication failed")

	// ErrNotConnected means a write was requested without an active
	// connection.
	ErrNotConnected = errors.New("kettle: not connected")

	// ErrTimeout is a transport timeout, distinct from an HTTP status error.
	ErrTimeout = errors.New("kettle: transport timeout")

	// ErrInvalidParameter rejects caller input before any wire activity.
	// This is the one category callers may treat as a programming error.
	ErrInvalidParameter = errors.New("kettle: invalid parameter")
)

// StatusError is a non-2xx reply from the kettle's HTTP CLI endpoint.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("kettle: cli endpoint returned status %d", e.Code)
}

func invalidParam(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}
