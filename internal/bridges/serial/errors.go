package serial

import "errors"

// Domain-specific errors for the serial bridge.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectFailed is returned when the initial broker session cannot be
	// established (unreachable broker, rejected credentials, failed subscribe).
	ErrConnectFailed = errors.New("serial bridge: connect failed")

	// ErrReconnectExhausted is returned when every reconnect attempt failed.
	ErrReconnectExhausted = errors.New("serial bridge: reconnect attempts exhausted")

	// ErrShutdown is returned when an operation is abandoned because
	// shutdown was requested.
	ErrShutdown = errors.New("serial bridge: shutting down")

	// ErrInvalidReadRequest is returned when a receive-control payload is not
	// an unsigned decimal byte count.
	ErrInvalidReadRequest = errors.New("serial bridge: invalid read request")

	// ErrReadTooLarge is returned when a read request exceeds serial.max_read.
	ErrReadTooLarge = errors.New("serial bridge: read request exceeds maximum")
)
