package serialport

import "errors"

// Domain-specific errors for serial port operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrOpenFailed is returned when the device cannot be opened or configured.
	ErrOpenFailed = errors.New("serialport: open failed")

	// ErrNotOpen is returned when using a port after Close.
	ErrNotOpen = errors.New("serialport: port not open")

	// ErrCircuitOpen is returned while the circuit breaker rejects requests.
	ErrCircuitOpen = errors.New("serialport: circuit breaker open")

	// ErrInvalidMode is returned for unsupported data bits, parity or stop bits.
	ErrInvalidMode = errors.New("serialport: invalid mode")
)
