package serialport

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.bug.st/serial"

	"github.com/nerrad567/serial-mqtt-bridge/internal/infrastructure/config"
	"github.com/nerrad567/serial-mqtt-bridge/internal/transport"
)

// Compile-time interface check.
var _ transport.Serial = (*Port)(nil)

// defaultReadTimeout applies when the configuration leaves the timeout unset.
const defaultReadTimeout = time.Second

// device is the subset of serial.Port that Port drives.
type device interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Port is an open serial device.
//
// Thread Safety:
//   - All methods are safe for concurrent use; device access is serialised.
type Port struct {
	name    string
	dev     device
	breaker *gobreaker.CircuitBreaker

	mu     sync.Mutex
	closed bool

	logger   Logger
	loggerMu sync.RWMutex
}

// Open opens and configures the serial device.
//
// Parameters:
//   - cfg: Serial configuration (device path, baud, framing, read timeout)
//
// Returns:
//   - *Port: Open port ready for I/O
//   - error: wraps ErrInvalidMode or ErrOpenFailed
func Open(cfg config.SerialConfig) (*Port, error) {
	mode, err := buildMode(cfg)
	if err != nil {
		return nil, err
	}

	p, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, cfg.Device, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("%w: setting read timeout: %w", ErrOpenFailed, err)
	}

	return newPort(cfg.Device, p, cfg.Breaker), nil
}

// newPort wraps an open device, adding a circuit breaker if configured.
func newPort(name string, dev device, bc config.BreakerConfig) *Port {
	port := &Port{
		name: name,
		dev:  dev,
	}

	if bc.FailureThreshold > 0 {
		threshold := uint32(bc.FailureThreshold) //nolint:gosec // Validated positive by config
		port.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     bc.ResetTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				if logger := port.getLogger(); logger != nil {
					logger.Warn("serial circuit breaker state changed",
						"device", name,
						"from", from.String(),
						"to", to.String())
				}
			},
		})
	}

	return port
}

// buildMode maps configuration onto a go.bug.st/serial mode.
func buildMode(cfg config.SerialConfig) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: cfg.DataBits,
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}
	if mode.DataBits < 5 || mode.DataBits > 8 {
		return nil, fmt.Errorf("%w: data bits %d", ErrInvalidMode, cfg.DataBits)
	}

	switch strings.ToLower(cfg.Parity) {
	case "", "none":
		mode.Parity = serial.NoParity
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	case "mark":
		mode.Parity = serial.MarkParity
	case "space":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("%w: parity %q", ErrInvalidMode, cfg.Parity)
	}

	switch cfg.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("%w: stop bits %d", ErrInvalidMode, cfg.StopBits)
	}

	return mode, nil
}

// Write writes all of p to the device.
//
// Returns:
//   - int: Bytes written
//   - error: ErrNotOpen, ErrCircuitOpen, or the device error
func (p *Port) Write(b []byte) (int, error) {
	var written int
	err := p.do(func(dev device) error {
		for written < len(b) {
			n, err := dev.Write(b[written:])
			written += n
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("serialport: short write %d of %d bytes", written, len(b))
			}
		}
		return nil
	})
	return written, err
}

// Read reads up to len(b) bytes, returning early when the read timeout
// elapses. A zero-length buffer returns immediately without touching the
// device.
//
// Returns:
//   - int: Bytes read (0 on timeout)
//   - error: ErrNotOpen, ErrCircuitOpen, or the device error
func (p *Port) Read(b []byte) (int, error) {
	if len(b) == 0 {
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return 0, ErrNotOpen
		}
		return 0, nil
	}

	var read int
	err := p.do(func(dev device) error {
		n, err := dev.Read(b)
		read = n
		return err
	})
	return read, err
}

// do runs fn against the device, through the breaker when one is configured.
func (p *Port) do(fn func(dev device) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrNotOpen
	}

	var err error
	if p.breaker == nil {
		err = fn(p.dev)
	} else {
		_, err = p.breaker.Execute(func() (interface{}, error) {
			return nil, fn(p.dev)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %s", ErrCircuitOpen, p.name)
		}
	}

	if err != nil && IsDisconnect(err) {
		if logger := p.getLogger(); logger != nil {
			logger.Error("serial device disconnected", "device", p.name, "error", err)
		}
	}

	return err
}

// Close releases the device. Safe to call multiple times.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	return p.dev.Close()
}

// Name returns the device path.
func (p *Port) Name() string {
	return p.name
}

// BreakerState returns the circuit breaker state, or "disabled".
func (p *Port) BreakerState() string {
	if p.breaker == nil {
		return "disabled"
	}
	return p.breaker.State().String()
}

// SetLogger sets a logger for breaker transitions and device loss.
func (p *Port) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

func (p *Port) getLogger() Logger {
	p.loggerMu.RLock()
	defer p.loggerMu.RUnlock()
	return p.logger
}

// IsDisconnect reports whether err means the device went away, as opposed
// to a configuration or permission problem.
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}

	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
			return true
		default:
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "input/output error") ||
		strings.Contains(msg, "no such device") ||
		strings.Contains(msg, "device not configured") ||
		strings.Contains(msg, "broken pipe")
}
