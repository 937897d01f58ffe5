package serial

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/nerrad567/serial-mqtt-bridge/internal/infrastructure/config"
	"github.com/nerrad567/serial-mqtt-bridge/internal/transport"
)

// Logger is the logging interface used throughout the bridge.
// It is satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// BridgeOptions holds the collaborators for a bridge.
type BridgeOptions struct {
	// Config is the loaded configuration. Required.
	Config *config.Config

	// Broker is the broker capability. Required.
	Broker transport.Broker

	// Serial is the open serial device. Required.
	Serial transport.Serial

	// Logger is optional; nil discards logs.
	Logger Logger

	// Observer is optional; nil disables journal and telemetry.
	Observer Observer
}

// Bridge is the composition root and the single control loop.
type Bridge struct {
	broker  transport.Broker
	session *Session
	router  *Router
	logger  Logger

	messages   atomic.Uint64
	losses     atomic.Uint64
	reconnects atomic.Uint64
	counterObs *counter
}

// NewBridge creates a bridge. Call Start, then Run.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Broker == nil {
		return nil, fmt.Errorf("broker is required")
	}
	if opts.Serial == nil {
		return nil, fmt.Errorf("serial port is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	b := &Bridge{
		broker:     opts.Broker,
		logger:     logger,
		counterObs: &counter{},
	}
	observer := Observers{b.counterObs, opts.Observer}

	b.session = NewSession(opts.Broker, opts.Config, logger, observer)
	b.router = NewRouter(opts.Serial, opts.Broker, opts.Config.Topics, opts.Config.Serial.MaxRead, logger, observer)

	return b, nil
}

// Start connects the session. An error here is fatal.
func (b *Bridge) Start(ctx context.Context) error {
	return b.session.Connect(ctx)
}

// Run processes inbound events until shutdown or reconnect exhaustion.
//
// Cancelling ctx requests shutdown exactly as Shutdown does. Events still
// queued when shutdown is requested are discarded.
//
// Returns:
//   - nil on shutdown
//   - an error wrapping ErrReconnectExhausted if the broker could not be
//     reached again after a connection loss
func (b *Bridge) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, b.session.Shutdown)
	defer stop()

	events := b.broker.Consume()
	for {
		ev, ok := <-events
		if !ok {
			// The stream closes only on shutdown.
			return nil
		}

		switch ev.Kind {
		case transport.EventMessage:
			b.messages.Add(1)
			b.router.Dispatch(ctx, ev.Message)

		case transport.EventConnectionLost:
			b.losses.Add(1)
			b.session.DetectLoss(ctx, ev.Err)

			if err := b.session.Reconnect(ctx); err != nil {
				if errors.Is(err, ErrShutdown) {
					return nil
				}
				return err
			}
			b.reconnects.Add(1)

		default:
			b.logger.Warn("ignoring unknown transport event", "kind", ev.Kind.String())
		}
	}
}

// Shutdown unblocks Run. Safe from any goroutine, any number of times.
func (b *Bridge) Shutdown() {
	b.session.Shutdown()
}

// Close sends the final "offline" beacon and disconnects if still connected.
func (b *Bridge) Close(ctx context.Context) error {
	return b.session.Close(ctx)
}

// State returns the session state.
func (b *Bridge) State() State {
	return b.session.State()
}

// BridgeMetrics is a snapshot of bridge counters.
type BridgeMetrics struct {
	State           string
	Connected       bool
	Messages        uint64
	BytesTx         uint64
	BytesRx         uint64
	ConnectionLosts uint64
	Reconnects      uint64
}

// Metrics returns the current counters.
func (b *Bridge) Metrics() BridgeMetrics {
	return BridgeMetrics{
		State:           b.session.State().String(),
		Connected:       b.broker.IsConnected(),
		Messages:        b.messages.Load(),
		BytesTx:         b.counterObs.tx.Load(),
		BytesRx:         b.counterObs.rx.Load(),
		ConnectionLosts: b.losses.Load(),
		Reconnects:      b.reconnects.Load(),
	}
}

// counter tallies traffic bytes for Metrics.
type counter struct {
	tx atomic.Uint64
	rx atomic.Uint64
}

func (c *counter) SessionEvent(context.Context, SessionEvent) {}

func (c *counter) Traffic(_ context.Context, dir Direction, bytes int) {
	if bytes <= 0 {
		return
	}
	switch dir {
	case DirectionTx:
		c.tx.Add(uint64(bytes))
	case DirectionRx:
		c.rx.Add(uint64(bytes))
	}
}
