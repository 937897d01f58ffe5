package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/serial-mqtt-bridge/internal/infrastructure/config"
	"github.com/nerrad567/serial-mqtt-bridge/internal/transport"
)

// Compile-time interface check.
var _ transport.Broker = (*Client)(nil)

// Client wraps paho.mqtt.golang and implements transport.Broker.
//
// Inbound messages and connection loss are delivered on a single event
// stream (see Consume). The client never reconnects on its own; callers
// decide when to call Reconnect.
//
// Thread Safety:
//   - StopConsuming, IsConnected and HealthCheck are safe from any goroutine.
//   - Connect, Reconnect, Subscribe, Publish and Disconnect are expected to be
//     driven by a single owner but do not corrupt state if called concurrently.
type Client struct {
	cfg config.BrokerConfig

	// client is created on Connect and reused by Reconnect.
	client   pahomqtt.Client
	request  transport.ConnectOptions
	clientMu sync.RWMutex

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	stream *eventStream

	// logger for error logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// NewClient creates an unconnected client for the configured broker.
// The event stream exists from construction so no message delivered
// between subscribe and the first Consume call is lost.
func NewClient(cfg config.BrokerConfig) *Client {
	return &Client{
		cfg:    cfg,
		stream: newEventStream(),
	}
}

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds paho options from config and the connect request
//  2. Registers message and connection-lost callbacks feeding the event stream
//  3. Performs the connect handshake, bounded by ctx and the connect timeout
//
// Parameters:
//   - ctx: Context for cancellation
//   - req: Connect request (clean session, credentials, will, retry hint)
//
// Returns:
//   - error: wraps ErrConnectionFailed if the broker is unreachable or
//     rejects the request
func (c *Client) Connect(ctx context.Context, req transport.ConnectOptions) error {
	opts, err := buildClientOptions(c.cfg, req)
	if err != nil {
		return err
	}

	opts.SetDefaultPublishHandler(c.handleMessage)
	opts.SetConnectionLostHandler(c.handleConnectionLost)

	client := pahomqtt.NewClient(opts)

	c.clientMu.Lock()
	c.client = client
	c.request = req
	c.clientMu.Unlock()

	return c.connect(ctx, client)
}

// Reconnect repeats the connect handshake with the options from the last
// Connect call. Subscriptions are not restored here.
func (c *Client) Reconnect(ctx context.Context) error {
	c.clientMu.RLock()
	client := c.client
	c.clientMu.RUnlock()

	if client == nil {
		return ErrNeverConnected
	}

	if client.IsConnectionOpen() {
		c.setConnected(true)
		return nil
	}

	return c.connect(ctx, client)
}

// connect runs the paho handshake and records the result.
func (c *Client) connect(ctx context.Context, client pahomqtt.Client) error {
	timeout := c.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	token := client.Connect()
	if err := waitToken(ctx, token, timeout); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.setConnected(true)
	return nil
}

// handleMessage feeds an inbound publish into the event stream.
//
// With OrderMatters set, paho calls this on the goroutine that reads the
// socket, so it must return without waiting for the consumer.
func (c *Client) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())

	depth, ok := c.stream.push(transport.Event{
		Kind: transport.EventMessage,
		Message: transport.Message{
			Topic:   msg.Topic(),
			Payload: payload,
		},
	})

	logger := c.getLogger()
	if logger == nil {
		return
	}
	switch {
	case !ok:
		logger.Warn("MQTT message dropped after consumer stopped", "topic", msg.Topic())
	case depth%backlogWarnEvery == 0:
		logger.Warn("MQTT inbound backlog growing", "pending", depth)
	}
}

// handleConnectionLost is called by paho when the connection drops.
func (c *Client) handleConnectionLost(_ pahomqtt.Client, err error) {
	c.setConnected(false)

	if _, ok := c.stream.push(transport.Event{Kind: transport.EventConnectionLost, Err: err}); !ok {
		return
	}
	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}
}

// Consume returns the event stream. The channel is closed by StopConsuming.
func (c *Client) Consume() <-chan transport.Event {
	return c.stream.out
}

// StopConsuming closes the event stream, unblocking any consumer.
// Safe to call multiple times and from any goroutine.
func (c *Client) StopConsuming() {
	c.stream.close()
}

// Disconnect gracefully disconnects from the MQTT broker.
// The broker discards the last will on a clean disconnect.
func (c *Client) Disconnect() {
	c.clientMu.RLock()
	client := c.client
	c.clientMu.RUnlock()

	if client == nil {
		return
	}

	// Disconnect with quiesce period for pending operations
	client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
}

// HealthCheck verifies the MQTT connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	connected := c.connected
	c.connMu.RUnlock()

	if !connected {
		return false
	}

	c.clientMu.RLock()
	client := c.client
	c.clientMu.RUnlock()

	return client != nil && client.IsConnectionOpen()
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

// SetLogger sets a logger for connection and delivery warnings.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// waitToken waits for a paho token, bounded by ctx and timeout.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
