package transport

import (
	"context"
	"time"
)

// MQTT delivery levels.
const (
	QoSAtMostOnce  byte = 0
	QoSAtLeastOnce byte = 1
	QoSExactlyOnce byte = 2
)

// Message is an inbound broker message. Payload is owned by the receiver.
type Message struct {
	Topic   string
	Payload []byte
}

// EventKind distinguishes the items carried on a Broker event stream.
type EventKind int

const (
	// EventMessage carries an inbound Message.
	EventMessage EventKind = iota

	// EventConnectionLost reports that the broker connection dropped.
	// Err holds the reason reported by the client library, if any.
	EventConnectionLost
)

// String returns the event kind name for logging.
func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventConnectionLost:
		return "connection_lost"
	default:
		return "unknown"
	}
}

// Event is one item from a Broker's event stream.
type Event struct {
	Kind    EventKind
	Message Message
	Err     error
}

// Will is the last-will message registered with the broker at connect time.
type Will struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// ConnectOptions is the connect request sent to the broker.
type ConnectOptions struct {
	// CleanSession discards any previous session state on the broker.
	CleanSession bool

	// RetryMinInterval and RetryMaxInterval form the automatic-retry hint
	// window passed to the client library.
	RetryMinInterval time.Duration
	RetryMaxInterval time.Duration

	Username string
	Password string

	// Will is registered with the broker and delivered if the client
	// disappears without a clean disconnect. Nil means no will.
	Will *Will
}

// Broker is the publish/subscribe capability consumed by the bridge.
//
// Implementations must allow StopConsuming to be called from any goroutine,
// concurrently with message delivery. All other methods are driven from the
// bridge's single control loop.
type Broker interface {
	// Connect performs the initial connect handshake.
	Connect(ctx context.Context, opts ConnectOptions) error

	// Reconnect repeats the connect handshake using the last options.
	Reconnect(ctx context.Context) error

	// Subscribe registers interest in topic. Matching messages are delivered
	// on the Consume stream.
	Subscribe(topic string, qos byte) error

	// Publish sends payload to topic and waits for the delivery handshake
	// required by qos.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Consume returns the event stream. It is closed by StopConsuming and
	// never otherwise.
	Consume() <-chan Event

	// IsConnected reports whether the session is currently live.
	IsConnected() bool

	// Disconnect closes the session cleanly (no last will is delivered).
	Disconnect()

	// StopConsuming closes the event stream. Safe to call more than once
	// and from any goroutine.
	StopConsuming()
}

// Serial is the byte-stream capability over the serial device.
type Serial interface {
	// Write sends p to the device, returning the number of bytes written.
	Write(p []byte) (int, error)

	// Read fills p with at most len(p) bytes. It returns after the
	// configured read timeout even if fewer bytes (possibly zero) arrived;
	// a short read is not an error.
	Read(p []byte) (int, error)
}
