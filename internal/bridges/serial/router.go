package serial

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/serial-mqtt-bridge/internal/infrastructure/config"
	"github.com/nerrad567/serial-mqtt-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/serial-mqtt-bridge/internal/transport"
)

// Router dispatches inbound broker messages to the serial device.
//
// All failures are handled here: they are logged, the message is dropped,
// and the caller carries on with the next message.
type Router struct {
	serial   transport.Serial
	broker   transport.Broker
	topics   config.TopicsConfig
	maxRead  int
	logger   Logger
	observer Observer
}

// NewRouter creates a router. maxRead caps a single read request; 0 means
// no cap.
func NewRouter(serial transport.Serial, broker transport.Broker, topics config.TopicsConfig, maxRead int, logger Logger, observer Observer) *Router {
	if logger == nil {
		logger = nopLogger{}
	}
	if observer == nil {
		observer = Observers(nil)
	}
	return &Router{
		serial:   serial,
		broker:   broker,
		topics:   topics,
		maxRead:  maxRead,
		logger:   logger,
		observer: observer,
	}
}

// Dispatch handles one inbound message according to its topic.
// Messages on any other topic are ignored.
func (r *Router) Dispatch(ctx context.Context, msg transport.Message) {
	switch msg.Topic {
	case r.topics.Transmit:
		r.transmit(ctx, msg.Payload)
	case r.topics.ReceiveControl:
		r.receive(ctx, msg.Payload)
	default:
		r.logger.Debug("ignoring message on unexpected topic", "topic", msg.Topic)
	}
}

// transmit writes the payload to the device unchanged.
func (r *Router) transmit(ctx context.Context, payload []byte) {
	r.logger.Info("tx message", "topic", r.topics.Transmit, "bytes", len(payload))
	r.logger.Debug("serial write", "payload", logging.Hex(payload))

	n, err := r.serial.Write(payload)
	if err != nil {
		r.logger.Error("failed to write to serial port", "bytes", len(payload), "error", err)
		return
	}

	r.observer.Traffic(ctx, DirectionTx, n)
}

// receive reads up to the requested byte count and publishes what arrived.
func (r *Router) receive(ctx context.Context, payload []byte) {
	n, err := ParseReadRequest(payload, r.maxRead)
	if err != nil {
		r.logger.Warn("dropping read request", "topic", r.topics.ReceiveControl, "error", err)
		return
	}
	r.logger.Info("rx control message", "requested", n)

	buf := make([]byte, n)
	got, err := r.serial.Read(buf)
	if err != nil {
		r.logger.Error("failed to read from serial port", "requested", n, "error", err)
		return
	}
	r.logger.Info("received bytes from serial port", "requested", n, "bytes", got)
	r.logger.Debug("serial read", "payload", logging.Hex(buf[:got]))

	if err := r.broker.Publish(r.topics.Receive, buf[:got], transport.QoSAtLeastOnce, false); err != nil {
		r.logger.Error("failed to publish received bytes", "topic", r.topics.Receive, "bytes", got, "error", err)
		return
	}

	r.observer.Traffic(ctx, DirectionRx, got)
}

// ParseReadRequest parses a receive-control payload as a decimal byte count.
//
// The payload must be the number alone: no whitespace, sign other than a
// single leading '+', or other bases. Zero is valid.
//
// Parameters:
//   - payload: Raw message payload
//   - maxRead: Upper bound on the count; 0 disables the bound
//
// Returns:
//   - int: The requested byte count
//   - error: wraps ErrInvalidReadRequest or ErrReadTooLarge
func ParseReadRequest(payload []byte, maxRead int) (int, error) {
	text := strings.TrimPrefix(string(payload), "+")
	if text == "" || text[0] == '+' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidReadRequest, payload)
	}

	n, err := strconv.ParseUint(text, 10, strconv.IntSize-1)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidReadRequest, payload, err)
	}

	if maxRead > 0 && n > uint64(maxRead) {
		return 0, fmt.Errorf("%w: %d > %d", ErrReadTooLarge, n, maxRead)
	}

	return int(n), nil
}
