package serial

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/serial-mqtt-bridge/internal/infrastructure/config"
	"github.com/nerrad567/serial-mqtt-bridge/internal/transport"
)

// Availability beacon payloads.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Retry hint window passed to the broker transport on connect.
const (
	retryHintMin = 1 * time.Second
	retryHintMax = 5 * time.Second
)

// State is the broker session state.
type State int

// Session states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Session supervises the broker connection.
//
// Subscriptions are reissued after every successful reconnect, because the
// session is opened with clean-session set and the broker forgets them.
// "online" is published again for the same reason: the broker delivered the
// last will when the connection dropped.
type Session struct {
	broker    transport.Broker
	brokerCfg config.BrokerConfig
	topics    config.TopicsConfig
	policy    config.ReconnectConfig
	logger    Logger
	observer  Observer

	state   State
	stateMu sync.RWMutex

	stop      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

// NewSession creates a session controller. It does not connect.
func NewSession(broker transport.Broker, cfg *config.Config, logger Logger, observer Observer) *Session {
	if logger == nil {
		logger = nopLogger{}
	}
	if observer == nil {
		observer = Observers(nil)
	}
	return &Session{
		broker:    broker,
		brokerCfg: cfg.Broker,
		topics:    cfg.Topics,
		policy:    cfg.Reconnect,
		logger:    logger,
		observer:  observer,
		stop:      make(chan struct{}),
	}
}

// State returns the current session state.
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// ConnectOptions builds the broker connect request: clean session, the
// retry hint window, credentials, and an "offline" last will on the
// availability topic at QoS 1.
func (s *Session) ConnectOptions() transport.ConnectOptions {
	return transport.ConnectOptions{
		CleanSession:     true,
		RetryMinInterval: retryHintMin,
		RetryMaxInterval: retryHintMax,
		Username:         s.brokerCfg.Username,
		Password:         s.brokerCfg.Password,
		Will: &transport.Will{
			Topic:    s.topics.Availability,
			Payload:  []byte(PayloadOffline),
			QoS:      transport.QoSAtLeastOnce,
			Retained: s.topics.AvailabilityRetained,
		},
	}
}

// Connect establishes the session: connect, subscribe to the transmit and
// receive-control topics at QoS 2, then publish "online" at QoS 1.
//
// Parameters:
//   - ctx: Context bounding the connect handshake
//
// Returns:
//   - error: wraps ErrConnectFailed; fatal at startup
func (s *Session) Connect(ctx context.Context) error {
	s.setState(StateConnecting)

	if err := s.broker.Connect(ctx, s.ConnectOptions()); err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	if err := s.subscribe(); err != nil {
		s.broker.Disconnect()
		s.setState(StateDisconnected)
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	if err := s.announce(PayloadOnline); err != nil {
		s.broker.Disconnect()
		s.setState(StateDisconnected)
		return fmt.Errorf("%w: publishing %s: %w", ErrConnectFailed, PayloadOnline, err)
	}

	s.setState(StateConnected)
	s.logger.Info("connected to MQTT broker",
		"broker", s.brokerCfg.Address,
		"client_id", s.brokerCfg.ClientID)
	s.notify(ctx, SessionEvent{Kind: EventConnected})

	return nil
}

// DetectLoss records that the broker connection dropped.
func (s *Session) DetectLoss(ctx context.Context, cause error) {
	s.setState(StateReconnecting)
	s.logger.Warn("MQTT connection lost", "error", cause)
	s.notify(ctx, SessionEvent{Kind: EventConnectionLost, Err: cause})
}

// Reconnect retries the broker connection at a fixed interval.
//
// The first attempt runs immediately; each failure is followed by one
// interval of sleep, except the last. Shutdown or ctx cancellation ends the
// wait early, so a shutdown is never delayed by more than one attempt.
//
// Returns:
//   - nil once connected, subscribed and announced
//   - ErrShutdown if shutdown was requested while retrying
//   - ErrReconnectExhausted after reconnect.max_attempts failures
func (s *Session) Reconnect(ctx context.Context) error {
	s.setState(StateReconnecting)

	attempts := max(s.policy.MaxAttempts, 1)
	var lastErr error

	attemptCtx, cancel := s.stopContext(ctx)
	defer cancel()

	for attempt := 1; attempt <= attempts; attempt++ {
		if s.stopping(ctx) {
			return ErrShutdown
		}

		s.notify(ctx, SessionEvent{Kind: EventReconnectAttempt, Attempt: attempt})

		err := s.broker.Reconnect(attemptCtx)
		if err == nil {
			err = s.subscribe()
		}
		if err != nil && s.stopping(ctx) {
			return ErrShutdown
		}
		if err == nil {
			s.setState(StateConnected)
			if perr := s.announce(PayloadOnline); perr != nil {
				s.logger.Error("failed to publish availability", "payload", PayloadOnline, "error", perr)
			}
			s.logger.Info("reconnected to MQTT broker", "attempt", attempt)
			s.notify(ctx, SessionEvent{Kind: EventReconnected, Attempt: attempt})
			return nil
		}

		lastErr = err
		s.logger.Warn("reconnect attempt failed",
			"attempt", attempt,
			"max_attempts", attempts,
			"error", err)

		if attempt == attempts {
			break
		}
		if err := s.wait(ctx, s.policy.Interval); err != nil {
			return err
		}
	}

	s.setState(StateDisconnected)
	s.logger.Error("giving up on MQTT broker", "max_attempts", attempts, "error", lastErr)
	s.notify(ctx, SessionEvent{Kind: EventReconnectExhausted, Attempt: attempts, Err: lastErr})

	return fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, attempts, lastErr)
}

// Shutdown stops the inbound stream, unblocking the control loop. It does
// not disconnect. Safe to call concurrently and more than once.
func (s *Session) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.broker.StopConsuming()
		s.logger.Info("shutdown requested")
	})
}

// Close publishes "offline" and disconnects if the session is still
// connected; otherwise it does nothing to the broker. Only the first call
// has any effect.
//
// Returns:
//   - error: The "offline" publish failure, if any
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if s.broker.IsConnected() {
			if err := s.announce(PayloadOffline); err != nil {
				s.closeErr = fmt.Errorf("publishing %s: %w", PayloadOffline, err)
			}
			s.logger.Info("disconnecting from MQTT broker")
			s.broker.Disconnect()
		}
		s.setState(StateDisconnected)
		s.notify(ctx, SessionEvent{Kind: EventShutdown, Err: s.closeErr})
	})
	return s.closeErr
}

func (s *Session) subscribe() error {
	for _, topic := range []string{s.topics.Transmit, s.topics.ReceiveControl} {
		if err := s.broker.Subscribe(topic, transport.QoSExactlyOnce); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		s.logger.Debug("subscribed", "topic", topic)
	}
	return nil
}

func (s *Session) announce(payload string) error {
	return s.broker.Publish(s.topics.Availability, []byte(payload),
		transport.QoSAtLeastOnce, s.topics.AvailabilityRetained)
}

func (s *Session) notify(ctx context.Context, ev SessionEvent) {
	ev.ClientID = s.brokerCfg.ClientID
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	s.observer.SessionEvent(ctx, ev)
}

// stopping reports whether shutdown was requested or ctx is done.
func (s *Session) stopping(ctx context.Context) bool {
	select {
	case <-s.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// stopContext returns a child of ctx that Shutdown also cancels, so an
// in-flight broker handshake is abandoned as soon as shutdown is requested.
func (s *Session) stopContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// wait sleeps for d unless shutdown or ctx ends it first.
func (s *Session) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-s.stop:
		return ErrShutdown
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrShutdown, ctx.Err())
	}
}
