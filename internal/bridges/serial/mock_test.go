package serial

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/serial-mqtt-bridge/internal/infrastructure/config"
	"github.com/nerrad567/serial-mqtt-bridge/internal/transport"
)

// MockBroker implements transport.Broker for testing.
type MockBroker struct {
	mu sync.Mutex

	connectErr    error
	connectOpts   transport.ConnectOptions
	connectCalls  int
	reconnectErrs []error // consumed in order, then success
	reconnectFail error   // when set, every reconnect fails
	reconnectHang bool    // when set, reconnect blocks until ctx is done
	reconnects    int
	subscribeErr  error
	publishErr    map[string]error

	subscriptions []mockSubscription
	published     []mockPublish
	connected     bool
	disconnects   int
	stopCalls     int

	events   chan transport.Event
	stopOnce sync.Once
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type mockSubscription struct {
	Topic string
	QoS   byte
}

func NewMockBroker() *MockBroker {
	return &MockBroker{
		publishErr: make(map[string]error),
		events:     make(chan transport.Event, 32),
	}
}

func (m *MockBroker) Connect(_ context.Context, opts transport.ConnectOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectCalls++
	m.connectOpts = opts
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

func (m *MockBroker) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	m.reconnects++
	hang := m.reconnectHang
	m.mu.Unlock()

	if hang {
		<-ctx.Done()
		return ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reconnectFail != nil {
		return m.reconnectFail
	}
	if len(m.reconnectErrs) > 0 {
		err := m.reconnectErrs[0]
		m.reconnectErrs = m.reconnectErrs[1:]
		if err != nil {
			return err
		}
	}
	m.connected = true
	return nil
}

func (m *MockBroker) Subscribe(topic string, qos byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subscriptions = append(m.subscriptions, mockSubscription{Topic: topic, QoS: qos})
	return nil
}

func (m *MockBroker) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.publishErr[topic]; err != nil {
		return err
	}
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  append([]byte(nil), payload...),
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockBroker) Consume() <-chan transport.Event {
	return m.events
}

func (m *MockBroker) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockBroker) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
	m.connected = false
}

func (m *MockBroker) StopConsuming() {
	m.mu.Lock()
	m.stopCalls++
	m.mu.Unlock()
	m.stopOnce.Do(func() { close(m.events) })
}

// Deliver queues an inbound message.
func (m *MockBroker) Deliver(topic string, payload []byte) {
	m.events <- transport.Event{
		Kind:    transport.EventMessage,
		Message: transport.Message{Topic: topic, Payload: payload},
	}
}

// DropConnection simulates the broker going away.
func (m *MockBroker) DropConnection(cause error) {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	m.events <- transport.Event{Kind: transport.EventConnectionLost, Err: cause}
}

func (m *MockBroker) SetReconnectErrors(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnectErrs = errs
}

func (m *MockBroker) SetReconnectAlwaysFails(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnectFail = err
}

// SetReconnectHangs makes every reconnect block until its context ends,
// like a handshake with an unresponsive broker.
func (m *MockBroker) SetReconnectHangs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnectHang = true
}

func (m *MockBroker) SetPublishError(topic string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr[topic] = err
}

func (m *MockBroker) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

// PublishedTo returns messages published to topic, in order.
func (m *MockBroker) PublishedTo(topic string) []mockPublish {
	var out []mockPublish
	for _, p := range m.GetPublished() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockBroker) GetSubscriptions() []mockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockSubscription(nil), m.subscriptions...)
}

func (m *MockBroker) ConnectOptions() transport.ConnectOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectOpts
}

func (m *MockBroker) ReconnectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnects
}

func (m *MockBroker) Disconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

func (m *MockBroker) StopCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalls
}

// LoopbackSerial returns written bytes on read.
type LoopbackSerial struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	writes   [][]byte
	reads    []int // requested lengths
	writeErr error
	readErr  error
}

func (s *LoopbackSerial) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	s.writes = append(s.writes, append([]byte(nil), p...))
	return s.buf.Write(p)
}

func (s *LoopbackSerial) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads = append(s.reads, len(p))
	if s.readErr != nil {
		return 0, s.readErr
	}
	if len(p) == 0 || s.buf.Len() == 0 {
		return 0, nil // timeout
	}
	return s.buf.Read(p)
}

func (s *LoopbackSerial) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.writes...)
}

func (s *LoopbackSerial) Reads() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.reads...)
}

// recordingObserver captures everything it is told.
type recordingObserver struct {
	mu      sync.Mutex
	events  []SessionEvent
	traffic []trafficRecord
}

type trafficRecord struct {
	Dir   Direction
	Bytes int
}

func (o *recordingObserver) SessionEvent(_ context.Context, ev SessionEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *recordingObserver) Traffic(_ context.Context, dir Direction, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.traffic = append(o.traffic, trafficRecord{Dir: dir, Bytes: n})
}

func (o *recordingObserver) Kinds() []SessionEventKind {
	o.mu.Lock()
	defer o.mu.Unlock()
	kinds := make([]SessionEventKind, len(o.events))
	for i, ev := range o.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

func (o *recordingObserver) TrafficRecords() []trafficRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]trafficRecord(nil), o.traffic...)
}

// recordingLogger counts log calls by level.
type recordingLogger struct {
	mu     sync.Mutex
	warns  []string
	errors []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errors...)
}

func (l *recordingLogger) Warns() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warns...)
}

// testConfig uses the topic names from the end-to-end scenario.
func testConfig() *config.Config {
	return &config.Config{
		Broker: config.BrokerConfig{
			Address:  "tcp://localhost:1883",
			ClientID: "serialbridge-test",
			Username: "bridge",
			Password: "secret",
		},
		Topics: config.TopicsConfig{
			Transmit:       "tx",
			Receive:        "rx",
			ReceiveControl: "rxctl",
			Availability:   "avail",
		},
		Serial: config.SerialConfig{
			Device:  "/dev/null",
			Baud:    9600,
			Timeout: time.Second,
			MaxRead: 1024,
		},
		Reconnect: config.ReconnectConfig{
			Interval:    time.Millisecond,
			MaxAttempts: 3,
		},
	}
}

var errBoom = errors.New("boom")
