package serial

import (
	"context"
	"time"
)

// SessionEventKind identifies a broker session lifecycle event.
type SessionEventKind string

// Session event kinds.
const (
	EventConnected          SessionEventKind = "connected"
	EventConnectionLost     SessionEventKind = "connection_lost"
	EventReconnectAttempt   SessionEventKind = "reconnect_attempt"
	EventReconnected        SessionEventKind = "reconnected"
	EventReconnectExhausted SessionEventKind = "reconnect_exhausted"
	EventShutdown           SessionEventKind = "shutdown"
)

// SessionEvent describes one lifecycle transition of the broker session.
type SessionEvent struct {
	Kind     SessionEventKind
	ClientID string
	Attempt  int   // reconnect attempt number, 0 when not applicable
	Err      error // cause, if any
	At       time.Time
}

// Detail returns the error text, or "" when there is no error.
func (e SessionEvent) Detail() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Direction is the flow of bytes relative to the serial device.
type Direction string

// Traffic directions.
const (
	DirectionTx Direction = "tx" // broker → device
	DirectionRx Direction = "rx" // device → broker
)

// Observer receives session events and traffic counts from the control loop.
//
// Methods are called synchronously on the control loop and must return
// quickly. Implementations must not call back into the bridge.
type Observer interface {
	SessionEvent(ctx context.Context, ev SessionEvent)
	Traffic(ctx context.Context, dir Direction, bytes int)
}

// Observers fans out to every non-nil observer in order.
type Observers []Observer

// SessionEvent implements Observer.
func (o Observers) SessionEvent(ctx context.Context, ev SessionEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.SessionEvent(ctx, ev)
		}
	}
}

// Traffic implements Observer.
func (o Observers) Traffic(ctx context.Context, dir Direction, bytes int) {
	for _, obs := range o {
		if obs != nil {
			obs.Traffic(ctx, dir, bytes)
		}
	}
}

// TelemetryWriter is a non-blocking time-series sink.
// It is satisfied by *influxdb.Client.
type TelemetryWriter interface {
	WriteBridgeEvent(clientID, event string, attempt int)
	WriteTraffic(clientID, direction string, bytes int)
}

// TelemetryObserver adapts a TelemetryWriter to Observer.
type TelemetryObserver struct {
	writer   TelemetryWriter
	clientID string
}

// NewTelemetryObserver tags every point with clientID.
func NewTelemetryObserver(w TelemetryWriter, clientID string) *TelemetryObserver {
	return &TelemetryObserver{writer: w, clientID: clientID}
}

// SessionEvent implements Observer.
func (t *TelemetryObserver) SessionEvent(_ context.Context, ev SessionEvent) {
	t.writer.WriteBridgeEvent(t.clientID, string(ev.Kind), ev.Attempt)
}

// Traffic implements Observer.
func (t *TelemetryObserver) Traffic(_ context.Context, dir Direction, bytes int) {
	t.writer.WriteTraffic(t.clientID, string(dir), bytes)
}
