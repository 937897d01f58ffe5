package journal

import (
	"context"
	"time"

	"github.com/nerrad567/serial-mqtt-bridge/internal/bridges/serial"
)

// writeTimeout bounds each journal insert so a slow disk cannot stall the
// bridge control loop.
const writeTimeout = 2 * time.Second

// Logger is the subset of logging.Logger used by the recorder.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
}

// Recorder is a serial.Observer that journals session events.
// Traffic is not journalled.
type Recorder struct {
	repo   Repository
	logger Logger
}

var _ serial.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder writing to repo. logger may be nil.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// SessionEvent implements serial.Observer.
//
// The insert is detached from ctx cancellation so the final shutdown event
// is still recorded after the process context is cancelled.
func (r *Recorder) SessionEvent(ctx context.Context, ev serial.SessionEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	err := r.repo.Create(ctx, &Entry{
		Kind:      string(ev.Kind),
		ClientID:  ev.ClientID,
		Attempt:   ev.Attempt,
		Detail:    ev.Detail(),
		CreatedAt: ev.At,
	})
	if err != nil && r.logger != nil {
		r.logger.Warn("failed to journal session event", "kind", string(ev.Kind), "error", err)
	}
}

// Traffic implements serial.Observer.
func (r *Recorder) Traffic(context.Context, serial.Direction, int) {}
