package mqtt

import (
	"sync"

	"github.com/nerrad567/serial-mqtt-bridge/internal/transport"
)

// backlogWarnEvery is how often, in queued events, a growing backlog is
// reported.
const backlogWarnEvery = 1024

// eventStream decouples paho's callback goroutines from the consumer.
//
// push never blocks: events are appended to an unbounded FIFO that the
// forwarder drains into out. Paho delivers messages from the goroutine that
// also reads acknowledgements and ping responses off the socket, so a slow
// consumer must never stall it.
//
// Producers never touch out directly, so it is closed exactly once by the
// forwarder without racing a send. After stop is closed, producers return
// immediately and queued events are discarded.
type eventStream struct {
	mu    sync.Mutex
	queue []transport.Event

	// wake has capacity one; a pending signal means the queue may be non-empty.
	wake     chan struct{}
	out      chan transport.Event
	stop     chan struct{}
	stopOnce sync.Once
}

// newEventStream creates a stream and starts its forwarder.
func newEventStream() *eventStream {
	s := &eventStream{
		wake: make(chan struct{}, 1),
		out:  make(chan transport.Event),
		stop: make(chan struct{}),
	}
	go s.forward()
	return s
}

// forward moves queued events to out in order until stop is closed, then
// closes out.
func (s *eventStream) forward() {
	defer close(s.out)

	for {
		ev, ok := s.pop()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}

		select {
		case s.out <- ev:
		case <-s.stop:
			return
		}
	}
}

// pop removes the oldest queued event.
func (s *eventStream) pop() (transport.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return transport.Event{}, false
	}
	ev := s.queue[0]
	s.queue[0] = transport.Event{}
	s.queue = s.queue[1:]
	if len(s.queue) == 0 {
		s.queue = nil
	}
	return ev, true
}

// push queues an event without blocking.
//
// Returns:
//   - depth: Queue length after the push (0 if dropped)
//   - ok: false if the stream was stopped and the event discarded
func (s *eventStream) push(ev transport.Event) (depth int, ok bool) {
	if s.stopped() {
		return 0, false
	}

	s.mu.Lock()
	s.queue = append(s.queue, ev)
	depth = len(s.queue)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return depth, true
}

// pending returns the number of queued events not yet taken by the consumer.
func (s *eventStream) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// close stops the stream. Safe to call more than once.
func (s *eventStream) close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// stopped reports whether close has been called.
func (s *eventStream) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}
