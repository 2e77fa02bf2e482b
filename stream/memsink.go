package stream

import (
	"context"
	"sync"
)

// MemorySink accumulates Events in order; it is the Sink used by tests and
// by any in-process consumer that wants the full event list rather than a
// live transport.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

// NewMemorySink constructs an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Send appends event, returning an error if the sink has been closed.
func (s *MemorySink) Send(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSinkClosed
	}
	s.events = append(s.events, event)
	return nil
}

// Close marks the sink closed; subsequent Send calls fail.
func (s *MemorySink) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Events returns a copy of the events received so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

var errSinkClosed = sinkClosedError{}

type sinkClosedError struct{}

func (sinkClosedError) Error() string { return "stream: sink is closed" }
