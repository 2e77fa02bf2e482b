// Package hooks provides a synchronous, fan-out event bus that the Graph
// Executor publishes internal lifecycle events to — node transitions,
// handoffs, loop-prevention caps, checkpoint writes, and run
// suspend/complete/fail. Client-facing SSE events (token, tool_start,
// agent_change, and so on) are emitted directly to the request's stream.Sink
// by the agentnode and router packages instead of traveling through this
// bus, since a Sink is scoped to one in-flight request while a Bus is shared
// for the process's lifetime; subscribers registered here are for
// process-wide diagnostics such as structured logging.
package hooks

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Bus publishes runtime events to registered subscribers in a fan-out
// pattern. The bus is thread-safe and supports concurrent Publish, Register,
// and Close operations.
//
// Events are delivered synchronously in the publisher's goroutine, and
// iteration stops at the first subscriber error. This fail-fast behavior lets
// a critical subscriber halt execution if it encounters an unrecoverable
// error.
type Bus interface {
	// Publish delivers event to every currently registered subscriber, in
	// registration order, stopping at the first subscriber error.
	Publish(ctx context.Context, event Event) error

	// Register adds sub to the bus and returns a Subscription that can be
	// closed to unregister it. Register returns an error if sub is nil.
	Register(sub Subscriber) (Subscription, error)
}

// Subscriber reacts to published events.
type Subscriber interface {
	// HandleEvent processes a single event. Returning an error stops the Bus
	// from delivering this event to any remaining subscriber.
	HandleEvent(ctx context.Context, event Event) error
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, event Event) error

// HandleEvent calls f.
func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscription represents an active registration on a Bus.
type Subscription interface {
	// Close removes the subscriber from the bus. Idempotent and thread-safe;
	// always returns nil.
	Close() error
}

type bus struct {
	mu          sync.RWMutex
	subscribers map[*subscription]Subscriber
	nextSeq     uint64
}

type subscription struct {
	bus  *bus
	once sync.Once
	seq  uint64
}

// NewBus constructs an empty, ready-to-use Bus.
func NewBus() Bus {
	return &bus{subscribers: make(map[*subscription]Subscriber)}
}

func (b *bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	regs := make([]*subscription, 0, len(b.subscribers))
	for s := range b.subscribers {
		regs = append(regs, s)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].seq < regs[j].seq })
	subs := make([]Subscriber, 0, len(regs))
	for _, s := range regs {
		subs = append(subs, b.subscribers[s])
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (b *bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("hooks: subscriber is required")
	}
	b.mu.Lock()
	b.nextSeq++
	s := &subscription{bus: b, seq: b.nextSeq}
	b.subscribers[s] = sub
	b.mu.Unlock()
	return s, nil
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		s.bus.mu.Unlock()
	})
	return nil
}
