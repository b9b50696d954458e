package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Handler receives published events.
type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Subscription identifies a registered handler.
type Subscription struct {
	ID      uint64
	Pattern Topic
}

type subscription struct {
	Subscription
	handler Handler
}

// Stats holds delivery counters.
type Stats struct {
	Published uint64
	Delivered uint64
	Failed    uint64
	Panicked  uint64
}

// Bus dispatches events synchronously, in subscription order, on the
// publisher's goroutine. A nil *Bus drops every event.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID atomic.Uint64

	published atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	panicked  atomic.Uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers handler for every topic matching pattern.
func (b *Bus) Subscribe(pattern Topic, handler Handler) Subscription {
	sub := subscription{
		Subscription: Subscription{ID: b.nextID.Add(1), Pattern: pattern},
		handler:      handler,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
	return sub.Subscription
}

// SubscribeFunc registers fn for every topic matching pattern.
func (b *Bus) SubscribeFunc(pattern Topic, fn func(ctx context.Context, ev Event) error) Subscription {
	return b.Subscribe(pattern, HandlerFunc(fn))
}

// Unsubscribe removes a subscription. It reports whether it was registered.
func (b *Bus) Unsubscribe(sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.ID == sub.ID {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Publish delivers ev to every matching handler. Handler errors and panics are
// logged and never reach the publisher.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if b == nil || ev == nil {
		return
	}
	b.published.Add(1)

	topic := ev.Topic()
	for _, sub := range b.matching(topic) {
		if err := b.dispatch(ctx, sub, ev); err != nil {
			b.failed.Add(1)
			slog.ErrorContext(ctx, "Event handler failed",
				"topic", string(topic),
				"subscription", sub.ID,
				"error", err)
			continue
		}
		b.delivered.Add(1)
	}
}

// Stats returns the delivery counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Failed:    b.failed.Load(),
		Panicked:  b.panicked.Load(),
	}
}

// matching copies the matching subscriptions so handlers may subscribe or
// unsubscribe while an event is delivered.
func (b *Bus) matching(topic Topic) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []subscription
	for _, s := range b.subs {
		if topic.Matches(s.Pattern) {
			out = append(out, s)
		}
	}
	return out
}

func (b *Bus) dispatch(ctx context.Context, sub subscription, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.panicked.Add(1)
			slog.ErrorContext(ctx, "Event handler panicked",
				"topic", string(ev.Topic()),
				"subscription", sub.ID,
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return sub.handler.Handle(ctx, ev)
}
