package events

import (
	"context"
	"sync"
)

// Bus is an in-process Publisher fanning events out to subscribers.
// Delivery is synchronous and best-effort; a slow subscriber blocks the
// publishing operation, so handlers must be cheap.
type Bus struct {
	mu       sync.RWMutex
	handlers []func(Event)
	closed   bool
}

// NewBus creates an empty in-process event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all subsequent events.
func (b *Bus) Subscribe(handler func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Publish implements Publisher.
func (b *Bus) Publish(_ context.Context, event Event) error {
	b.mu.RLock()
	handlers := b.handlers
	closed := b.closed
	b.mu.RUnlock()

	if closed {
		return nil
	}
	for _, h := range handlers {
		h(event)
	}
	return nil
}

// Close implements Publisher.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = nil
	return nil
}
