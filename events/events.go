// Package events notifies subscribers of workflow changes. Dispatch is
// synchronous: one command runs per process invocation, and handlers
// such as the status-hook writer must finish before the process exits.
package events

import (
	"context"
	"sync"
)

// Event types published by the controller.
const (
	TypeStageChanged   = "stage_changed"
	TypeItemChecked    = "item_checked"
	TypeRetryExhausted = "retry_exhausted"
	TypeReviewRecorded = "review_recorded"
	TypeStatusRendered = "status_rendered"
)

// Event is one workflow notification.
type Event struct {
	Type  string
	Stage string
	Data  map[string]interface{}
}

// Handler processes a published event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus manages subscriptions and synchronous publishing.
type Bus struct {
	handlers map[string][]Handler
	mu       sync.RWMutex
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeFunc registers a function as a handler for an event type.
func (b *Bus) SubscribeFunc(eventType string, fn func(ctx context.Context, event Event) error) {
	b.Subscribe(eventType, HandlerFunc(fn))
}

// HasSubscribers reports whether any handler is registered for an event
// type.
func (b *Bus) HasSubscribers(eventType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType]) > 0
}

// Publish invokes every handler for the event in subscription order and
// collects their errors. Handler errors never abort the publishing
// operation.
func (b *Bus) Publish(ctx context.Context, event Event) []error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.Type]...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h.Handle(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
