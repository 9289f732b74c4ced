// Package eventbus delivers notifications to in-process observers and forwards them to message brokers.
package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dukex/convergence/pkg/events"
)

// Emitter is what components use to announce state changes.
type Emitter interface {
	Emit(ctx context.Context, notification events.Notification)
}

type Handler func(ctx context.Context, notification events.Notification)

type subscription struct {
	id      uint64
	kind    events.EventType
	handler Handler
}

// Hub is a synchronous in-process emitter. Handlers run on the emitting goroutine
// in subscription order; a panicking handler is logged and does not affect the others.
type Hub struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger.With("module", "event-hub"),
	}
}

// Subscribe registers a handler for every notification kind.
func (h *Hub) Subscribe(handler Handler) func() {
	return h.add("", handler)
}

// Handle registers a handler for a single notification kind.
func (h *Hub) Handle(kind events.EventType, handler Handler) func() {
	return h.add(kind, handler)
}

func (h *Hub) add(kind events.EventType, handler Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.subs = append(h.subs, subscription{id: id, kind: kind, handler: handler})

	var once sync.Once

	return func() {
		once.Do(func() { h.remove(id) })
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, s := range h.subs {
		if s.id == id {
			h.subs = append(h.subs[:i:i], h.subs[i+1:]...)

			return
		}
	}
}

func (h *Hub) Emit(ctx context.Context, notification events.Notification) {
	h.mu.RLock()
	subs := make([]subscription, len(h.subs))
	copy(subs, h.subs)
	h.mu.RUnlock()

	kind := notification.GetType()

	for _, s := range subs {
		if s.kind != "" && s.kind != kind {
			continue
		}

		h.dispatch(ctx, s, notification)
	}
}

func (h *Hub) dispatch(ctx context.Context, s subscription, notification events.Notification) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.ErrorContext(ctx, "Notification handler panicked",
				"event_type", notification.GetType(),
				"subscription", s.id,
				"panic", r)
		}
	}()

	s.handler(ctx, notification)
}

// Subscribers returns the number of registered handlers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs)
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Emit(context.Context, events.Notification) {}
