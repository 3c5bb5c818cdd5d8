package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"botbridge/internal/domain"
)

// MessageReceived is the event name fired for every normalized inbound
// message.
const MessageReceived = "message_received"

// Category groups events for fallback purposes: everything fired while
// handling a platform webhook falls under CategoryWebhook, everything fired
// from the synthetic event endpoint under CategoryEvent.
type Category string

const (
	CategoryWebhook Category = "webhook"
	CategoryEvent   Category = "event"
)

// Event is the payload handed to every handler of a dispatch.
type Event struct {
	Name     string
	Category Category
	Update   *domain.Update
	Session  domain.Session
	Data     map[string]any
}

// Handler processes one dispatched event.
type Handler func(ctx context.Context, ev Event) error

// Router maps event names to ordered handler lists, with one optional
// fallback per category for names nobody registered for.
type Router struct {
	logger *slog.Logger

	mu        sync.RWMutex
	handlers  map[string][]Handler
	fallbacks map[Category]Handler
}

// NewRouter creates an empty router.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger:    logger,
		handlers:  make(map[string][]Handler),
		fallbacks: make(map[Category]Handler),
	}
}

// On registers a handler for an event name. Handlers run in registration
// order.
func (r *Router) On(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = append(r.handlers[name], h)
}

// Fallback registers the handler invoked when an event of the given
// category has no handlers for its name. Without one, Trigger returns a
// DispatchError so the transport layer can answer the external caller with
// an explicit error instead of a silent success.
func (r *Router) Fallback(cat Category, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks[cat] = h
}

// HandlerCount reports how many handlers are registered for a name.
func (r *Router) HandlerCount(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[name])
}

// Trigger invokes every handler registered for ev.Name in order, each with
// the same event. With zero handlers it runs the category fallback, or
// returns a DispatchError when no fallback is registered either.
func (r *Router) Trigger(ctx context.Context, ev Event) error {
	r.mu.RLock()
	handlers := r.handlers[ev.Name]
	fallback := r.fallbacks[ev.Category]
	r.mu.RUnlock()

	if len(handlers) == 0 {
		if fallback != nil {
			return fallback(ctx, ev)
		}
		r.logger.Warn("event with no registered handlers",
			"event", ev.Name, "category", string(ev.Category))
		return &domain.DispatchError{Category: string(ev.Category), Event: ev.Name}
	}

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			r.logger.Error("event handler failed", "event", ev.Name, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
