// Package notify provides the in-process publish/subscribe primitive the
// rest of the library is built on. Subscriptions are either persistent or
// one-shot; dispatch is synchronous on the publisher's goroutine.
package notify

import (
	"sync"
	"time"
)

// Handler receives published events.
type Handler func(Event)

// Subscription represents a cancelable hub subscription.
type Subscription interface {
	Close() error
}

// Hub routes events to subscribed handlers on the same process.
type Hub struct {
	mu       sync.Mutex
	handlers map[EventType]map[uint64]*subscriber
	nextID   uint64
	closed   bool
}

type subscriber struct {
	fn   Handler
	once bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		handlers: make(map[EventType]map[uint64]*subscriber),
	}
}

// Subscribe registers a persistent handler for the given event type.
// The handler is invoked for every matching event until the subscription
// is closed or the hub itself is closed.
func (h *Hub) Subscribe(t EventType, fn Handler) Subscription {
	return h.add(t, fn, false)
}

// Once registers a one-shot handler: it fires for at most one matching
// event and is removed before it is invoked.
func (h *Hub) Once(t EventType, fn Handler) Subscription {
	return h.add(t, fn, true)
}

func (h *Hub) add(t EventType, fn Handler, once bool) Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || fn == nil {
		return noopSubscription{}
	}

	h.nextID++
	id := h.nextID
	if h.handlers[t] == nil {
		h.handlers[t] = make(map[uint64]*subscriber)
	}
	h.handlers[t][id] = &subscriber{fn: fn, once: once}

	return &hubSubscription{
		closeFn: func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.remove(t, id)
		},
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(t EventType, id uint64) {
	if set, ok := h.handlers[t]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(h.handlers, t)
		}
	}
}

// Publish delivers the event to every current subscriber of its type.
// One-shot subscribers are removed before their handler runs, so a handler
// that publishes recursively cannot retrigger itself. Handlers run on the
// caller's goroutine, outside the hub lock.
func (h *Hub) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	set := h.handlers[event.Type]
	fns := make([]Handler, 0, len(set))
	for id, sub := range set {
		fns = append(fns, sub.fn)
		if sub.once {
			h.remove(event.Type, id)
		}
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

// Emit is shorthand for publishing a payload under a type.
func (h *Hub) Emit(t EventType, payload any) {
	h.Publish(Event{Type: t, Payload: payload})
}

// SubscriberCount reports the number of active subscriptions for a type.
func (h *Hub) SubscriberCount(t EventType) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handlers[t])
}

// Close detaches every subscriber and rejects further subscriptions.
// Publishing to a closed hub is a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.handlers = make(map[EventType]map[uint64]*subscriber)
}

type hubSubscription struct {
	once    sync.Once
	closeFn func()
}

func (s *hubSubscription) Close() error {
	s.once.Do(s.closeFn)
	return nil
}

type noopSubscription struct{}

func (noopSubscription) Close() error { return nil }
