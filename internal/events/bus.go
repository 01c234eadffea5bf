package events

import "sync"

// Handler receives events for the types it subscribed to. Handlers run
// synchronously on the emitting goroutine; a handler that blocks delays
// every other subscriber of that event type, so handlers that do real work
// (SSE fan-out, persistence) should hand off to their own goroutine.
type Handler func(*Event)

// Bus is an in-process publish/subscribe hub. It has no delivery
// guarantees beyond best-effort, synchronous fan-out to whichever
// handlers were subscribed at emit time.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers handler to run on every future Emit of eventType.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Emit constructs an Event and synchronously invokes every handler
// currently subscribed to eventType.
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) *Event {
	event := newEvent(eventType, module, data)

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[eventType]))
	copy(handlers, b.handlers[eventType])
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
	return event
}
