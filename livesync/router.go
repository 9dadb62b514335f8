package livesync

import (
	gosync "sync"
)

// Handler consumes one application-level envelope. Handlers run on the
// connection manager's read loop, one envelope at a time; they must not block.
type Handler func(Envelope)

// Router fans every dispatched envelope out to all registered handlers.
// Handlers are independent: a panic in one does not prevent delivery to the
// rest, and no delivery order across handlers is guaranteed — only the
// arrival order of envelopes within a single handler.
type Router struct {
	mu       gosync.Mutex
	nextID   uint64
	handlers map[uint64]Handler
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{handlers: make(map[uint64]Handler)}
}

// AddHandler registers a handler and returns its unsubscribe function.
// Unsubscribing is idempotent and drops the router's reference to the
// handler, so short-lived views don't leak through the registry.
func (r *Router) AddHandler(h Handler) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.handlers[id] = h
	n := len(r.handlers)
	r.mu.Unlock()

	sub("router").Debug("handler added", "id", id, "handlers", n)

	return func() {
		r.mu.Lock()
		delete(r.handlers, id)
		r.mu.Unlock()
	}
}

// Dispatch delivers the envelope to every currently registered handler.
// The handler set is snapshotted first: a handler that unsubscribes (or
// subscribes another) during dispatch cannot invalidate the iteration, and
// may or may not see the in-flight envelope.
func (r *Router) Dispatch(ev Envelope) {
	r.mu.Lock()
	snapshot := make([]Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		snapshot = append(snapshot, h)
	}
	r.mu.Unlock()

	for _, h := range snapshot {
		invoke(h, ev)
	}
}

// Len returns the number of registered handlers.
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

func invoke(h Handler, ev Envelope) {
	defer func() {
		if p := recover(); p != nil {
			sub("router").Error("handler panicked", "type", ev.Type, "panic", p)
		}
	}()
	h(ev)
}
