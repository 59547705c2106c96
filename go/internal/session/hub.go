package session

import "sync"

// Hub lets any number of presentation consumers observe snapshot changes
// without touching the transport. Notifications carry value snapshots, so a
// subscriber can never mutate shared state. There is no replay: a consumer
// subscribing late only sees changes from then on.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]func(Snapshot)
	nextID int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]func(Snapshot))}
}

// Subscribe registers a consumer and returns its unsubscribe function.
func (h *Hub) Subscribe(fn func(Snapshot)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

// Publish fans a snapshot out to every subscriber. Callers serialize
// publishes, so subscribers observe changes in order.
func (h *Hub) Publish(snap Snapshot) {
	h.mu.Lock()
	subs := make([]func(Snapshot), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
