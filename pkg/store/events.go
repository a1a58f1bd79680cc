package store

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventKind labels a runtime lifecycle event.
type EventKind string

const (
	// EventStoreRegistered fires when a store instance is constructed.
	EventStoreRegistered EventKind = "store_registered"

	// EventStoreReleased fires when a store instance is closed.
	EventStoreReleased EventKind = "store_released"

	// EventSnapshot fires each time a store publishes a new snapshot.
	EventSnapshot EventKind = "snapshot"

	// EventDispatchStarted fires when a dispatch is recorded.
	EventDispatchStarted EventKind = "dispatch_started"

	// EventDispatchSettled fires when a dispatch reaches a terminal outcome.
	EventDispatchSettled EventKind = "dispatch_settled"
)

// Event is one runtime lifecycle notification. Snapshot carries the store's
// new value for EventSnapshot and the initial value for
// EventStoreRegistered; it is nil otherwise.
type Event struct {
	Kind     EventKind `json:"kind"`
	StoreID  string    `json:"store_id"`
	Action   string    `json:"action,omitempty"`
	Token    uint64    `json:"token,omitempty"`
	Outcome  string    `json:"outcome,omitempty"`
	Error    string    `json:"error,omitempty"`
	Snapshot any       `json:"snapshot,omitempty"`
	Time     time.Time `json:"time"`
}

// Hub fans runtime events out to subscribers. It is the seam observability
// surfaces (the devtools server, custom sinks) attach to. Delivery is
// synchronous on the publisher's goroutine; subscribers must not block.
type Hub struct {
	mu   sync.RWMutex
	subs map[uint64]func(Event)
	next atomic.Uint64
}

// NewHub creates an empty event hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[uint64]func(Event)),
	}
}

// Subscribe registers fn for every subsequent event. The returned function
// removes the subscription.
func (h *Hub) Subscribe(fn func(Event)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	id := h.next.Add(1)

	h.mu.Lock()
	h.subs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// Publish delivers ev to every subscriber. Time is stamped if unset.
func (h *Hub) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	h.mu.RLock()
	subs := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}
