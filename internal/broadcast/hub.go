// Package broadcast implements the in-process pub/sub hub that pushes issue
// events to every connected viewer.
package broadcast

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/triagehub/triagehub/internal/metrics"
	"github.com/triagehub/triagehub/internal/model"
)

// Subscription is one viewer's registration with the hub. Events arrive on
// Events() in global publish order. The channel is closed when the
// subscription is torn down, either by Unsubscribe or because the viewer
// fell too far behind.
type Subscription struct {
	id uint64
	ch chan model.Event
}

// Events returns the viewer's receive channel.
func (s *Subscription) Events() <-chan model.Event { return s.ch }

// Hub fans events out to all current subscribers. Publish never blocks:
// a subscriber whose queue is full is dropped so one slow viewer cannot
// stall the pipeline or other viewers.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	log    zerolog.Logger
}

// NewHub creates a hub with the given per-subscriber queue depth.
func NewHub(buffer int, log zerolog.Logger) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
		log:    log,
	}
}

// Subscribe registers a new viewer. The viewer receives every event published
// after this call; there is no replay of history.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{id: h.nextID, ch: make(chan model.Event, h.buffer)}
	h.subs[sub.id] = sub
	return sub
}

// Unsubscribe deregisters a viewer and closes its channel. Safe to call
// multiple times and on already-dropped subscriptions.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(sub)
}

// Publish delivers the event to every subscriber. Callers must only publish
// after the corresponding store write has committed. Holding the hub lock for
// the whole fan-out gives every subscriber the same global event order.
func (h *Hub) Publish(evt model.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	metrics.EventsPublished.Inc()
	for _, sub := range h.subs {
		select {
		case sub.ch <- evt:
		default:
			// Queue full: the viewer is not keeping up. Tear it down; it can
			// reconnect and re-fetch state.
			h.log.Warn().Uint64("subscription", sub.id).Msg("dropping slow viewer")
			metrics.ViewersDropped.Inc()
			h.remove(sub)
		}
	}
}

// Viewers returns the number of active subscriptions.
func (h *Hub) Viewers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// remove must be called with h.mu held.
func (h *Hub) remove(sub *Subscription) {
	if _, ok := h.subs[sub.id]; !ok {
		return
	}
	delete(h.subs, sub.id)
	close(sub.ch)
}
