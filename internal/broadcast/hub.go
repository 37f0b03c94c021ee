package broadcast

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/stockplus/kisfeed/internal/model"
)

// Hub is the multicast distribution point between the session's frame
// handler (sole producer) and any number of independent consumers. Every
// published quote is delivered to all currently attached subscribers, each
// with its own bounded ring, so one slow consumer cannot stall the others.
type Hub struct {
	capacity int

	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscriber

	statsMu   sync.Mutex
	published int64
	rejected  int64
}

// Subscriber is one attached consumer with a private bounded buffer.
type Subscriber struct {
	id   uuid.UUID
	ring *Ring[model.Quote]
}

// ID returns the subscriber's unique identity.
func (s *Subscriber) ID() uuid.UUID { return s.id }

// Receive blocks for the next quote; returns false once detached and drained.
func (s *Subscriber) Receive() (model.Quote, bool) { return s.ring.Receive() }

// TryReceive returns the next quote without blocking.
func (s *Subscriber) TryReceive() (model.Quote, bool) { return s.ring.TryReceive() }

// Stats returns this subscriber's buffer counters.
func (s *Subscriber) Stats() RingStats { return s.ring.Stats() }

// NewHub creates a hub whose subscribers buffer up to capacity quotes each.
func NewHub(capacity int) *Hub {
	if capacity < 1 {
		capacity = 1
	}
	return &Hub{
		capacity: capacity,
		subs:     make(map[uuid.UUID]*Subscriber),
	}
}

// Subscribe attaches a new consumer.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		id:   uuid.New(),
		ring: NewRing[model.Quote](h.capacity),
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()

	return sub
}

// Unsubscribe detaches a consumer and closes its buffer. Detaching one
// subscriber never affects delivery to the others.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	delete(h.subs, sub.id)
	h.mu.Unlock()

	sub.ring.Close()
}

// Publish delivers a quote to every attached subscriber. A subscriber whose
// buffer is full fails that delivery (nothing is evicted) while the rest
// still receive the quote; Publish returns the joined failures so the caller
// can log them.
func (h *Hub) Publish(q model.Quote) error {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	h.statsMu.Lock()
	h.published++
	h.statsMu.Unlock()

	var errs []error
	for _, s := range subs {
		if err := s.ring.Send(q); err != nil && !errors.Is(err, ErrClosed) {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		h.statsMu.Lock()
		h.rejected += int64(len(errs))
		h.statsMu.Unlock()
		return errors.Join(errs...)
	}
	return nil
}

// Close detaches every subscriber and closes their buffers. Used at
// shutdown; consumers observe it as a normal drain-then-stop.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uuid.UUID]*Subscriber)
	h.mu.Unlock()

	for _, s := range subs {
		s.ring.Close()
	}
}

// SubscriberCount returns the number of attached consumers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Stats returns hub-level counters.
func (h *Hub) Stats() HubStats {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	return HubStats{
		Published:   h.published,
		Rejected:    h.rejected,
		Subscribers: h.SubscriberCount(),
	}
}

// HubStats contains hub counters.
type HubStats struct {
	Published   int64
	Rejected    int64
	Subscribers int
}
