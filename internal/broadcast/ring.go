package broadcast

import (
	"errors"
	"sync"
)

// Errors returned by Ring.Send.
var (
	ErrBufferFull = errors.New("broadcast buffer full")
	ErrClosed     = errors.New("broadcast buffer closed")
)

// Ring is a thread-safe bounded ring buffer. Unlike a drop-oldest queue,
// sending into a full ring fails: for this fan-out point backpressure must be
// visible, not silently absorbed by evicting unread items.
type Ring[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool

	// Stats
	totalSent     int64
	totalReceived int64
	rejected      int64
}

// NewRing creates a ring with the given fixed capacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	r := &Ring[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Send adds an item. Returns ErrBufferFull when the ring is at capacity and
// ErrClosed after Close; nothing is ever evicted to make room.
func (r *Ring[T]) Send(item T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.count == r.capacity {
		r.rejected++
		return ErrBufferFull
	}

	r.buf[r.tail] = item
	r.tail = (r.tail + 1) % r.capacity
	r.count++
	r.totalSent++

	r.cond.Signal()
	return nil
}

// Receive removes and returns an item, blocking until one is available or
// the ring is closed. Returns false once closed and drained.
func (r *Ring[T]) Receive() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.count == 0 && !r.closed {
		r.cond.Wait()
	}

	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.take(), true
}

// TryReceive removes an item without blocking.
func (r *Ring[T]) TryReceive() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.take(), true
}

// take pops the head. Must be called with the lock held and count > 0.
func (r *Ring[T]) take() T {
	item := r.buf[r.head]
	var zero T
	r.buf[r.head] = zero // clear reference for GC
	r.head = (r.head + 1) % r.capacity
	r.count--
	r.totalReceived++
	return item
}

// Close closes the ring. Pending items remain receivable; further sends fail.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.cond.Broadcast()
}

// Len returns the number of buffered items.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Stats returns ring counters.
func (r *Ring[T]) Stats() RingStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RingStats{
		Count:         r.count,
		Capacity:      r.capacity,
		TotalSent:     r.totalSent,
		TotalReceived: r.totalReceived,
		Rejected:      r.rejected,
	}
}

// RingStats contains ring buffer counters.
type RingStats struct {
	Count         int
	Capacity      int
	TotalSent     int64
	TotalReceived int64
	Rejected      int64
}
