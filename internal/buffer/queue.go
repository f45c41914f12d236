// Package buffer provides a bounded FIFO queue that grows on demand.
package buffer

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrFull is returned by Push when the queue is at its maximum capacity.
	ErrFull = errors.New("buffer: queue full")

	// ErrClosed is returned by Push after Close and by Pop once a closed queue is empty.
	ErrClosed = errors.New("buffer: queue closed")
)

// Queue is a thread-safe ring buffer. It doubles its capacity when it is
// 70% full and never grows beyond maxCapacity.
type Queue[T any] struct {
	mu          sync.Mutex
	ring        []T
	head        int
	size        int
	maxCapacity int
	closed      bool

	// ready holds one token while the queue is non-empty or closed.
	ready chan struct{}

	stats Stats
}

// Stats reports queue counters.
type Stats struct {
	Len      int
	Capacity int
	Pushed   int64
	Popped   int64
	Rejected int64
	Resizes  int
}

// New creates a queue with the given initial and maximum capacity.
// A maxCapacity below initialCapacity is raised to initialCapacity.
func New[T any](initialCapacity, maxCapacity int) *Queue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	if maxCapacity < initialCapacity {
		maxCapacity = initialCapacity
	}
	return &Queue[T]{
		ring:        make([]T, initialCapacity),
		maxCapacity: maxCapacity,
		ready:       make(chan struct{}, 1),
	}
}

// Push appends an item. It never blocks.
func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	if q.size+1 >= growThreshold(len(q.ring)) && len(q.ring) < q.maxCapacity {
		q.resize(min(len(q.ring)*2, q.maxCapacity))
	}
	if q.size == len(q.ring) {
		q.stats.Rejected++
		return ErrFull
	}

	q.ring[(q.head+q.size)%len(q.ring)] = item
	q.size++
	q.stats.Pushed++
	q.signal()
	return nil
}

// Pop removes the oldest item, waiting until one is available, the queue is
// closed and drained, or ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	items, err := q.PopBatch(ctx, 1)
	if err != nil {
		var zero T
		return zero, err
	}
	return items[0], nil
}

// PopBatch removes up to max items (all when max <= 0), waiting for at least one.
func (q *Queue[T]) PopBatch(ctx context.Context, max int) ([]T, error) {
	for {
		q.mu.Lock()
		if q.size > 0 {
			items := q.take(max)
			q.mu.Unlock()
			return items, nil
		}
		if q.closed {
			q.signal()
			q.mu.Unlock()
			return nil, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.ready:
		}
	}
}

// Drain removes and returns everything currently queued without waiting.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return nil
	}
	return q.take(0)
}

// Close stops accepting items. Queued items can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.signal()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the current ring capacity.
func (q *Queue[T]) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ring)
}

// Stats returns a snapshot of the queue counters.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Len = q.size
	s.Capacity = len(q.ring)
	return s
}

// take removes up to max items. Must be called with mu held.
func (q *Queue[T]) take(max int) []T {
	n := q.size
	if max > 0 && max < n {
		n = max
	}

	var zero T
	out := make([]T, n)
	for i := range out {
		out[i] = q.ring[q.head]
		q.ring[q.head] = zero
		q.head = (q.head + 1) % len(q.ring)
	}
	q.size -= n
	q.stats.Popped += int64(n)

	if q.size > 0 || q.closed {
		q.signal()
	}
	return out
}

// resize moves queued items into a ring of the given capacity. Must be called with mu held.
func (q *Queue[T]) resize(capacity int) {
	ring := make([]T, capacity)
	for i := 0; i < q.size; i++ {
		ring[i] = q.ring[(q.head+i)%len(q.ring)]
	}
	q.ring = ring
	q.head = 0
	q.stats.Resizes++
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func growThreshold(capacity int) int {
	t := capacity * 70 / 100
	if t < 1 {
		t = 1
	}
	return t
}
