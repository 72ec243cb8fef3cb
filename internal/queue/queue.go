// Package queue provides the FIFO handed between the network goroutine
// and the processing goroutine.
package queue

import "sync"

// FIFO is an unbounded, mutex-guarded first-in first-out queue.  Push
// and DrainInto hold the lock only long enough to append or swap a
// slice, so neither side ever waits on the other's work.
type FIFO[T any] struct {
	mu    sync.Mutex
	items []T
}

// New returns an empty FIFO with room for capacity items before it
// grows.
func New[T any](capacity int) *FIFO[T] {
	return &FIFO[T]{items: make([]T, 0, capacity)}
}

// Push appends v.
func (q *FIFO[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
}

// DrainInto empties the queue and returns its items in arrival order.
// dst becomes the queue's storage for later pushes, so passing back the
// slice returned by the previous call trades buffers with the producer
// instead of allocating.  The caller must not keep other references to
// dst.
func (q *FIFO[T]) DrainInto(dst []T) []T {
	var zero T
	for i := range dst {
		dst[i] = zero
	}
	q.mu.Lock()
	out := q.items
	q.items = dst[:0]
	q.mu.Unlock()
	return out
}

// Len returns the number of queued items.
func (q *FIFO[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
