package client

import (
	"sync"
)

// Queue is a bounded FIFO ring buffer. When full, Enqueue evicts the oldest
// element to make room.
type Queue[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // read position
	count    int
	capacity int

	// Stats
	totalEnqueued int64
	totalDropped  int64
}

// QueueStats is a point-in-time view of queue counters.
type QueueStats struct {
	Len           int
	Capacity      int
	TotalEnqueued int64
	TotalDropped  int64
}

// NewQueue creates a queue holding at most capacity elements.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
}

// Enqueue appends item, evicting the head when at capacity.
// Returns the evicted element and true if one was dropped.
func (q *Queue[T]) Enqueue(item T) (evicted T, dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == q.capacity {
		evicted = q.buf[q.head]
		var zero T
		q.buf[q.head] = zero
		q.head = (q.head + 1) % q.capacity
		q.count--
		q.totalDropped++
		dropped = true
	}

	q.buf[(q.head+q.count)%q.capacity] = item
	q.count++
	q.totalEnqueued++
	return evicted, dropped
}

// Drain removes and returns every element in FIFO order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.snapshotLocked()
	q.clearLocked()
	return items
}

// Snapshot returns the queued elements in FIFO order without removing them.
func (q *Queue[T]) Snapshot() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Clear drops every element. Cleared elements are not counted as dropped.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clearLocked()
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Len:           q.count,
		Capacity:      q.capacity,
		TotalEnqueued: q.totalEnqueued,
		TotalDropped:  q.totalDropped,
	}
}

func (q *Queue[T]) snapshotLocked() []T {
	items := make([]T, q.count)
	for i := range items {
		items[i] = q.buf[(q.head+i)%q.capacity]
	}
	return items
}

func (q *Queue[T]) clearLocked() {
	var zero T
	for i := range q.buf {
		q.buf[i] = zero // Clear references for GC
	}
	q.head = 0
	q.count = 0
}
