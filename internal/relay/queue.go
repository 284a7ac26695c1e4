package relay

import (
	"errors"
	"sync"
)

var ErrQueueFull = errors.New("relay queue full")

// Queue is a bounded FIFO buffer filled by the listener and emptied by one
// relay loop. Drain hands the whole backlog over and leaves the queue empty, so
// items pushed during a flush land in the next one.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
}

// NewQueue returns a queue holding at most capacity items; capacity <= 0 means
// unbounded.
func NewQueue[T any](capacity int) *Queue[T] {
	return &Queue[T]{capacity: capacity}
}

func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && len(q.items) >= q.capacity {
		return ErrQueueFull
	}
	q.items = append(q.items, v)
	return nil
}

func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items
	q.items = nil
	return out
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
