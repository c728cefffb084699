package tick

import "sync"

// Queue is an unbounded multi-producer, single-consumer queue.
//
// Producers Push from any goroutine. The consumer calls Drain from the tick
// goroutine; items pushed during a Drain are delivered by the next one.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	spare []T
}

// Push appends v.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
}

// Drain calls fn for every queued item in push order and returns how many
// items it delivered. Drain must not be called concurrently with itself.
//
// If fn panics, the panic propagates and the undelivered items are dropped.
func (q *Queue[T]) Drain(fn func(T)) (n int) {
	q.mu.Lock()
	batch := q.items
	q.items = q.spare[:0]
	q.spare = nil
	q.mu.Unlock()

	defer func() {
		var zero T
		for i := range batch {
			batch[i] = zero
		}
		q.mu.Lock()
		q.spare = batch[:0]
		q.mu.Unlock()
	}()

	for _, v := range batch {
		fn(v)
		n++
	}
	return n
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
