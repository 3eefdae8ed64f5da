// Package pqueue provides a binary heap priority queue.
package pqueue

import "container/heap"

// Queue is a min-priority queue ordered by a less function. The zero value is
// not usable; create queues with New.
type Queue[T any] struct {
	h items[T]
}

// New creates an empty queue ordered by less.
func New[T any](less func(a, b T) bool) *Queue[T] {
	return &Queue[T]{h: items[T]{less: less}}
}

// Insert adds x to the queue.
func (q *Queue[T]) Insert(x T) {
	heap.Push(&q.h, x)
}

// ExtractMin removes and returns the least element. The second result is
// false if the queue is empty.
func (q *Queue[T]) ExtractMin() (T, bool) {
	if len(q.h.s) == 0 {
		var zero T
		return zero, false
	}
	return heap.Pop(&q.h).(T), true
}

// Len returns the number of elements in the queue.
func (q *Queue[T]) Len() int {
	return len(q.h.s)
}

type items[T any] struct {
	s    []T
	less func(a, b T) bool
}

func (h *items[T]) Len() int           { return len(h.s) }
func (h *items[T]) Less(i, j int) bool { return h.less(h.s[i], h.s[j]) }
func (h *items[T]) Swap(i, j int)      { h.s[i], h.s[j] = h.s[j], h.s[i] }
func (h *items[T]) Push(x any)         { h.s = append(h.s, x.(T)) }

func (h *items[T]) Pop() any {
	n := len(h.s) - 1
	x := h.s[n]
	var zero T
	h.s[n] = zero
	h.s = h.s[:n]
	return x
}
