// Package queue provides the bounded blocking FIFO that forms every edge of
// the playback pipeline. Producers block on Push when the queue is full and
// consumers block on Pop when it is empty; downstream slowness therefore
// propagates upstream without any polling. Stop wakes every waiter and makes
// all subsequent operations fail fast, which is how worker shutdown is driven.
package queue

import (
	"sync"
	"time"
)

// Queue is a bounded FIFO of T safe for concurrent producers and consumers.
type Queue[T any] struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond
	items    []T
	head     int
	size     int
	stopped  bool
}

// New creates a queue with the given capacity. Capacity must be positive.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		panic("queue: capacity must be positive")
	}
	q := &Queue[T]{items: make([]T, capacity)}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push blocks while the queue is full. It returns false if the queue was
// stopped before the item could be enqueued.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == len(q.items) && !q.stopped {
		q.notFull.Wait()
	}
	if q.stopped {
		return false
	}
	q.enqueue(item)
	return true
}

// PushTimeout is Push with a bounded wait. A non-positive timeout degrades to
// a non-blocking attempt.
func (q *Queue[T]) PushTimeout(item T, timeout time.Duration) bool {
	return q.pushBelowDeadline(item, len(q.items), time.Now().Add(timeout))
}

// PushBelow blocks until the queue occupancy is strictly below maxOccupancy,
// then enqueues. A zero timeout means wait indefinitely (until Stop). This is
// the watermark variant used by the decode→render edge.
func (q *Queue[T]) PushBelow(item T, maxOccupancy int, timeout time.Duration) bool {
	if maxOccupancy <= 0 || maxOccupancy > len(q.items) {
		maxOccupancy = len(q.items)
	}
	if timeout == 0 {
		q.mu.Lock()
		defer q.mu.Unlock()
		for q.size >= maxOccupancy && !q.stopped {
			q.notFull.Wait()
		}
		if q.stopped {
			return false
		}
		q.enqueue(item)
		return true
	}
	return q.pushBelowDeadline(item, maxOccupancy, time.Now().Add(timeout))
}

func (q *Queue[T]) pushBelowDeadline(item T, maxOccupancy int, deadline time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size >= maxOccupancy && !q.stopped {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		// sync.Cond has no timed wait; a one-shot broadcast at the deadline
		// bounds the sleep. Spurious wakeups are absorbed by the loop.
		t := time.AfterFunc(remaining, q.notFull.Broadcast)
		q.notFull.Wait()
		t.Stop()
	}
	if q.stopped {
		return false
	}
	q.enqueue(item)
	return true
}

// Pop blocks while the queue is empty. It returns the zero value and false
// if the queue was stopped.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == 0 && !q.stopped {
		q.notEmpty.Wait()
	}
	var zero T
	if q.stopped {
		return zero, false
	}
	return q.dequeue(), true
}

// TryPop never blocks. It is the only queue operation the audio output
// callback is allowed to use.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.size == 0 {
		return zero, false
	}
	return q.dequeue(), true
}

// Clear atomically drains the queue, invoking cleanup on each element so raw
// resource handles (packets, frames) are released exactly once. cleanup may
// be nil.
func (q *Queue[T]) Clear(cleanup func(T)) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size > 0 {
		item := q.dequeue()
		if cleanup != nil {
			cleanup(item)
		}
	}
	q.notFull.Broadcast()
}

// Stop wakes every waiter. Pending and subsequent Push/Pop calls return false
// immediately. Items still enqueued are left for Clear or draining TryPop.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
}

// Stopped reports whether Stop has been called.
func (q *Queue[T]) Stopped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopped
}

// Len returns the current occupancy.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the fixed capacity.
func (q *Queue[T]) Cap() int {
	return len(q.items)
}

func (q *Queue[T]) enqueue(item T) {
	q.items[(q.head+q.size)%len(q.items)] = item
	q.size++
	q.notEmpty.Signal()
}

func (q *Queue[T]) dequeue() T {
	var zero T
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.size--
	q.notFull.Signal()
	return item
}
