package multiqueue

import (
	"context"
	"errors"
	"sync"
)

// DefaultCapacity is the capacity used for queues created without WithCapacity.
const DefaultCapacity = 1000

// Queue is a thread-safe bounded FIFO holding at most one consumer.
//
// The consumer reference and the buffer are guarded by separate mutexes. When both are needed
// consumerMu is acquired first.
type Queue[V any] struct {
	consumerMu sync.RWMutex
	consumer   Consumer[V]

	mu       sync.Mutex
	hasSpace *sync.Cond // signalled on pop, Clear and release; only WaitForSpace producers wait on it
	items    []V
	released bool // blocked producers give up; set while the owning dispatcher is stopped
	closed   bool // queue was deleted; nothing is buffered or popped anymore

	capacity         int
	policy           OverflowPolicy
	dropIfNoConsumer bool
	notifier         Notifier
}

// NewQueue creates a Queue. The notifier may be nil.
func NewQueue[V any](capacity int, policy OverflowPolicy, dropIfNoConsumer bool, notifier Notifier) (*Queue[V], error) {
	if capacity <= 0 {
		return nil, errors.New("invalid capacity: must be greater than 0")
	}
	if policy < SkipNewest || policy > WaitForSpace {
		return nil, errors.New("invalid overflow policy: must be SkipNewest, DropOldest or WaitForSpace")
	}

	q := &Queue[V]{
		capacity:         capacity,
		policy:           policy,
		dropIfNoConsumer: dropIfNoConsumer,
		notifier:         notifier,
	}
	q.hasSpace = sync.NewCond(&q.mu)
	return q, nil
}

// SetConsumer replaces the attached consumer; nil detaches it. Buffered items are untouched.
// Once SetConsumer returns no further item is popped on behalf of the previous consumer.
func (q *Queue[V]) SetConsumer(c Consumer[V]) {
	q.consumerMu.Lock()
	defer q.consumerMu.Unlock()
	q.consumer = c
}

// HasConsumer reports whether a consumer is attached.
func (q *Queue[V]) HasConsumer() bool {
	q.consumerMu.RLock()
	defer q.consumerMu.RUnlock()
	return q.consumer != nil
}

// Push appends v according to the overflow policy. Under WaitForSpace it blocks until there is
// room or the queue is released.
func (q *Queue[V]) Push(v V) PushResult {
	return q.PushContext(context.Background(), v)
}

// PushContext is Push with a context that bounds a WaitForSpace wait.
func (q *Queue[V]) PushContext(ctx context.Context, v V) PushResult {
	if q.dropIfNoConsumer && !q.HasConsumer() {
		return DroppedNoConsumer
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return DroppedReleased
	}

	result := Buffered
	if len(q.items) >= q.capacity {
		switch q.policy {
		case SkipNewest:
			q.mu.Unlock()
			return SkippedFull
		case DropOldest:
			q.popLocked()
			result = EvictedOldest
		case WaitForSpace:
			if r := q.waitForSpaceLocked(ctx); r != Buffered {
				q.mu.Unlock()
				return r
			}
		}
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	// Notify after unlocking so the worker never wakes into a held buffer lock.
	if q.notifier != nil {
		q.notifier.Notify()
	}
	return result
}

// waitForSpaceLocked blocks until the buffer has room. It returns Buffered when the caller may
// append, or the reason it gave up. q.mu must be held.
func (q *Queue[V]) waitForSpaceLocked(ctx context.Context) PushResult {
	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() {
			q.mu.Lock()
			q.hasSpace.Broadcast()
			q.mu.Unlock()
		})
		defer stop()
	}

	for len(q.items) >= q.capacity {
		if q.released || q.closed {
			return DroppedReleased
		}
		if ctx.Err() != nil {
			return Cancelled
		}
		q.hasSpace.Wait()
	}
	if q.closed {
		return DroppedReleased
	}
	return Buffered
}

// Consume pops the head and hands it to the consumer on the calling goroutine. It returns false
// when there is no consumer or nothing is buffered.
func (q *Queue[V]) Consume() bool {
	q.consumerMu.RLock()
	c := q.consumer
	if c == nil {
		q.consumerMu.RUnlock()
		return false
	}

	q.mu.Lock()
	if q.closed || len(q.items) == 0 {
		q.mu.Unlock()
		q.consumerMu.RUnlock()
		return false
	}
	v := q.popLocked()
	q.mu.Unlock()
	q.consumerMu.RUnlock()

	c.Consume(v)
	return true
}

// popLocked removes and returns the head, waking producers waiting for space. q.mu must be held
// and the buffer must not be empty.
func (q *Queue[V]) popLocked() V {
	var zero V
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	if q.policy == WaitForSpace {
		q.hasSpace.Broadcast()
	}
	return v
}

// Size returns the number of buffered items. The value is advisory under concurrent use.
func (q *Queue[V]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending reports whether Consume would currently do work.
func (q *Queue[V]) Pending() bool {
	return q.HasConsumer() && q.Size() > 0
}

// Clear empties the buffer and wakes producers waiting for space.
func (q *Queue[V]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	clear(q.items)
	q.items = nil
	q.hasSpace.Broadcast()
}

// Capacity returns the maximum number of buffered items.
func (q *Queue[V]) Capacity() int { return q.capacity }

// Policy returns the overflow policy.
func (q *Queue[V]) Policy() OverflowPolicy { return q.policy }

// DropIfNoConsumer reports whether pushes are discarded while no consumer is attached.
func (q *Queue[V]) DropIfNoConsumer() bool { return q.dropIfNoConsumer }

// release makes blocked and future WaitForSpace pushes on a full queue give up.
func (q *Queue[V]) release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.released = true
	q.hasSpace.Broadcast()
}

// resume undoes release.
func (q *Queue[V]) resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.released = false
}

// close permanently empties the queue and turns further pushes into drops.
func (q *Queue[V]) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	clear(q.items)
	q.items = nil
	q.hasSpace.Broadcast()
}
