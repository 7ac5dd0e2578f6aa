package multiqueue

import "fmt"

// Consumer receives values drained from a queue. Consume is invoked on the dispatcher's worker
// goroutine, one value at a time.
type Consumer[V any] interface {
	Consume(v V)
}

// ConsumerFunc adapts a plain function to the Consumer interface.
type ConsumerFunc[V any] func(v V)

func (f ConsumerFunc[V]) Consume(v V) { f(v) }

// Notifier is told whenever a value reaches a queue's buffer.
type Notifier interface {
	Notify()
}

// OverflowPolicy defines what Push does when the queue is at capacity.
type OverflowPolicy int

const (
	// SkipNewest discards the incoming value.
	SkipNewest OverflowPolicy = iota
	// DropOldest evicts the head of the queue and appends the incoming value.
	DropOldest
	// WaitForSpace blocks the producer until a value is consumed or the queue is cleared.
	WaitForSpace
)

func (p OverflowPolicy) String() string {
	switch p {
	case SkipNewest:
		return "skip-newest"
	case DropOldest:
		return "drop-oldest"
	case WaitForSpace:
		return "wait-for-space"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", int(p))
	}
}

// ParseOverflowPolicy converts the String form of a policy back to an OverflowPolicy.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "skip-newest":
		return SkipNewest, nil
	case "drop-oldest":
		return DropOldest, nil
	case "wait-for-space":
		return WaitForSpace, nil
	default:
		return 0, fmt.Errorf("invalid overflow policy %q: must be one of skip-newest, drop-oldest, wait-for-space", s)
	}
}

// PushResult reports what happened to a pushed value.
type PushResult int

const (
	// Buffered means the value was appended.
	Buffered PushResult = iota
	// EvictedOldest means the value was appended after evicting the head (DropOldest).
	EvictedOldest
	// SkippedFull means the value was discarded because the queue was full (SkipNewest).
	SkippedFull
	// DroppedNoConsumer means the value was discarded because no consumer was attached.
	DroppedNoConsumer
	// DroppedReleased means the queue was released (dispatcher stopped or queue deleted)
	// while the value was waiting for space, or the queue was already closed.
	DroppedReleased
	// Cancelled means the push context was done while waiting for space.
	Cancelled
	// NoQueue means the key had no queue. Only the dispatcher reports it.
	NoQueue
)

// Appended reports whether the value reached the buffer.
func (r PushResult) Appended() bool {
	return r == Buffered || r == EvictedOldest
}

// String returns the label used for the result in metrics and logs.
func (r PushResult) String() string {
	switch r {
	case Buffered:
		return "buffered"
	case EvictedOldest:
		return "evicted_oldest"
	case SkippedFull:
		return "skipped_full"
	case DroppedNoConsumer:
		return "dropped_no_consumer"
	case DroppedReleased:
		return "dropped_released"
	case Cancelled:
		return "cancelled"
	case NoQueue:
		return "no_queue"
	default:
		return fmt.Sprintf("PushResult(%d)", int(r))
	}
}

// QueueStats is a point-in-time view of one queue.
type QueueStats[K comparable] struct {
	Key         K
	Size        int
	Capacity    int
	Policy      OverflowPolicy
	HasConsumer bool
	Subscribed  bool
}
