// Package multiqueue implements a multi-queue dispatcher: any number of independently keyed,
// bounded FIFO queues, fed by any number of producer goroutines and drained by a single shared
// worker goroutine that hands each value to the consumer registered for its key.
//
// Main components
//   - Queue: a thread-safe bounded FIFO bound to one key. It holds at most one Consumer and
//     enforces an OverflowPolicy when full:
//   - SkipNewest discards the incoming value.
//   - DropOldest evicts the head and appends the incoming value.
//   - WaitForSpace blocks the producer until a value is consumed, the queue is cleared, the
//     dispatcher stops, or the push context ends.
//     Independently of the policy, a queue created with dropIfNoConsumer discards pushes while no
//     consumer is attached. Every value that reaches the buffer signals the owning Dispatcher.
//   - Dispatcher: owns the queues and the set of subscribed keys and runs the worker. Queue
//     existence and subscription are tracked separately: a key may be subscribed before its queue
//     is created, and the subscription goes live once CreateQueue is called for it.
//   - Backlog watchdog: a ticker loop that publishes queue depths and warns about queues that are
//     close to full or hold items no consumer can drain.
//
// Scheduling strategy
//
// The worker sweeps the subscribed keys in ascending order and consumes at most one value per key
// per sweep, so every subscribed key is revisited once per sweep and no key can starve another.
// Keys subscribed or removed during a sweep are picked up by the next one.
//
// The worker never busy-waits. Queues share a single-slot wake channel. Before each Consume the
// worker drains it; afterwards, if no push arrived and no queue in the sweep has anything a
// consumer could take, it blocks on the channel. A push that lands after that check leaves a
// token in the channel, so the wake-up cannot be missed.
//
// Consumers run synchronously on the worker goroutine with no dispatcher or queue lock held, so
// they may call back into the Dispatcher. StopProcessing and Close called from a consumer signal
// the stop without waiting for the worker. A WaitForSpace enqueue onto a full queue from a consumer
// gives up only when the dispatcher stops, since only the worker can drain it.
//
// Usage
//  1. d, err := multiqueue.New[int, string](logger, multiqueue.DefaultConfig(), nil)
//  2. d.CreateQueue(1, multiqueue.WithOverflowPolicy(multiqueue.DropOldest))
//  3. d.Subscribe(1, multiqueue.ConsumerFunc[string](handle))
//  4. d.Enqueue(1, "value") from any goroutine.
//  5. d.Close() stops the worker and releases every queue.
package multiqueue
