package multiqueue

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/multiqueue/pkg/metrics"
)

// QueueOption configures a queue created by Dispatcher.CreateQueue.
type QueueOption func(*queueOptions)

type queueOptions struct {
	capacity         int
	policy           OverflowPolicy
	dropIfNoConsumer bool
}

// WithOverflowPolicy sets the overflow policy. The default is SkipNewest.
func WithOverflowPolicy(p OverflowPolicy) QueueOption {
	return func(o *queueOptions) { o.policy = p }
}

// WithDropIfNoConsumer sets whether pushes are discarded while no consumer is attached.
// The default is true.
func WithDropIfNoConsumer(drop bool) QueueOption {
	return func(o *queueOptions) { o.dropIfNoConsumer = drop }
}

// WithCapacity overrides Config.DefaultCapacity for one queue.
func WithCapacity(n int) QueueOption {
	return func(o *queueOptions) { o.capacity = n }
}

// entry pairs a key with the queue it resolved to when a sweep started. Holding the pointer keeps
// the queue alive for the whole sweep even if it is deleted concurrently.
type entry[K cmp.Ordered, V any] struct {
	key   K
	queue *Queue[V]
}

// Dispatcher owns a set of keyed queues and drains the subscribed ones from a single worker
// goroutine, one item per queue per sweep.
type Dispatcher[K cmp.Ordered, V any] struct {
	log     *zap.SugaredLogger
	cfg     Config
	metrics *metrics.Metrics

	// Only CreateQueue, Subscribe and unsubscribeLocked nest the two, queuesMu before subsMu, so
	// that attaching a consumer and recording its subscription happen atomically.
	queuesMu sync.RWMutex
	queues   map[K]*Queue[V]
	closed   bool

	// Subscribed keys and their consumers. A key may be subscribed before its queue exists.
	subsMu        sync.Mutex
	subscriptions map[K]Consumer[V]

	// Wake-up signal shared by every queue; buffered (size 1) to coalesce signals.
	wake chan struct{}

	lifecycleMu sync.Mutex
	running     atomic.Bool
	workerID    atomic.Uint64 // goroutine id of the current worker
	stop        chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
}

// New creates a Dispatcher and starts its worker. The metrics may be nil.
func New[K cmp.Ordered, V any](log *zap.SugaredLogger, cfg Config, m *metrics.Metrics) (*Dispatcher[K, V], error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	d := &Dispatcher[K, V]{
		log:           log,
		cfg:           cfg,
		metrics:       m,
		queues:        make(map[K]*Queue[V]),
		subscriptions: make(map[K]Consumer[V]),
		wake:          make(chan struct{}, 1),
	}
	d.StartProcessing()
	return d, nil
}

// Notify implements Notifier. Queues call it after a value reaches their buffer.
func (d *Dispatcher[K, V]) Notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// CreateQueue creates the queue for key. It returns false without effect if the key already has
// a queue, the options are invalid, or the dispatcher is closed. If key was subscribed before the
// queue existed, the subscribed consumer is attached immediately.
func (d *Dispatcher[K, V]) CreateQueue(key K, opts ...QueueOption) bool {
	o := queueOptions{
		capacity:         d.cfg.DefaultCapacity,
		policy:           SkipNewest,
		dropIfNoConsumer: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	q, err := NewQueue[V](o.capacity, o.policy, o.dropIfNoConsumer, d)
	if err != nil {
		d.log.Warnw("failed to create queue", "key", key, "error", err)
		return false
	}

	d.queuesMu.Lock()
	defer d.queuesMu.Unlock()
	if d.closed {
		return false
	}
	if _, ok := d.queues[key]; ok {
		return false
	}
	if !d.running.Load() {
		q.release()
	}

	d.subsMu.Lock()
	c, subscribed := d.subscriptions[key]
	if subscribed {
		q.SetConsumer(c)
	}
	d.subsMu.Unlock()

	d.queues[key] = q
	d.metrics.SetQueues(len(d.queues))
	d.log.Debugw("queue created",
		"key", key,
		"capacity", o.capacity,
		"policy", o.policy.String(),
		"dropIfNoConsumer", o.dropIfNoConsumer,
		"subscribed", subscribed,
	)

	if subscribed {
		// The worker may be idle waiting for this key to become serviceable.
		d.Notify()
	}
	return true
}

// DeleteQueue unsubscribes key and removes its queue. Producers blocked on the queue are released
// and its buffered items are discarded. Unknown keys are a no-op.
func (d *Dispatcher[K, V]) DeleteQueue(key K) {
	d.queuesMu.Lock()
	defer d.queuesMu.Unlock()

	d.unsubscribeLocked(key)

	q, ok := d.queues[key]
	if !ok {
		return
	}
	delete(d.queues, key)
	q.close()

	d.metrics.SetQueues(len(d.queues))
	d.metrics.DeleteQueueDepth(fmt.Sprint(key))
	d.log.Debugw("queue deleted", "key", key)
}

// Subscribe records key as serviced by c and attaches c to the key's queue if it exists. A key
// without a queue stays subscribed and goes live when CreateQueue is called for it.
func (d *Dispatcher[K, V]) Subscribe(key K, c Consumer[V]) {
	d.queuesMu.RLock()
	defer d.queuesMu.RUnlock()

	d.subsMu.Lock()
	d.subscriptions[key] = c
	n := len(d.subscriptions)
	q, hasQueue := d.queues[key]
	if hasQueue {
		q.SetConsumer(c)
	}
	d.subsMu.Unlock()

	d.metrics.RecordSubscribe()
	d.metrics.SetSubscribedKeys(n)
	d.log.Debugw("subscribed", "key", key, "hasQueue", hasQueue)

	d.Notify()
}

// Unsubscribe detaches the consumer of key and stops servicing the key. Unknown keys are a no-op.
func (d *Dispatcher[K, V]) Unsubscribe(key K) {
	d.queuesMu.RLock()
	defer d.queuesMu.RUnlock()
	d.unsubscribeLocked(key)
}

// unsubscribeLocked requires queuesMu to be held (read or write).
func (d *Dispatcher[K, V]) unsubscribeLocked(key K) {
	d.subsMu.Lock()
	_, subscribed := d.subscriptions[key]
	delete(d.subscriptions, key)
	n := len(d.subscriptions)
	if q, ok := d.queues[key]; ok {
		q.SetConsumer(nil)
	}
	d.subsMu.Unlock()

	if subscribed {
		d.metrics.RecordUnsubscribe()
		d.metrics.SetSubscribedKeys(n)
		d.log.Debugw("unsubscribed", "key", key)
	}
}

// Enqueue pushes v onto the queue of key. The value is silently dropped if the key has no queue
// or the queue's policy discards it. Under WaitForSpace it blocks while the queue is full.
func (d *Dispatcher[K, V]) Enqueue(key K, v V) {
	_ = d.EnqueueContext(context.Background(), key, v)
}

// EnqueueContext is Enqueue with a context bounding a WaitForSpace wait. It returns ctx.Err() if
// the context ended before space became available and nil otherwise, including for silent drops.
func (d *Dispatcher[K, V]) EnqueueContext(ctx context.Context, key K, v V) error {
	result := NoQueue
	if q := d.queue(key); q != nil {
		result = q.PushContext(ctx, v)
	}

	d.metrics.RecordEnqueue(result.String())
	if !result.Appended() {
		d.log.Debugw("value not buffered", "key", key, "outcome", result.String())
	}
	if result == Cancelled {
		return ctx.Err()
	}
	return nil
}

func (d *Dispatcher[K, V]) queue(key K) *Queue[V] {
	d.queuesMu.RLock()
	defer d.queuesMu.RUnlock()
	return d.queues[key]
}

// StartProcessing starts the worker goroutine. It is a no-op if the worker is already running or
// the dispatcher is closed.
func (d *Dispatcher[K, V]) StartProcessing() {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()
	if d.running.Load() || d.isClosed() {
		return
	}

	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	d.running.Store(true)
	d.forEachQueue((*Queue[V]).resume)

	go d.process(d.stop, d.done)

	d.metrics.SetWorkerRunning(true)
	d.log.Debugw("worker started")
}

// StopProcessing stops the worker and waits for it to exit, so no Consume starts after it returns.
// Producers blocked in a WaitForSpace push give up. Buffered items are kept. It is a no-op if the
// worker is not running.
//
// Called from a consumer, it cannot wait for the worker that runs it: it signals the stop, logs a
// warning and returns, and the worker exits as soon as the consumer returns.
func (d *Dispatcher[K, V]) StopProcessing() {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()
	if !d.running.Load() {
		return
	}

	d.running.Store(false)
	close(d.stop)
	d.forEachQueue((*Queue[V]).release)
	if id := goroutineID(); id != 0 && id == d.workerID.Load() {
		d.log.Warnw("worker stop requested from a consumer; not waiting for the worker to exit")
	} else {
		<-d.done
	}

	d.metrics.SetWorkerRunning(false)
	d.log.Debugw("worker stopped")
}

// Close stops the worker, waits for it to exit and releases every queue. The dispatcher cannot be
// restarted afterwards. Close is idempotent. Called from a consumer it does not wait for the
// worker, see StopProcessing.
func (d *Dispatcher[K, V]) Close() {
	d.closeOnce.Do(func() {
		d.queuesMu.Lock()
		d.closed = true
		d.queuesMu.Unlock()

		d.StopProcessing()

		d.subsMu.Lock()
		clear(d.subscriptions)
		d.subsMu.Unlock()

		d.queuesMu.Lock()
		defer d.queuesMu.Unlock()
		for key, q := range d.queues {
			q.SetConsumer(nil)
			q.close()
			d.metrics.DeleteQueueDepth(fmt.Sprint(key))
		}
		clear(d.queues)

		d.metrics.SetQueues(0)
		d.metrics.SetSubscribedKeys(0)
		d.log.Debugw("dispatcher closed")
	})
}

// Running reports whether the worker goroutine is running.
func (d *Dispatcher[K, V]) Running() bool {
	return d.running.Load()
}

func (d *Dispatcher[K, V]) isClosed() bool {
	d.queuesMu.RLock()
	defer d.queuesMu.RUnlock()
	return d.closed
}

func (d *Dispatcher[K, V]) forEachQueue(fn func(*Queue[V])) {
	d.queuesMu.RLock()
	defer d.queuesMu.RUnlock()
	for _, q := range d.queues {
		fn(q)
	}
}

// Len returns the number of items buffered for key and whether the key has a queue.
func (d *Dispatcher[K, V]) Len(key K) (int, bool) {
	q := d.queue(key)
	if q == nil {
		return 0, false
	}
	return q.Size(), true
}

// Backlog returns the number of items buffered across all queues.
func (d *Dispatcher[K, V]) Backlog() int {
	var n int
	d.forEachQueue(func(q *Queue[V]) { n += q.Size() })
	return n
}

// Subscribed returns the subscribed keys in ascending order.
func (d *Dispatcher[K, V]) Subscribed() []K {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	return slices.Sorted(maps.Keys(d.subscriptions))
}

// Snapshot returns the stats of every queue ordered by key.
func (d *Dispatcher[K, V]) Snapshot() []QueueStats[K] {
	subscribed := make(map[K]struct{})
	for _, key := range d.Subscribed() {
		subscribed[key] = struct{}{}
	}

	d.queuesMu.RLock()
	defer d.queuesMu.RUnlock()
	stats := make([]QueueStats[K], 0, len(d.queues))
	for _, key := range slices.Sorted(maps.Keys(d.queues)) {
		q := d.queues[key]
		_, ok := subscribed[key]
		stats = append(stats, QueueStats[K]{
			Key:         key,
			Size:        q.Size(),
			Capacity:    q.Capacity(),
			Policy:      q.Policy(),
			HasConsumer: q.HasConsumer(),
			Subscribed:  ok,
		})
	}
	return stats
}

// snapshot resolves the subscribed keys that have a queue, in ascending key order.
func (d *Dispatcher[K, V]) snapshot() []entry[K, V] {
	keys := d.Subscribed()

	d.queuesMu.RLock()
	defer d.queuesMu.RUnlock()
	batch := make([]entry[K, V], 0, len(keys))
	for _, key := range keys {
		if q, ok := d.queues[key]; ok {
			batch = append(batch, entry[K, V]{key: key, queue: q})
		}
	}
	return batch
}

// process is the worker loop. Each sweep visits the snapshotted queues in key order and consumes
// at most one item from each. When an iteration saw no new pushes and no currently subscribed queue
// has anything a consumer could take, the worker sleeps until the next signal or stop.
func (d *Dispatcher[K, V]) process(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	d.workerID.Store(goroutineID())

	for {
		batch := d.snapshot()
		if len(batch) == 0 {
			// Nothing serviceable; Subscribe and CreateQueue signal wake.
			select {
			case <-stop:
				return
			case <-d.wake:
				continue
			}
		}

		d.metrics.IncSweeps()
		for _, e := range batch {
			select {
			case <-stop:
				return
			default:
			}

			d.drainWake()
			d.consume(e)

			// A token here means some queue was pushed to during this iteration.
			select {
			case <-d.wake:
				continue
			default:
			}
			// Check the live subscriptions, not the batch: a key that became serviceable during
			// the sweep may already have had its signal drained.
			if anyPending(d.snapshot()) {
				continue
			}

			d.metrics.IncIdleWaits()
			select {
			case <-stop:
				return
			case <-d.wake:
			}
		}
	}
}

func (d *Dispatcher[K, V]) drainWake() {
	select {
	case <-d.wake:
	default:
	}
}

// consume runs one Consume on the worker, recovering from consumer panics so one misbehaving
// consumer cannot take the worker down.
func (d *Dispatcher[K, V]) consume(e entry[K, V]) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.metrics.IncError(metrics.ErrTypeConsumerPanic)
			d.log.Errorw("consumer panicked", "key", e.key, "panic", r)
		}
	}()

	if e.queue.Consume() {
		d.metrics.RecordConsume(time.Since(start).Seconds())
	}
}

func anyPending[K cmp.Ordered, V any](batch []entry[K, V]) bool {
	for _, e := range batch {
		if e.queue.Pending() {
			return true
		}
	}
	return false
}

// goroutineID parses the calling goroutine's id from its stack header, the way x/net/http2's
// goroutine lock checks do. It returns 0 if the header cannot be parsed.
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
