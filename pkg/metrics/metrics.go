package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "multiqueue"

	Dispatcher = "dispatcher"
	Queue      = "queue"
	Consumer   = "consumer"
)

// Labels holds constant labels applied to all metrics.
// These are useful for distinguishing metrics from multiple dispatcher instances.
type Labels struct {
	Instance      string // Instance name (e.g., "ingest-fanin-0")
	Environment   string // Deployment environment (e.g., "production", "staging", "development")
	Region        string // Cloud region (e.g., "us-east-1", "eu-west-1")
	CloudProvider string // Cloud provider (e.g., "aws", "oci", "gcp")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.Instance != "" {
		labels["instance_name"] = l.Instance
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	if l.CloudProvider != "" {
		labels["cloud_provider"] = l.CloudProvider
	}
	return labels
}

type Metrics struct {
	// Dispatcher state
	workerRunning  prometheus.Gauge
	queues         prometheus.Gauge
	subscribedKeys prometheus.Gauge
	sweeps         prometheus.Counter
	idleWaits      prometheus.Counter
	errors         *prometheus.CounterVec

	// Producer side
	enqueued *prometheus.CounterVec // by outcome

	// Per-queue depth, published by the backlog watchdog
	queueDepth    *prometheus.GaugeVec
	queueCapacity *prometheus.GaugeVec

	// Consumer side
	consumed         prometheus.Counter
	consumeDuration  prometheus.Histogram
	consumerAttached prometheus.Counter
	consumerDetached prometheus.Counter
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
// For metrics with constant labels, use NewWithLabels instead.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		workerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Dispatcher,
			Name:      "worker_running",
			Help:      "1 while the dispatcher worker goroutine is running, 0 otherwise",
		}),
		queues: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Dispatcher,
			Name:      "queues",
			Help:      "Number of queues currently owned by the dispatcher",
		}),
		subscribedKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Dispatcher,
			Name:      "subscribed_keys",
			Help:      "Number of keys currently subscribed",
		}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Dispatcher,
			Name:      "sweeps_total",
			Help:      "Total number of sweeps over the subscribed keys",
		}),
		idleWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Dispatcher,
			Name:      "idle_waits_total",
			Help:      "Total number of times the worker suspended because no work was pending",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total errors by type",
		}, []string{"type"}),
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Queue,
			Name:      "enqueued_total",
			Help:      "Total enqueue attempts by outcome",
		}, []string{"outcome"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Queue,
			Name:      "depth",
			Help:      "Number of buffered items per queue key",
		}, []string{"key"}),
		queueCapacity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Queue,
			Name:      "capacity",
			Help:      "Configured capacity per queue key",
		}, []string{"key"}),
		consumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "consumed_total",
			Help:      "Total number of values handed to consumers",
		}),
		consumeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "consume_duration_seconds",
			Help:      "Time spent inside a consumer callback",
			// Consumers run on the single worker, so buckets start in the microsecond range.
			Buckets: []float64{.00001, .0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		consumerAttached: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "attached_total",
			Help:      "Total number of Subscribe calls",
		}),
		consumerDetached: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "detached_total",
			Help:      "Total number of Unsubscribe calls, including those made by DeleteQueue",
		}),
	}

	err := errors.Join(
		reg.Register(m.workerRunning),
		reg.Register(m.queues),
		reg.Register(m.subscribedKeys),
		reg.Register(m.sweeps),
		reg.Register(m.idleWaits),
		reg.Register(m.errors),
		reg.Register(m.enqueued),
		reg.Register(m.queueDepth),
		reg.Register(m.queueCapacity),
		reg.Register(m.consumed),
		reg.Register(m.consumeDuration),
		reg.Register(m.consumerAttached),
		reg.Register(m.consumerDetached),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Error type constants.
const (
	ErrTypeConsumerPanic = "consumer_panic"
	ErrTypeBacklog       = "backlog_exceeded"
	ErrTypeStranded      = "stranded_items"
)

// IncError increments the error counter for the given error type.
func (m *Metrics) IncError(errType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errType).Inc()
}

// SetWorkerRunning records whether the worker goroutine is running.
func (m *Metrics) SetWorkerRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.workerRunning.Set(1)
		return
	}
	m.workerRunning.Set(0)
}

// SetQueues records the number of queues.
func (m *Metrics) SetQueues(n int) {
	if m == nil {
		return
	}
	m.queues.Set(float64(n))
}

// SetSubscribedKeys records the number of subscribed keys.
func (m *Metrics) SetSubscribedKeys(n int) {
	if m == nil {
		return
	}
	m.subscribedKeys.Set(float64(n))
}

// IncSweeps counts one sweep over the subscribed keys.
func (m *Metrics) IncSweeps() {
	if m == nil {
		return
	}
	m.sweeps.Inc()
}

// IncIdleWaits counts one idle suspension of the worker.
func (m *Metrics) IncIdleWaits() {
	if m == nil {
		return
	}
	m.idleWaits.Inc()
}

// RecordEnqueue records the outcome of an enqueue attempt.
func (m *Metrics) RecordEnqueue(outcome string) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(outcome).Inc()
}

// RecordConsume records one value handed to a consumer.
func (m *Metrics) RecordConsume(durationSeconds float64) {
	if m == nil {
		return
	}
	m.consumed.Inc()
	m.consumeDuration.Observe(durationSeconds)
}

// RecordSubscribe counts a Subscribe call.
func (m *Metrics) RecordSubscribe() {
	if m == nil {
		return
	}
	m.consumerAttached.Inc()
}

// RecordUnsubscribe counts an Unsubscribe call.
func (m *Metrics) RecordUnsubscribe() {
	if m == nil {
		return
	}
	m.consumerDetached.Inc()
}

// UpdateQueueDepth sets the depth and capacity gauges of one queue.
func (m *Metrics) UpdateQueueDepth(key string, size, capacity int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(key).Set(float64(size))
	m.queueCapacity.WithLabelValues(key).Set(float64(capacity))
}

// DeleteQueueDepth drops the per-queue gauges of a removed queue.
func (m *Metrics) DeleteQueueDepth(key string) {
	if m == nil {
		return
	}
	m.queueDepth.DeleteLabelValues(key)
	m.queueCapacity.DeleteLabelValues(key)
}
