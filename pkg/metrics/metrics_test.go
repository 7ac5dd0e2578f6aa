package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestLabels_toPrometheusLabels(t *testing.T) {
	tests := []struct {
		name     string
		labels   Labels
		expected prometheus.Labels
	}{
		{
			name:     "empty labels",
			labels:   Labels{},
			expected: prometheus.Labels{},
		},
		{
			name: "all labels set",
			labels: Labels{
				Instance:      "fanin-0",
				Environment:   "production",
				Region:        "us-east-1",
				CloudProvider: "aws",
			},
			expected: prometheus.Labels{
				"instance_name":  "fanin-0",
				"environment":    "production",
				"region":         "us-east-1",
				"cloud_provider": "aws",
			},
		},
		{
			name: "partial labels",
			labels: Labels{
				Environment: "staging",
			},
			expected: prometheus.Labels{
				"environment": "staging",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.labels.toPrometheusLabels()
			require.Equal(t, tt.expected, result)
		})
	}
}

func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()

	m, err := New(reg)
	require.NoError(t, err)
	require.NotNil(t, m)

	m.SetWorkerRunning(true)
	metricFamilies, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, metricFamilies)
}

func TestNewWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()

	m, err := NewWithLabels(reg, Labels{Instance: "fanin-0", Environment: "test"})
	require.NoError(t, err)
	require.NotNil(t, m)

	m.SetQueues(3)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() != "multiqueue_dispatcher_queues" {
			continue
		}
		found = true
		require.NotEmpty(t, mf.GetMetric())
		labelMap := make(map[string]string)
		for _, label := range mf.GetMetric()[0].GetLabel() {
			labelMap[label.GetName()] = label.GetValue()
		}
		require.Equal(t, "fanin-0", labelMap["instance_name"])
		require.Equal(t, "test", labelMap["environment"])
	}
	require.True(t, found, "queues gauge not found")
}

func TestNew_RegistrationError(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := New(reg)
	require.NoError(t, err)

	// Second registration should fail (duplicate metrics)
	m, err := New(reg)
	require.Nil(t, m, "expected nil metrics on duplicate registration")

	var alreadyRegistered prometheus.AlreadyRegisteredError
	require.ErrorAs(t, err, &alreadyRegistered)
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics

	require.NotPanics(t, func() {
		m.IncError("test")
		m.SetWorkerRunning(true)
		m.SetQueues(1)
		m.SetSubscribedKeys(1)
		m.IncSweeps()
		m.IncIdleWaits()
		m.RecordEnqueue("buffered")
		m.RecordConsume(0.001)
		m.RecordSubscribe()
		m.RecordUnsubscribe()
		m.UpdateQueueDepth("1", 10, 1000)
		m.DeleteQueueDepth("1")
	})
}

func TestMetrics_DispatcherGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.SetWorkerRunning(true)
	m.SetQueues(4)
	m.SetSubscribedKeys(2)
	require.Equal(t, float64(1), testutil.ToFloat64(m.workerRunning))
	require.Equal(t, float64(4), testutil.ToFloat64(m.queues))
	require.Equal(t, float64(2), testutil.ToFloat64(m.subscribedKeys))

	m.SetWorkerRunning(false)
	require.Equal(t, float64(0), testutil.ToFloat64(m.workerRunning))
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.IncSweeps()
	m.IncSweeps()
	m.IncIdleWaits()
	m.RecordSubscribe()
	m.RecordUnsubscribe()
	m.RecordUnsubscribe()

	require.Equal(t, float64(2), testutil.ToFloat64(m.sweeps))
	require.Equal(t, float64(1), testutil.ToFloat64(m.idleWaits))
	require.Equal(t, float64(1), testutil.ToFloat64(m.consumerAttached))
	require.Equal(t, float64(2), testutil.ToFloat64(m.consumerDetached))
}

func TestMetrics_RecordEnqueue(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordEnqueue("buffered")
	m.RecordEnqueue("buffered")
	m.RecordEnqueue("skipped_full")

	require.Equal(t, float64(2), testutil.ToFloat64(m.enqueued.WithLabelValues("buffered")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.enqueued.WithLabelValues("skipped_full")))
}

func TestMetrics_RecordConsume(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordConsume(0.0001)
	m.RecordConsume(0.002)
	m.RecordConsume(0.3)

	require.Equal(t, float64(3), testutil.ToFloat64(m.consumed))

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() == "multiqueue_consumer_consume_duration_seconds" {
			found = true
			require.Equal(t, uint64(3), mf.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	require.True(t, found, "histogram metric not found")
}

func TestMetrics_QueueDepth(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.UpdateQueueDepth("1", 10, 1000)
	m.UpdateQueueDepth("2", 0, 50)

	require.Equal(t, float64(10), testutil.ToFloat64(m.queueDepth.WithLabelValues("1")))
	require.Equal(t, float64(1000), testutil.ToFloat64(m.queueCapacity.WithLabelValues("1")))
	require.Equal(t, float64(50), testutil.ToFloat64(m.queueCapacity.WithLabelValues("2")))
	require.Equal(t, 2, testutil.CollectAndCount(m.queueDepth))

	m.DeleteQueueDepth("1")
	require.Equal(t, 1, testutil.CollectAndCount(m.queueDepth))
}

func TestMetrics_IncError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.IncError(ErrTypeConsumerPanic)
	m.IncError(ErrTypeConsumerPanic)
	m.IncError(ErrTypeBacklog)

	require.Equal(t, float64(2), testutil.ToFloat64(m.errors.WithLabelValues(ErrTypeConsumerPanic)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.errors.WithLabelValues(ErrTypeBacklog)))
}
