package multiqueue

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ava-labs/multiqueue/pkg/metrics"
)

type staticSnapshot []QueueStats[int]

func (s staticSnapshot) Snapshot() []QueueStats[int] { return s }

func TestStartBacklogWatchdog_WarnsOnLargeBacklog(t *testing.T) {
	t.Parallel()
	src := staticSnapshot{
		{Key: 1, Size: 10, Capacity: 12, Policy: SkipNewest, HasConsumer: true, Subscribed: true},
	}

	core, recorded := observer.New(zap.WarnLevel)
	log := zap.New(core).Sugar()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	go StartBacklogWatchdog[int](ctx, log, src, nil, 5*time.Millisecond, 8)

	require.Eventually(t, func() bool {
		return recorded.FilterMessage("queue backlog too large").Len() > 0
	}, time.Second, 5*time.Millisecond, "expected watchdog to warn when backlog reaches maxBacklog")
}

func TestStartBacklogWatchdog_StopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan struct{})
	go func() {
		defer close(done)
		StartBacklogWatchdog[int](ctx, zap.NewNop().Sugar(), staticSnapshot{}, nil, time.Millisecond, 1)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not return after cancel")
	}
}

func TestCheckBacklog(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		stats     QueueStats[int]
		wantMsg   string
		wantError string
	}{
		{
			name:  "empty queue is quiet",
			stats: QueueStats[int]{Key: 1, Size: 0, Capacity: 10},
		},
		{
			name:  "small backlog is quiet",
			stats: QueueStats[int]{Key: 1, Size: 3, Capacity: 10, HasConsumer: true, Subscribed: true},
		},
		{
			name:      "backlog at threshold",
			stats:     QueueStats[int]{Key: 1, Size: 5, Capacity: 10, HasConsumer: true, Subscribed: true},
			wantMsg:   "queue backlog too large",
			wantError: metrics.ErrTypeBacklog,
		},
		{
			name:      "items without consumer",
			stats:     QueueStats[int]{Key: 2, Size: 1, Capacity: 10, Subscribed: true},
			wantMsg:   "queue holds items nobody drains",
			wantError: metrics.ErrTypeStranded,
		},
		{
			name:      "items on unsubscribed key",
			stats:     QueueStats[int]{Key: 3, Size: 9, Capacity: 10, HasConsumer: true},
			wantMsg:   "queue holds items nobody drains",
			wantError: metrics.ErrTypeStranded,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reg := prometheus.NewRegistry()
			m, err := metrics.New(reg)
			require.NoError(t, err)
			core, recorded := observer.New(zap.WarnLevel)

			checkBacklog(zap.New(core).Sugar(), []QueueStats[int]{tt.stats}, m, 5)

			require.Equal(t, float64(tt.stats.Size), metricValue(t, reg, "multiqueue_queue_depth", ""))
			require.Equal(t, float64(tt.stats.Capacity), metricValue(t, reg, "multiqueue_queue_capacity", ""))
			if tt.wantMsg == "" {
				require.Zero(t, recorded.Len())
				require.Zero(t, metricValue(t, reg, "multiqueue_errors_total", ""))
				return
			}
			require.Equal(t, 1, recorded.FilterMessage(tt.wantMsg).Len())
			require.Equal(t, float64(1), metricValue(t, reg, "multiqueue_errors_total", tt.wantError))
		})
	}
}

func TestBacklogWatchdog_Dispatcher(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher(t)
	require.True(t, d.CreateQueue(1, WithDropIfNoConsumer(false)))
	d.Enqueue(1, 1)

	core, recorded := observer.New(zap.WarnLevel)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go StartBacklogWatchdog[int](ctx, zap.New(core).Sugar(), d, nil, 5*time.Millisecond, 100)

	require.Eventually(t, func() bool {
		return recorded.FilterMessage("queue holds items nobody drains").Len() > 0
	}, time.Second, 5*time.Millisecond)
}
