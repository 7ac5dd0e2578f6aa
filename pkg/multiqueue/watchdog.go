package multiqueue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/multiqueue/pkg/metrics"
)

// Snapshotter is the read side of a Dispatcher used by the backlog watchdog.
type Snapshotter[K comparable] interface {
	Snapshot() []QueueStats[K]
}

// StartBacklogWatchdog periodically publishes per-queue depth gauges and warns about queues whose
// backlog reached maxBacklog or whose items can never be drained because the queue has no
// consumer or its key is not subscribed. It returns when ctx is done.
func StartBacklogWatchdog[K comparable](
	ctx context.Context,
	log *zap.SugaredLogger,
	src Snapshotter[K],
	m *metrics.Metrics,
	interval time.Duration,
	maxBacklog int,
) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			checkBacklog(log, src.Snapshot(), m, maxBacklog)
		}
	}
}

func checkBacklog[K comparable](log *zap.SugaredLogger, stats []QueueStats[K], m *metrics.Metrics, maxBacklog int) {
	for _, s := range stats {
		m.UpdateQueueDepth(fmt.Sprint(s.Key), s.Size, s.Capacity)
		if s.Size == 0 {
			continue
		}
		if !s.HasConsumer || !s.Subscribed {
			m.IncError(metrics.ErrTypeStranded)
			log.Warnw("queue holds items nobody drains",
				"key", s.Key,
				"size", s.Size,
				"hasConsumer", s.HasConsumer,
				"subscribed", s.Subscribed,
			)
			continue
		}
		if s.Size >= maxBacklog {
			m.IncError(metrics.ErrTypeBacklog)
			log.Warnw("queue backlog too large",
				"key", s.Key,
				"size", s.Size,
				"capacity", s.Capacity,
				"maxBacklog", maxBacklog,
				"policy", s.Policy.String(),
			)
		}
	}
}
