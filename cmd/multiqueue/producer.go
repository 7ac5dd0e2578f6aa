package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ava-labs/multiqueue/pkg/multiqueue"
)

// workload hands out the repetitions of every generator. Producers share one workload, so the
// repetitions of a generator are split between them.
type workload struct {
	generators []Generator
	remaining  []atomic.Int64
}

func newWorkload(generators []Generator) *workload {
	w := &workload{
		generators: generators,
		remaining:  make([]atomic.Int64, len(generators)),
	}
	for i, g := range generators {
		w.remaining[i].Store(int64(g.Repetitions))
	}
	return w
}

// claim reserves one repetition of generator i.
func (w *workload) claim(i int) bool {
	return w.remaining[i].Add(-1) >= 0
}

// Produced returns how many values each key is fed in total.
func (w *workload) Produced() map[int]int {
	out := make(map[int]int)
	for _, g := range w.generators {
		out[g.Key] += g.Repetitions
	}
	return out
}

// produce feeds the generators round robin, one value per generator per round, until every
// generator is exhausted or ctx is done.
func produce(ctx context.Context, d *multiqueue.Dispatcher[int, int], w *workload) error {
	for {
		var active bool
		for i, g := range w.generators {
			if !w.claim(i) {
				continue
			}
			active = true
			if err := d.EnqueueContext(ctx, g.Key, g.Value); err != nil {
				return err
			}
			if g.Delay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(g.Delay):
				}
			}
		}
		if !active {
			return nil
		}
	}
}

// waitForDrain polls until no queue holds items, the timeout elapses or ctx is done. It reports
// whether the queues drained.
func waitForDrain(ctx context.Context, d *multiqueue.Dispatcher[int, int], timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()

	for {
		if d.Backlog() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-tick.C:
		}
	}
}

// tally is a Consumer counting how often each value was received.
type tally struct {
	mu     sync.Mutex
	counts map[int]int
	total  int
}

func newTally() *tally {
	return &tally{counts: make(map[int]int)}
}

func (t *tally) Consume(v int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[v]++
	t.total++
}

func (t *tally) Counts() map[int]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.counts)
}

func (t *tally) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// report writes one block per key: the totals, then every received value with its count.
func report(w io.Writer, produced map[int]int, tallies map[int]*tally) error {
	for _, key := range slices.Sorted(maps.Keys(tallies)) {
		t := tallies[key]
		if _, err := fmt.Fprintf(w, "key %d: produced %d, consumed %d\n", key, produced[key], t.Total()); err != nil {
			return err
		}
		counts := t.Counts()
		for _, v := range slices.Sorted(maps.Keys(counts)) {
			if _, err := fmt.Fprintf(w, "  value %d x%d\n", v, counts[v]); err != nil {
				return err
			}
		}
	}
	return nil
}
