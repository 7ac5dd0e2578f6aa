package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/multiqueue/pkg/metrics"
	"github.com/ava-labs/multiqueue/pkg/multiqueue"
	"github.com/ava-labs/multiqueue/pkg/utils"
)

func run(c *cli.Context) error {
	// Build configuration from CLI flags
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger("multiqueue", cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"generators", cfg.Generators,
		"producers", cfg.Producers,
		"drainTimeout", cfg.DrainTimeout,
		"policy", cfg.Policy.String(),
		"dropIfNoConsumer", cfg.DropIfNoConsumer,
		"capacity", cfg.Dispatcher.DefaultCapacity,
		"watchdogInterval", cfg.Dispatcher.WatchdogInterval,
		"maxBacklog", cfg.Dispatcher.MaxBacklog,
		"metricsHost", cfg.MetricsHost,
		"metricsPort", cfg.MetricsPort,
		"environment", cfg.Environment,
		"region", cfg.Region,
		"cloudProvider", cfg.CloudProvider,
	)

	// Initialize Prometheus metrics with labels for multi-instance filtering
	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, metrics.Labels{
		Instance:      cfg.Instance,
		Environment:   cfg.Environment,
		Region:        cfg.Region,
		CloudProvider: cfg.CloudProvider,
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	d, err := multiqueue.New[int, int](sugar, cfg.Dispatcher, m)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	defer d.Close()

	var metricsServer *metrics.Server
	var metricsErrCh <-chan error
	if cfg.MetricsPort != 0 {
		metricsServer = metrics.NewServer(cfg.MetricsAddr(), registry, d.Running)
		metricsErrCh = metricsServer.Start()
		if cfg.MetricsHost == "" {
			sugar.Infof("metrics server listening on http://0.0.0.0:%d/metrics", cfg.MetricsPort)
		} else {
			sugar.Infof("metrics server listening on http://%s/metrics", cfg.MetricsAddr())
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tallies := make(map[int]*tally)
	for _, key := range cfg.Keys() {
		if !d.CreateQueue(key,
			multiqueue.WithOverflowPolicy(cfg.Policy),
			multiqueue.WithDropIfNoConsumer(cfg.DropIfNoConsumer),
		) {
			return fmt.Errorf("failed to create queue %d", key)
		}
		tallies[key] = newTally()
		d.Subscribe(key, tallies[key])
	}

	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()
	bg, bgCtx := errgroup.WithContext(bgCtx)
	bg.Go(func() error {
		multiqueue.StartBacklogWatchdog(bgCtx, sugar, d, m, cfg.Dispatcher.WatchdogInterval, cfg.Dispatcher.MaxBacklog)
		return nil
	})
	if metricsServer != nil {
		bg.Go(func() error {
			select {
			case <-bgCtx.Done():
				return nil
			case err := <-metricsErrCh:
				if err != nil {
					return fmt.Errorf("metrics server failed: %w", err)
				}
				return nil
			}
		})
	}

	w := newWorkload(cfg.Generators)
	start := time.Now()
	producers, pctx := errgroup.WithContext(bgCtx)
	for range cfg.Producers {
		producers.Go(func() error {
			return produce(pctx, d, w)
		})
	}
	err = producers.Wait()
	if err == nil {
		if !waitForDrain(bgCtx, d, cfg.DrainTimeout) {
			sugar.Warnw("queues did not drain", "backlog", d.Backlog(), "timeout", cfg.DrainTimeout)
		}
	}

	// Stop the worker before reading the tallies so no consumer is still running.
	d.Close()
	cancelBg()
	if bgErr := bg.Wait(); bgErr != nil && (err == nil || errors.Is(err, context.Canceled)) {
		err = bgErr
	}

	if errors.Is(err, context.Canceled) {
		sugar.Infow("exiting due to context cancellation")
	} else if err != nil {
		sugar.Errorw("run failed", "error", err)
	}

	if metricsServer != nil {
		sugar.Info("shutting down metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			sugar.Warnw("metrics server shutdown error", "error", err)
		}
	}

	sugar.Infow("run complete", "elapsed", time.Since(start))
	if reportErr := report(c.App.Writer, w.Produced(), tallies); reportErr != nil && err == nil {
		err = fmt.Errorf("failed to write report: %w", reportErr)
	}
	return err
}
