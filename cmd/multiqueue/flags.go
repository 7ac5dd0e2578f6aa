package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

// runFlags returns all CLI flags for the multiqueue run command
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
			Value:   false,
		},
		&cli.StringSliceFlag{
			Name:    "generator",
			Aliases: []string{"g"},
			Usage:   "Producer workload as key:value:repetitions:delay (repeatable)",
			EnvVars: []string{"GENERATORS"},
			Value:   cli.NewStringSlice("1:5:50:1ms", "2:10:100:0s"),
		},
		&cli.StringFlag{
			Name:    "policy",
			Aliases: []string{"p"},
			Usage:   "Overflow policy of every queue (skip-newest, drop-oldest, wait-for-space)",
			EnvVars: []string{"OVERFLOW_POLICY"},
			Value:   "skip-newest",
		},
		&cli.BoolFlag{
			Name:    "drop-if-no-consumer",
			Usage:   "Discard values pushed while a queue has no consumer",
			EnvVars: []string{"DROP_IF_NO_CONSUMER"},
			Value:   true,
		},
		&cli.IntFlag{
			Name:    "capacity",
			Aliases: []string{"c"},
			Usage:   "Queue capacity (overrides MULTIQUEUE_DEFAULT_CAPACITY)",
		},
		&cli.IntFlag{
			Name:    "producers",
			Usage:   "Number of producer goroutines sharing the generators",
			EnvVars: []string{"PRODUCERS"},
			Value:   1,
		},
		&cli.DurationFlag{
			Name:    "drain-timeout",
			Usage:   "Maximum time to wait for the queues to drain after the producers finish",
			EnvVars: []string{"DRAIN_TIMEOUT"},
			Value:   5 * time.Second,
		},
		&cli.DurationFlag{
			Name:  "watchdog-interval",
			Usage: "Interval between backlog checks (overrides MULTIQUEUE_WATCHDOG_INTERVAL)",
		},
		&cli.IntFlag{
			Name:  "max-backlog",
			Usage: "Queue size at which the watchdog warns (overrides MULTIQUEUE_MAX_BACKLOG)",
		},
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Aliases: []string{"m"},
			Usage:   "Port for Prometheus metrics server (0 disables it)",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
		&cli.StringFlag{
			Name:    "instance",
			Usage:   "Instance name label for metrics",
			EnvVars: []string{"INSTANCE_NAME"},
			Value:   "multiqueue",
		},
		&cli.StringFlag{
			Name:    "environment",
			Aliases: []string{"E"},
			Usage:   "Deployment environment for metrics labels (e.g., 'production', 'staging')",
			EnvVars: []string{"ENVIRONMENT"},
			Value:   "",
		},
		&cli.StringFlag{
			Name:    "region",
			Aliases: []string{"R"},
			Usage:   "Cloud region for metrics labels (e.g., 'us-east-1')",
			EnvVars: []string{"REGION"},
			Value:   "",
		},
		&cli.StringFlag{
			Name:    "cloud-provider",
			Usage:   "Cloud provider for metrics labels (e.g., 'aws', 'oci', 'gcp')",
			EnvVars: []string{"CLOUD_PROVIDER"},
			Value:   "",
		},
	}
}
