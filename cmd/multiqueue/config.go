package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/multiqueue/pkg/multiqueue"
)

// Config holds all configuration for the multiqueue application
type Config struct {
	// Application settings
	Verbose bool

	// Workload settings
	Generators   []Generator
	Producers    int
	DrainTimeout time.Duration

	// Queue settings
	Policy           multiqueue.OverflowPolicy
	DropIfNoConsumer bool
	Dispatcher       multiqueue.Config

	// Metrics settings
	MetricsHost   string
	MetricsPort   int
	Instance      string
	Environment   string
	Region        string
	CloudProvider string
}

// Generator produces Value onto queue Key Repetitions times, pausing Delay after each push.
type Generator struct {
	Key         int
	Value       int
	Repetitions int
	Delay       time.Duration
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// Keys returns the distinct generator keys in first-seen order.
func (c *Config) Keys() []int {
	seen := make(map[int]struct{}, len(c.Generators))
	keys := make([]int, 0, len(c.Generators))
	for _, g := range c.Generators {
		if _, ok := seen[g.Key]; ok {
			continue
		}
		seen[g.Key] = struct{}{}
		keys = append(keys, g.Key)
	}
	return keys
}

// buildConfig builds a Config from CLI context flags. Dispatcher settings start from the
// MULTIQUEUE_* environment and are overridden by flags that were set explicitly.
func buildConfig(c *cli.Context) (*Config, error) {
	dispatcherCfg, err := multiqueue.LoadConfig()
	if err != nil {
		return nil, err
	}
	if c.IsSet("capacity") {
		dispatcherCfg.DefaultCapacity = c.Int("capacity")
	}
	if c.IsSet("watchdog-interval") {
		dispatcherCfg.WatchdogInterval = c.Duration("watchdog-interval")
	}
	if c.IsSet("max-backlog") {
		dispatcherCfg.MaxBacklog = c.Int("max-backlog")
	}
	if err := dispatcherCfg.Validate(); err != nil {
		return nil, err
	}

	policy, err := multiqueue.ParseOverflowPolicy(c.String("policy"))
	if err != nil {
		return nil, err
	}

	generators, err := parseGenerators(c.StringSlice("generator"))
	if err != nil {
		return nil, err
	}

	producers := c.Int("producers")
	if producers <= 0 {
		return nil, fmt.Errorf("invalid producers: must be greater than 0, got %d", producers)
	}

	return &Config{
		Verbose:          c.Bool("verbose"),
		Generators:       generators,
		Producers:        producers,
		DrainTimeout:     c.Duration("drain-timeout"),
		Policy:           policy,
		DropIfNoConsumer: c.Bool("drop-if-no-consumer"),
		Dispatcher:       dispatcherCfg,
		MetricsHost:      c.String("metrics-host"),
		MetricsPort:      c.Int("metrics-port"),
		Instance:         c.String("instance"),
		Environment:      c.String("environment"),
		Region:           c.String("region"),
		CloudProvider:    c.String("cloud-provider"),
	}, nil
}

// parseGenerators parses every generator flag value. A single comma-separated value is split, since
// GENERATORS arrives as one string.
func parseGenerators(values []string) ([]Generator, error) {
	if len(values) == 1 && strings.Contains(values[0], ",") {
		values = strings.Split(values[0], ",")
	}
	if len(values) == 0 {
		return nil, errors.New("invalid generators: at least one is required")
	}

	generators := make([]Generator, 0, len(values))
	for _, s := range values {
		g, err := parseGenerator(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		generators = append(generators, g)
	}
	return generators, nil
}

// parseGenerator parses key:value:repetitions:delay, e.g. "1:5:50:1ms".
func parseGenerator(s string) (Generator, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return Generator{}, fmt.Errorf("invalid generator %q: want key:value:repetitions:delay", s)
	}

	key, err := strconv.Atoi(parts[0])
	if err != nil {
		return Generator{}, fmt.Errorf("invalid generator %q: key: %w", s, err)
	}
	value, err := strconv.Atoi(parts[1])
	if err != nil {
		return Generator{}, fmt.Errorf("invalid generator %q: value: %w", s, err)
	}
	reps, err := strconv.Atoi(parts[2])
	if err != nil {
		return Generator{}, fmt.Errorf("invalid generator %q: repetitions: %w", s, err)
	}
	if reps < 0 {
		return Generator{}, fmt.Errorf("invalid generator %q: repetitions must not be negative", s)
	}
	delay, err := time.ParseDuration(parts[3])
	if err != nil {
		return Generator{}, fmt.Errorf("invalid generator %q: delay: %w", s, err)
	}
	if delay < 0 {
		return Generator{}, fmt.Errorf("invalid generator %q: delay must not be negative", s)
	}

	return Generator{Key: key, Value: value, Repetitions: reps, Delay: delay}, nil
}
