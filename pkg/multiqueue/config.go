package multiqueue

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the dispatcher settings.
type Config struct {
	DefaultCapacity  int           `env:"MULTIQUEUE_DEFAULT_CAPACITY"  envDefault:"1000"` // Capacity of queues created without WithCapacity
	WatchdogInterval time.Duration `env:"MULTIQUEUE_WATCHDOG_INTERVAL" envDefault:"10s"`  // Interval between backlog watchdog checks
	MaxBacklog       int           `env:"MULTIQUEUE_MAX_BACKLOG"       envDefault:"900"`  // Per-queue size at which the watchdog warns
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultCapacity:  DefaultCapacity,
		WatchdogInterval: 10 * time.Second,
		MaxBacklog:       900,
	}
}

// LoadConfig reads the Config from MULTIQUEUE_* environment variables, falling back to defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse multiqueue config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the Config for invalid values.
func (c Config) Validate() error {
	if c.DefaultCapacity <= 0 {
		return errors.New("invalid default capacity: must be greater than 0")
	}
	if c.WatchdogInterval <= 0 {
		return errors.New("invalid watchdog interval: must be greater than 0")
	}
	if c.MaxBacklog <= 0 {
		return errors.New("invalid max backlog: must be greater than 0")
	}
	return nil
}
