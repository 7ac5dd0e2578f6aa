package utils

import (
	"fmt"

	"go.uber.org/zap"
)

// NewSugaredLogger creates a named sugared logger based on the verbose flag.
// If verbose is true, it uses the development config (console output, debug level), otherwise the
// production config (JSON output, info level, sampled).
func NewSugaredLogger(name string, verbose bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	mode := "production"
	if verbose {
		cfg = zap.NewDevelopmentConfig()
		mode = "development"
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s logger: %w", mode, err)
	}
	if name != "" {
		l = l.Named(name)
	}
	return l.Sugar(), nil
}
