// Package runlog implements the structured per-run file logger: one log
// file per workflow run under a BIB/date directory tree, a daily summary
// file, and a "latest" marker — all with graceful degradation to the
// shared logger when the filesystem is unavailable.
package runlog

import (
	"log/slog"
	"time"

	"github.com/benchforge/portcore/internal/core/resilience"
	"golang.org/x/time/rate"
)

// Config controls directory layout, degraded-mode throttling and the
// probe-write retry policy.
type Config struct {
	BaseDir               string
	DegradedWarnThrottle  time.Duration
	ProbeRetryMaxAttempts int
	Logger                *slog.Logger
}

func (c *Config) setDefaults() {
	if c.DegradedWarnThrottle <= 0 {
		c.DegradedWarnThrottle = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// dayState caches the outcome of the directory-create-and-probe step for
// one BIB on one calendar day, so every LogEntry/LogSummary call doesn't
// re-probe the filesystem.
type dayState struct {
	dir      string
	degraded bool
	reason   string
}

func retryPolicy(maxAttempts int, logger *slog.Logger) *resilience.RetryPolicy {
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	return &resilience.RetryPolicy{
		MaxRetries:   maxAttempts,
		BaseDelay:    50 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       true,
		ErrorChecker: &resilience.TransientIOErrorChecker{},
		Logger:       logger,
	}
}

// newLimiter returns a rate.Limiter allowing one event per throttle window,
// used to cap how often the "logging is degraded" warning is emitted.
func newLimiter(throttle time.Duration) *rate.Limiter {
	return rate.NewLimiter(rate.Every(throttle), 1)
}
