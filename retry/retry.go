// Package retry provides the small reusable retry combinator called for by
// the core's design notes: a single place parameterizing max attempts, base
// delay, backoff factor, and an is-retriable predicate, shared by the
// client's chunk-PUT retry loop and the worker's peer replication fan-out.
package retry

import (
	"context"
	"time"
)

// Config parameterizes a retry run.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the delay before the second attempt; each subsequent
	// delay is BaseDelay * Factor^(attempt-1).
	BaseDelay time.Duration
	// Factor is the exponential backoff multiplier.
	Factor float64
	// IsRetriable decides whether a given error should be retried. A nil
	// IsRetriable retries every non-nil error.
	IsRetriable func(error) bool
}

// DefaultConfig matches the client upload's PUT retry policy from the
// spec: base 1s, factor 2, max 3 retries (4 attempts total).
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		Factor:      2,
	}
}

// Do runs fn, retrying per cfg until it succeeds, attempts are exhausted,
// or ctx is cancelled. It returns the last error encountered.
func Do(ctx context.Context, cfg Config, fn func(attempt int) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	var lastErr error
	delay := cfg.BaseDelay
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if cfg.IsRetriable != nil && !cfg.IsRetriable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * cfg.Factor)
	}
	return lastErr
}
