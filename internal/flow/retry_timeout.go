package flow

import (
	"context"
	"time"
)

// RetryConfig configures the generic retry wrapper exposed through
// composeFlow's "retry" key. RequestPipeline implements its own
// HTTP-aware retry loop directly (spec §4.G); this is the
// flow-primitive-level retry for arbitrary producers.
type RetryConfig struct {
	MaxAttempts           int
	BaseDelay             time.Duration
	MaxDelay              time.Duration
	UseExponentialBackoff bool
	ShouldRetry           func(err error, attempt int) bool
}

// Retry wraps task, re-invoking it on error up to cfg.MaxAttempts times.
// It waits cfg.BaseDelay between attempts, doubled per attempt when
// cfg.UseExponentialBackoff is set (the shape the teacher's recache
// distributor uses for its own retry loop), and capped at cfg.MaxDelay
// when that is positive.
func Retry(task *Task, cfg RetryConfig) (*Task, error) {
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = func(error, int) bool { return true }
	}

	return task.layer("retry", func(ctx context.Context, args ...any) (any, error) {
		var lastErr error
		var lastVal any
		for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
			val, err := task.call(ctx, args...)
			if err == nil {
				return val, nil
			}
			lastVal, lastErr = val, err

			if attempt == cfg.MaxAttempts || !shouldRetry(err, attempt) {
				break
			}

			delay := cfg.BaseDelay
			if cfg.UseExponentialBackoff {
				delay = cfg.BaseDelay * (1 << (attempt - 1))
			}
			if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}

			select {
			case <-ctx.Done():
				return lastVal, ctx.Err()
			case <-time.After(delay):
			}
		}
		return lastVal, lastErr
	})
}

// WithTimeout wraps task so each call is bounded by a fresh
// context.WithTimeout derived from the caller's context.
func WithTimeout(task *Task, d time.Duration) (*Task, error) {
	return task.layer("withTimeout", func(ctx context.Context, args ...any) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return task.call(ctx, args...)
	})
}
