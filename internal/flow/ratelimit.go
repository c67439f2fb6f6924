package flow

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitError is raised (or reported via OnLimitReached) when a call
// arrives with no tokens left in the bucket.
type RateLimitError struct {
	MaxCalls      int
	NextAvailable time.Time
}

func (e *RateLimitError) Error() string { return "flow: rate limit exceeded" }

// RateLimitConfig configures RateLimit (spec §4.D rateLimit).
type RateLimitConfig struct {
	MaxCalls       int
	Window         time.Duration
	Throws         bool
	OnLimitReached func(err *RateLimitError, nextAvailable time.Time, args []any)
}

// RateLimiter is grounded on ipiton-alert-history-service's
// api/middleware.RateLimiter: a golang.org/x/time/rate token bucket with
// burst set to MaxCalls (so a full quota can be spent instantly) and a
// refill rate that replenishes one token every Window/MaxCalls. It keeps
// no log of call timestamps. Because tokens refill continuously, a
// sliding span of one Window can admit more than MaxCalls calls (a full
// burst, then one more call per Window/MaxCalls).
type RateLimiter struct {
	limiter  *rate.Limiter
	maxCalls int
	now      func() time.Time
}

// NewRateLimiter constructs a standalone limiter, reusable across
// multiple wrapped tasks if the caller wants a shared budget.
func NewRateLimiter(maxCalls int, window time.Duration) *RateLimiter {
	interval := window / time.Duration(maxCalls)
	return &RateLimiter{
		limiter:  rate.NewLimiter(rate.Every(interval), maxCalls),
		maxCalls: maxCalls,
		now:      time.Now,
	}
}

// Allow reports whether a call may proceed now. When denied, it also
// reports nextAvailable, the time at which a token will next be free.
func (r *RateLimiter) Allow() (bool, time.Time) {
	now := r.now()
	res := r.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, now
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.Cancel()
		return false, now.Add(delay)
	}
	return true, time.Time{}
}

// RateLimit wraps task with a token-bucket limiter. On denial it fires
// onLimitReached and either returns RateLimitError (when cfg.Throws) or
// (nil, nil), mirroring "return undefined" for non-throw callers.
func RateLimit(task *Task, cfg RateLimitConfig) (*Task, error) {
	rl := NewRateLimiter(cfg.MaxCalls, cfg.Window)

	return task.layer("rateLimit", func(ctx context.Context, args ...any) (any, error) {
		allowedNow, next := rl.Allow()
		if !allowedNow {
			err := &RateLimitError{MaxCalls: cfg.MaxCalls, NextAvailable: next}
			safeCall(func() {
				if cfg.OnLimitReached != nil {
					cfg.OnLimitReached(err, next, args)
				}
			})
			if cfg.Throws {
				return nil, err
			}
			return nil, nil
		}
		return task.call(ctx, args...)
	})
}
