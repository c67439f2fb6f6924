package flow

import (
	"context"
	"sync"
	"time"
)

// ThrottleConfig configures Throttle (spec §4.D throttle).
type ThrottleConfig struct {
	Delay      time.Duration
	OnThrottle func(args []any)

	// Throws controls whether a throttled call replaying a cached error
	// result propagates that error; false swallows it as (nil, nil),
	// matching RateLimitConfig.Throws.
	Throws bool
}

// ThrottleHandle exposes the imperative Cancel the spec requires:
// "cancel() clears timestamp, cached value, and in-flight promise."
type ThrottleHandle struct {
	mu        sync.Mutex
	lastExec  time.Time
	hasCached bool
	cachedVal any
	cachedErr error
	now       func() time.Time
}

// Cancel clears the throttle's cached result and execution timestamp so
// the next call always executes fresh.
func (h *ThrottleHandle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hasCached = false
	h.cachedVal = nil
	h.cachedErr = nil
	h.lastExec = time.Time{}
}

// Throttle wraps task as a leading-edge throttle: the first call in a
// window executes and its result (success or error) is cached; calls
// arriving before cfg.Delay has elapsed since the last executed call
// receive that cached result and fire onThrottle instead of re-running
// task.
func Throttle(task *Task, cfg ThrottleConfig) (*Task, *ThrottleHandle, error) {
	h := &ThrottleHandle{now: time.Now}

	wrapped, err := task.layer("throttle", func(ctx context.Context, args ...any) (any, error) {
		h.mu.Lock()
		now := h.now()
		if h.hasCached && now.Sub(h.lastExec) < cfg.Delay {
			val, cerr := h.cachedVal, h.cachedErr
			h.mu.Unlock()
			safeCall(func() {
				if cfg.OnThrottle != nil {
					cfg.OnThrottle(args)
				}
			})
			if cerr != nil && !cfg.Throws {
				return nil, nil
			}
			return val, cerr
		}
		h.lastExec = now
		h.mu.Unlock()

		val, cerr := task.call(ctx, args...)

		h.mu.Lock()
		h.hasCached = true
		h.cachedVal, h.cachedErr = val, cerr
		h.mu.Unlock()

		return val, cerr
	})
	if err != nil {
		return nil, nil, err
	}
	return wrapped, h, nil
}
