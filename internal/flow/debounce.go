package flow

import (
	"context"
	"sync"
	"time"
)

// DebounceConfig configures Debounce (spec §4.D debounce).
type DebounceConfig struct {
	Delay   time.Duration
	MaxWait *time.Duration
}

type debounceResult struct {
	val any
	err error
}

// DebounceHandle exposes Flush and Cancel, the two imperative controls
// the spec requires for debounce.
type DebounceHandle struct {
	mu             sync.Mutex
	delay          time.Duration
	maxWait        *time.Duration
	timer          *time.Timer
	hasPending     bool
	firstPendingAt time.Time
	pendingCtx     context.Context
	pendingArgs    []any
	waiters        []chan debounceResult
	run            func(ctx context.Context, args ...any) (any, error)
	now            func() time.Time
}

// Flush runs the pending execution synchronously with the latest
// arguments and returns its result, or (nil, nil) if nothing is
// pending.
func (h *DebounceHandle) Flush() (any, error) {
	ctx, args, waiters, ok := h.takePending()
	if !ok {
		return nil, nil
	}
	val, err := h.run(ctx, args...)
	h.broadcast(waiters, debounceResult{val: val, err: err})
	return val, err
}

// Cancel drops any pending call silently, releasing waiters with a zero
// result.
func (h *DebounceHandle) Cancel() {
	_, _, waiters, ok := h.takePending()
	if !ok {
		return
	}
	h.broadcast(waiters, debounceResult{})
}

func (h *DebounceHandle) takePending() (context.Context, []any, []chan debounceResult, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.hasPending {
		return nil, nil, nil, false
	}
	if h.timer != nil {
		h.timer.Stop()
	}
	ctx, args, waiters := h.pendingCtx, h.pendingArgs, h.waiters
	h.hasPending = false
	h.pendingCtx = nil
	h.pendingArgs = nil
	h.waiters = nil
	return ctx, args, waiters, true
}

func (h *DebounceHandle) broadcast(waiters []chan debounceResult, r debounceResult) {
	for _, w := range waiters {
		w <- r
		close(w)
	}
}

func (h *DebounceHandle) schedule(ctx context.Context, args []any) (forceNow bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if !h.hasPending {
		h.hasPending = true
		h.firstPendingAt = now
	}
	h.pendingCtx = ctx
	h.pendingArgs = args

	if h.timer != nil {
		h.timer.Stop()
	}
	h.timer = time.AfterFunc(h.delay, func() { h.Flush() })

	if h.maxWait != nil && now.Sub(h.firstPendingAt) >= *h.maxWait {
		return true
	}
	return false
}

// Debounce wraps task as a trailing-edge debounce with an optional
// maxWait ceiling. Each call replaces the pending schedule, retaining
// only the latest arguments, and blocks until that scheduled execution
// (or a forced one, past maxWait) settles.
func Debounce(task *Task, cfg DebounceConfig) (*Task, *DebounceHandle, error) {
	h := &DebounceHandle{delay: cfg.Delay, maxWait: cfg.MaxWait, now: time.Now, run: task.call}

	wrapped, err := task.layer("debounce", func(ctx context.Context, args ...any) (any, error) {
		ch := make(chan debounceResult, 1)
		h.mu.Lock()
		h.waiters = append(h.waiters, ch)
		h.mu.Unlock()

		forceNow := h.schedule(ctx, args)
		if forceNow {
			h.Flush()
		}

		r := <-ch
		return r.val, r.err
	})
	if err != nil {
		return nil, nil, err
	}
	return wrapped, h, nil
}
