package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fetchcore/fetchengine/pkg/types"
)

// Call is the abortable-promise equivalent (spec §6 / §9: "a thenable
// with extra fields"): a handle that both resolves to a typed response
// and exposes imperative cancellation and status flags. Go has no
// thenable protocol, so the awaitable half is a buffered result channel
// drained by Wait.
type Call struct {
	cancel   context.CancelFunc
	abortOnce sync.Once
	aborted  atomic.Bool
	finished atomic.Bool
	resultCh chan callResult
}

type callResult struct {
	resp *types.Response
	err  *types.FetchError
}

// Abort cancels the in-flight attempt. Idempotent.
func (c *Call) Abort() {
	c.abortOnce.Do(func() {
		c.aborted.Store(true)
		c.cancel()
	})
}

// IsAborted reports whether the call was aborted, either via Abort or
// because its context (directly passed or shared with another call)
// was canceled out from under it.
func (c *Call) IsAborted() bool { return c.aborted.Load() }

// IsFinished reports whether the call has settled (success or error).
// A call from Do that ends aborted (Abort, a canceled context or a
// timeout) never reports finished; only IsAborted becomes true.
func (c *Call) IsFinished() bool { return c.finished.Load() }

// Wait blocks for the call to settle and returns its outcome.
func (c *Call) Wait() (*types.Response, *types.FetchError) {
	r := <-c.resultCh
	return r.resp, r.err
}

// Rejected returns an already-settled, already-aborted Call carrying
// ferr, for callers (e.g. a destroyed engine) that must hand back the
// same abortable-promise shape without actually driving a request.
func Rejected(ferr *types.FetchError) *Call {
	c := &Call{cancel: func() {}, resultCh: make(chan callResult, 1)}
	c.aborted.Store(true)
	c.finished.Store(true)
	c.resultCh <- callResult{err: ferr}
	return c
}
