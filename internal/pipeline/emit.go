package pipeline

import (
	"time"

	"github.com/fetchcore/fetchengine/pkg/types"
)

func (p *Pipeline) baseEvent(t types.EventType, resolved *types.ResolvedRequest) types.Event {
	return types.Event{
		Type:    t,
		State:   resolved.State,
		Method:  resolved.Method,
		URL:     resolved.URL,
		Headers: resolved.Headers,
	}
}

func (p *Pipeline) emit(t types.EventType, resolved *types.ResolvedRequest) {
	if p.emitter == nil {
		return
	}
	p.emitter.Emit(p.baseEvent(t, resolved))
}

func (p *Pipeline) emitResponse(resolved *types.ResolvedRequest, resp *types.Response) {
	if p.emitter == nil {
		return
	}
	evt := p.baseEvent(types.EventFetchResponse, resolved)
	evt.Response = &types.ResponseEventData{Data: resp.Data, Status: resp.Status}
	p.emitter.Emit(evt)
}

func (p *Pipeline) emitError(resolved *types.ResolvedRequest, ferr *types.FetchError) {
	if p.emitter == nil {
		return
	}
	evt := p.baseEvent(types.EventFetchError, resolved)
	evt.Err = &types.ErrorEventData{Status: ferr.Status, Data: ferr.Data, Attempt: ferr.Attempt, Aborted: ferr.Aborted}
	p.emitter.Emit(evt)
}

func (p *Pipeline) emitAbort(resolved *types.ResolvedRequest, ferr *types.FetchError) {
	if p.emitter == nil {
		return
	}
	evt := p.baseEvent(types.EventFetchAbort, resolved)
	evt.Err = &types.ErrorEventData{Status: ferr.Status, Attempt: ferr.Attempt, Aborted: true}
	p.emitter.Emit(evt)
}

func (p *Pipeline) emitRetry(resolved *types.ResolvedRequest, attempt int, delay time.Duration) {
	if p.emitter == nil {
		return
	}
	evt := p.baseEvent(types.EventFetchRetry, resolved)
	evt.Retry = &types.RetryEventData{Attempt: attempt, NextDelay: delay}
	p.emitter.Emit(evt)
}
