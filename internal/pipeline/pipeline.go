// Package pipeline implements RequestPipeline (spec §4.G): compose,
// cache-check, dedup-join-or-own, attempt-with-retry, classify,
// cache-store, emit. Grounded on the teacher's internal/edge/rsclient
// (the HTTP round trip + structured logging at each failure point,
// generalized here into fetch-after/fetch-error events) and
// internal/cachedaemon.Distributor (the attempt/backoff/discard loop,
// generalized into the retry state machine).
package pipeline

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fetchcore/fetchengine/internal/cachestore"
	"github.com/fetchcore/fetchengine/internal/events"
	"github.com/fetchcore/fetchengine/internal/logging"
	"github.com/fetchcore/fetchengine/internal/metrics"
	"github.com/fetchcore/fetchengine/internal/propstore"
	"github.com/fetchcore/fetchengine/pkg/types"
)

// HTTPDoer is the platform fetch collaborator (spec §1: "out of scope,
// treated as an external collaborator"); *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config wires every collaborator a Pipeline needs. Owned collaborators
// (Cache, Emitter, header/param stores) are constructed by FetchEngine
// and handed down, never created implicitly.
type Config struct {
	HTTPClient HTTPDoer
	BaseURL    string

	HeaderStore *propstore.Store
	ParamStore  *propstore.Store
	Cache       *cachestore.Store
	Emitter     *events.Emitter

	DefaultType types.ContentType
	DetermineType func(*types.RequestContext) types.ContentType

	ModifyOptions       func(*types.ResolvedRequest, any) error
	ModifyMethodOptions map[types.Method]func(*types.ResolvedRequest, any) error

	ValidateHeaders func(map[string]string, types.Method) error
	ValidateParams  func(map[string]string, types.Method) error
	ValidateState   func(any) error

	CachePolicy  PolicyConfig
	DedupePolicy PolicyConfig

	DefaultRetry *types.RetryConfig

	// Logger receives structured diagnostics for every attempt; nil
	// falls back to a no-op logger so Pipeline never requires one.
	Logger *logging.Logger

	// Metrics records request/cache counters; nil disables recording.
	Metrics *metrics.Metrics
}

// Pipeline drives a single engine instance's per-request state machine.
type Pipeline struct {
	httpClient HTTPDoer

	baseURLMu sync.RWMutex
	baseURL   string

	headerStore *propstore.Store
	paramStore  *propstore.Store
	cache       *cachestore.Store
	emitter     *events.Emitter

	defaultType   types.ContentType
	determineType func(*types.RequestContext) types.ContentType

	modifyOptionsMu     sync.RWMutex
	modifyOptions       func(*types.ResolvedRequest, any) error
	modifyMethodOptions map[types.Method]func(*types.ResolvedRequest, any) error

	validateHeaders func(map[string]string, types.Method) error
	validateParams  func(map[string]string, types.Method) error
	validateState   func(any) error

	cachePolicy  PolicyConfig
	dedupePolicy PolicyConfig
	defaultRetry *types.RetryConfig

	sfGroup      singleflight.Group
	inflightMu   sync.Mutex
	inflightKeys map[string]bool

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New constructs a Pipeline from cfg.
func New(cfg Config) *Pipeline {
	methodOpts := cfg.ModifyMethodOptions
	if methodOpts == nil {
		methodOpts = map[types.Method]func(*types.ResolvedRequest, any) error{}
	}
	logger := zap.NewNop()
	if cfg.Logger != nil {
		logger = cfg.Logger.Logger
	}
	return &Pipeline{
		httpClient:          cfg.HTTPClient,
		baseURL:             cfg.BaseURL,
		headerStore:         cfg.HeaderStore,
		paramStore:          cfg.ParamStore,
		cache:               cfg.Cache,
		emitter:             cfg.Emitter,
		defaultType:         cfg.DefaultType,
		determineType:       cfg.DetermineType,
		modifyOptions:       cfg.ModifyOptions,
		modifyMethodOptions: methodOpts,
		validateHeaders:     cfg.ValidateHeaders,
		validateParams:      cfg.ValidateParams,
		validateState:       cfg.ValidateState,
		cachePolicy:         cfg.CachePolicy,
		dedupePolicy:         cfg.DedupePolicy,
		defaultRetry:        cfg.DefaultRetry,
		inflightKeys:        map[string]bool{},
		logger:              logger,
		metrics:             cfg.Metrics,
	}
}

// BaseURL returns the current base URL under lock (changeBaseUrl
// mutates it concurrently with in-flight composes).
func (p *Pipeline) BaseURL() string {
	p.baseURLMu.RLock()
	defer p.baseURLMu.RUnlock()
	return p.baseURL
}

// SetBaseURL implements changeBaseUrl.
func (p *Pipeline) SetBaseURL(url string) {
	p.baseURLMu.Lock()
	defer p.baseURLMu.Unlock()
	p.baseURL = url
}

// SetModifyOptions implements changeModifyOptions.
func (p *Pipeline) SetModifyOptions(fn func(*types.ResolvedRequest, any) error) {
	p.modifyOptionsMu.Lock()
	defer p.modifyOptionsMu.Unlock()
	p.modifyOptions = fn
}

// SetModifyMethodOptions implements changeModifyMethodOptions(method, fn?).
// A nil fn removes the override for that method.
func (p *Pipeline) SetModifyMethodOptions(method types.Method, fn func(*types.ResolvedRequest, any) error) {
	p.modifyOptionsMu.Lock()
	defer p.modifyOptionsMu.Unlock()
	if fn == nil {
		delete(p.modifyMethodOptions, method)
		return
	}
	p.modifyMethodOptions[method] = fn
}

// Do starts the full pipeline for rc and returns immediately with an
// abortable Call (spec §9 "thenable with extra fields").
func (p *Pipeline) Do(parentCtx context.Context, rc *types.RequestContext) *Call {
	ctx, cancel := context.WithCancel(parentCtx)
	if rc.Timeout > 0 {
		tctx, tcancel := context.WithTimeout(ctx, rc.Timeout)
		ctx = tctx
		outer := cancel
		cancel = func() { tcancel(); outer() }
	}

	call := &Call{cancel: cancel, resultCh: make(chan callResult, 1)}

	go func() {
		resp, ferr := p.run(ctx, rc)
		if ferr != nil && ferr.Aborted {
			// A caller-shared ctx can be canceled by something other than
			// call.Abort() (spec scenario 5); bridge that into the same
			// aborted flag so IsAborted() reflects either path.
			call.aborted.Store(true)
		} else {
			call.finished.Store(true)
		}
		call.resultCh <- callResult{resp: resp, err: ferr}
	}()

	return call
}

func (p *Pipeline) run(ctx context.Context, rc *types.RequestContext) (*types.Response, *types.FetchError) {
	start := time.Now()
	resolved, err := p.compose(rc)
	if err != nil {
		return nil, asFetchError(err, rc)
	}

	if rc.OnBeforeReq != nil {
		safeHook(func() { rc.OnBeforeReq(resolved) })
	}

	cachePolicy, err := p.resolveCache(rc, resolved)
	if err != nil {
		ferr := asFetchError(err, rc)
		p.emitError(resolved, ferr)
		return nil, ferr
	}

	if cachePolicy.Enabled && p.cache != nil {
		res := p.cache.Get(resolved.CacheKey)
		switch res.State {
		case types.CacheStateFresh:
			p.recordMetricsCacheHit()
			return res.Value.(*types.Response), nil
		case types.CacheStateStale:
			p.recordMetricsCacheStale()
			p.cache.Revalidate(resolved.CacheKey, cachePolicy.TTL, cachePolicy.StaleIn, func() (any, error) {
				resp, ferr := p.dedupAndAttempt(ctx, resolved, rc)
				if ferr != nil {
					return nil, ferr
				}
				return resp, nil
			})
			return res.Value.(*types.Response), nil
		default:
			p.recordMetricsCacheMiss()
		}
	}

	resp, ferr := p.dedupAndAttempt(ctx, resolved, rc)
	if ferr != nil {
		if rc.OnError != nil {
			safeHook(func() { rc.OnError(ferr) })
		}
		p.recordMetricsRequest(resolved, ferr.Status, time.Since(start))
		return nil, ferr
	}

	if cachePolicy.Enabled && p.cache != nil {
		p.cache.Set(resolved.CacheKey, resp, cachePolicy.TTL, cachePolicy.StaleIn)
	}

	if rc.OnAfterReq != nil {
		safeHook(func() { rc.OnAfterReq(resolved) })
	}

	p.recordMetricsRequest(resolved, resp.Status, time.Since(start))
	return resp, nil
}

func (p *Pipeline) recordMetricsRequest(resolved *types.ResolvedRequest, status int, d time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordRequest(string(resolved.Method), strconv.Itoa(status), d)
}

func (p *Pipeline) recordMetricsCacheHit() {
	if p.metrics != nil {
		p.metrics.RecordCacheHit()
	}
}

func (p *Pipeline) recordMetricsCacheMiss() {
	if p.metrics != nil {
		p.metrics.RecordCacheMiss()
	}
}

func (p *Pipeline) recordMetricsCacheStale() {
	if p.metrics != nil {
		p.metrics.RecordCacheStale()
	}
}

// dedupAndAttempt resolves the dedupe policy and either joins/owns a
// single-flight slot keyed on resolved.DedupeKey or runs the retry loop
// directly.
func (p *Pipeline) dedupAndAttempt(ctx context.Context, resolved *types.ResolvedRequest, rc *types.RequestContext) (*types.Response, *types.FetchError) {
	dedupe, err := p.resolveDedupe(rc, resolved)
	if err != nil {
		return nil, asFetchError(err, rc)
	}
	if !dedupe.Enabled {
		return p.attemptLoop(ctx, resolved, rc)
	}

	key := resolved.DedupeKey

	p.inflightMu.Lock()
	isJoiner := p.inflightKeys[key]
	if !isJoiner {
		p.inflightKeys[key] = true
	}
	p.inflightMu.Unlock()

	if isJoiner {
		p.emit(types.EventFetchDedupeJoin, resolved)
	} else {
		p.emit(types.EventFetchDedupeStart, resolved)
	}

	v, sfErr, _ := p.sfGroup.Do(key, func() (any, error) {
		resp, ferr := p.attemptLoop(ctx, resolved, rc)
		if ferr != nil {
			return nil, ferr
		}
		return resp, nil
	})

	if !isJoiner {
		p.inflightMu.Lock()
		delete(p.inflightKeys, key)
		p.inflightMu.Unlock()
	}

	if sfErr != nil {
		if ferr, ok := sfErr.(*types.FetchError); ok {
			return nil, ferr
		}
		return nil, &types.FetchError{Kind: types.ErrorKindNetwork, Method: resolved.Method, URL: resolved.URL, Config: resolved, Cause: sfErr}
	}
	return v.(*types.Response), nil
}

// attemptLoop runs the fire-before/execute/classify/retry cycle (spec
// §4.G state machine).
func (p *Pipeline) attemptLoop(ctx context.Context, resolved *types.ResolvedRequest, rc *types.RequestContext) (*types.Response, *types.FetchError) {
	retryCfg := p.defaultRetry
	if rc.Retry != nil {
		retryCfg = rc.Retry
	}

	for attempt := 1; ; attempt++ {
		p.emit(types.EventFetchBefore, resolved)

		resp, ferr := p.doAttempt(ctx, resolved, attempt)

		p.emit(types.EventFetchAfter, resolved)

		if ferr == nil {
			p.emitResponse(resolved, resp)
			return resp, nil
		}

		if ferr.Aborted {
			p.emitAbort(resolved, ferr)
			return nil, ferr
		}

		p.emitError(resolved, ferr)

		retry, delay := p.shouldRetry(retryCfg, ferr, attempt)
		if !retry {
			return nil, ferr
		}

		p.emitRetry(resolved, attempt, delay)
		if p.metrics != nil {
			p.metrics.RecordRetry(string(resolved.Method))
		}

		select {
		case <-ctx.Done():
			return nil, &types.FetchError{
				Kind: types.ErrorKindAbort, Status: types.StatusAbort, Aborted: true,
				Attempt: attempt, Method: resolved.Method, URL: resolved.URL, Config: resolved, Cause: ctx.Err(),
			}
		case <-time.After(delay):
		}
	}
}

func asFetchError(err error, rc *types.RequestContext) *types.FetchError {
	switch e := err.(type) {
	case *types.FetchError:
		return e
	case *types.ValidationError, *types.ConfigError:
		return &types.FetchError{Kind: types.ErrorKindValidation, Method: rc.Method, Cause: err}
	default:
		return &types.FetchError{Kind: types.ErrorKindNetwork, Method: rc.Method, Cause: err}
	}
}

func safeHook(fn func()) {
	defer func() { _ = recover() }()
	fn()
}
