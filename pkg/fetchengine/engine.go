package fetchengine

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fetchcore/fetchengine/internal/cachestore"
	"github.com/fetchcore/fetchengine/internal/events"
	"github.com/fetchcore/fetchengine/internal/logging"
	"github.com/fetchcore/fetchengine/internal/pipeline"
	"github.com/fetchcore/fetchengine/internal/propstore"
	"github.com/fetchcore/fetchengine/pkg/types"
)

// Engine is FetchEngine: the facade binding KeyFingerprint,
// PropertyStore, RuleResolver, FlowPrimitives, CacheStore and
// LifecycleEmitter behind the per-method request surface (spec §4.H).
type Engine struct {
	pipeline    *pipeline.Pipeline
	headerStore *propstore.Store
	paramStore  *propstore.Store
	cache       *cachestore.Store
	emitter     *events.Emitter

	stateMu      sync.RWMutex
	state        any
	initialState any

	destroyed atomic.Bool
}

// New constructs an Engine, validating cfg synchronously (spec §4.H).
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	headerValidate := func(merged map[string]string, method string) error {
		if cfg.ValidateHeaders == nil {
			return nil
		}
		return cfg.ValidateHeaders(merged, types.Method(method))
	}
	paramValidate := func(merged map[string]string, method string) error {
		if cfg.ValidateParams == nil {
			return nil
		}
		return cfg.ValidateParams(merged, types.Method(method))
	}

	headerStore := propstore.New(headerValidate)
	if len(cfg.Headers) > 0 {
		if err := headerStore.Set(cfg.Headers, ""); err != nil {
			return nil, err
		}
	}
	for method, hdrs := range cfg.MethodHeaders {
		if err := headerStore.Set(hdrs, string(method)); err != nil {
			return nil, err
		}
	}

	paramStore := propstore.New(paramValidate)
	if len(cfg.Params) > 0 {
		if err := paramStore.Set(cfg.Params, ""); err != nil {
			return nil, err
		}
	}
	for method, params := range cfg.MethodParams {
		if err := paramStore.Set(params, string(method)); err != nil {
			return nil, err
		}
	}

	emitter := events.New()
	cache := cachestore.New(func(e types.Event) { emitter.Emit(e) })

	cachePolicy := pipeline.PolicyConfig{}
	if cfg.Cache != nil {
		resolver, err := compileRules(cfg.Cache.Rules)
		if err != nil {
			return nil, err
		}
		cachePolicy = pipeline.PolicyConfig{
			Enabled: cfg.Cache.Enabled, Methods: cfg.Cache.Methods,
			Rules: resolver, Serializer: cfg.Cache.Serializer,
			DefaultTTL: cfg.Cache.TTL, DefaultStaleIn: cfg.Cache.StaleIn, DefaultSkip: cfg.Cache.Skip,
		}
	}

	dedupePolicy := pipeline.PolicyConfig{}
	if cfg.Dedupe != nil {
		resolver, err := compileRules(cfg.Dedupe.Rules)
		if err != nil {
			return nil, err
		}
		dedupePolicy = pipeline.PolicyConfig{
			Enabled: cfg.Dedupe.Enabled, Methods: cfg.Dedupe.Methods,
			Rules: resolver, Serializer: cfg.Dedupe.Serializer,
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	defaultType := cfg.DefaultType
	if defaultType == "" {
		defaultType = types.ContentTypeJSON
	}

	retry := cfg.Retry
	if retry == nil {
		retry = &types.RetryConfig{Enabled: false}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	p := pipeline.New(pipeline.Config{
		HTTPClient:          httpClient,
		BaseURL:             cfg.BaseURL,
		HeaderStore:         headerStore,
		ParamStore:          paramStore,
		Cache:               cache,
		Emitter:             emitter,
		DefaultType:         defaultType,
		DetermineType:       cfg.DetermineType,
		ModifyOptions:       cfg.ModifyOptions,
		ModifyMethodOptions: cfg.ModifyMethodOptions,
		ValidateHeaders:     cfg.ValidateHeaders,
		ValidateParams:      cfg.ValidateParams,
		ValidateState:       cfg.ValidateState,
		CachePolicy:         cachePolicy,
		DedupePolicy:        dedupePolicy,
		DefaultRetry:        retry,
		Logger:              logger,
		Metrics:             cfg.Metrics,
	})

	return &Engine{
		pipeline:     p,
		headerStore:  headerStore,
		paramStore:   paramStore,
		cache:        cache,
		emitter:      emitter,
		state:        cfg.InitialState,
		initialState: cfg.InitialState,
	}, nil
}

// RequestOptions is the per-call `opts` shape (spec §6).
type RequestOptions struct {
	Headers     map[string]string
	Params      map[string]string
	Timeout     time.Duration
	Retry       *types.RetryConfig
	Context     context.Context // abortController equivalent
	OnBeforeReq func(*types.ResolvedRequest)
	OnAfterReq  func(*types.ResolvedRequest)
	OnError     func(*types.FetchError)
}

func (e *Engine) request(method types.Method, path string, payload any, opts *RequestOptions) *pipeline.Call {
	ctx := context.Background()
	rc := &types.RequestContext{Method: method, Path: path, Payload: payload, State: e.GetState()}

	if opts != nil {
		if opts.Context != nil {
			ctx = opts.Context
		}
		rc.Headers = opts.Headers
		rc.Params = opts.Params
		rc.Timeout = opts.Timeout
		rc.Retry = opts.Retry
		rc.OnBeforeReq = opts.OnBeforeReq
		rc.OnAfterReq = opts.OnAfterReq
		rc.OnError = opts.OnError
	}

	if e.destroyed.Load() {
		// A destroyed engine still returns a well-formed, already-rejected
		// Call rather than a bare error, preserving the abortable-promise
		// contract for callers that always do call.Wait().
		return pipeline.Rejected(&types.FetchError{
			Kind: types.ErrorKindAbort, Status: types.StatusAbort, Aborted: true, Method: method, URL: path,
		})
	}

	return e.pipeline.Do(ctx, rc)
}

// Get issues a GET request. opts may be nil. A fresh or stale cache hit
// settles from the cache and fires only its cache event(s); no
// fetch-response event is emitted for it.
func (e *Engine) Get(path string, opts *RequestOptions) *pipeline.Call {
	return e.request(types.MethodGet, path, nil, opts)
}

// Post issues a POST request with body.
func (e *Engine) Post(path string, body any, opts *RequestOptions) *pipeline.Call {
	return e.request(types.MethodPost, path, body, opts)
}

// Put issues a PUT request with body.
func (e *Engine) Put(path string, body any, opts *RequestOptions) *pipeline.Call {
	return e.request(types.MethodPut, path, body, opts)
}

// Patch issues a PATCH request with body.
func (e *Engine) Patch(path string, body any, opts *RequestOptions) *pipeline.Call {
	return e.request(types.MethodPatch, path, body, opts)
}

// Delete issues a DELETE request; body is optional.
func (e *Engine) Delete(path string, body any, opts *RequestOptions) *pipeline.Call {
	return e.request(types.MethodDelete, path, body, opts)
}

// Options issues an OPTIONS request; body is ignored.
func (e *Engine) Options(path string, opts *RequestOptions) *pipeline.Call {
	return e.request(types.MethodOptions, path, nil, opts)
}

// Head issues a HEAD request; body is ignored.
func (e *Engine) Head(path string, opts *RequestOptions) *pipeline.Call {
	return e.request(types.MethodHead, path, nil, opts)
}

// AddHeader merges kv into the default (method="") or per-method header
// layer.
func (e *Engine) AddHeader(kv map[string]string, method types.Method) error {
	if err := e.headerStore.Set(kv, string(method)); err != nil {
		return err
	}
	e.emitSimple(types.EventFetchHeaderAdd)
	return nil
}

// RmHeader removes keys from the default or per-method header layer.
func (e *Engine) RmHeader(keys []string, method types.Method) {
	e.headerStore.Remove(keys, string(method))
	e.emitSimple(types.EventFetchHeaderRemove)
}

// HasHeader reports whether key is present in the effective view for
// method.
func (e *Engine) HasHeader(key string, method types.Method) bool {
	return e.headerStore.Has(key, string(method))
}

// AddParam merges kv into the default or per-method param layer.
func (e *Engine) AddParam(kv map[string]string, method types.Method) error {
	return e.paramStore.Set(kv, string(method))
}

// RmParams removes keys from the default or per-method param layer.
func (e *Engine) RmParams(keys []string, method types.Method) {
	e.paramStore.Remove(keys, string(method))
}

// SetState replaces the process-wide state S.
func (e *Engine) SetState(s any) {
	e.stateMu.Lock()
	e.state = s
	e.stateMu.Unlock()
	e.emitSimple(types.EventFetchStateSet)
}

// ResetState restores S to the value supplied at construction.
func (e *Engine) ResetState() {
	e.stateMu.Lock()
	e.state = e.initialState
	e.stateMu.Unlock()
	e.emitSimple(types.EventFetchStateReset)
}

// GetState reads the current state snapshot.
func (e *Engine) GetState() any {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

// ChangeBaseUrl validates and swaps the instance's base URL.
func (e *Engine) ChangeBaseUrl(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &types.ConfigError{Message: "changeBaseUrl: not a valid absolute URL"}
	}
	e.pipeline.SetBaseURL(rawURL)
	e.emitSimple(types.EventFetchURLChange)
	return nil
}

// ChangeModifyOptions replaces the instance-wide modifyOptions hook.
func (e *Engine) ChangeModifyOptions(fn func(*types.ResolvedRequest, any) error) {
	e.pipeline.SetModifyOptions(fn)
	e.emitSimple(types.EventFetchModifyOptionsChange)
}

// ChangeModifyMethodOptions replaces (or, with a nil fn, clears) the
// per-method modify-options hook.
func (e *Engine) ChangeModifyMethodOptions(method types.Method, fn func(*types.ResolvedRequest, any) error) {
	e.pipeline.SetModifyMethodOptions(method, fn)
	e.emitSimple(types.EventFetchModifyMethodOptionsChange)
}

// On subscribes listener per internal/events' key convention (exact
// EventType, "*", or *regexp.Regexp).
func (e *Engine) On(key any, listener events.Listener, opts events.Options) int64 {
	return e.emitter.On(key, listener, opts)
}

// Off unsubscribes a listener previously registered via On.
func (e *Engine) Off(handle int64) {
	e.emitter.Off(handle)
}

func (e *Engine) emitSimple(t types.EventType) {
	e.emitter.Emit(types.Event{Type: t, State: e.GetState()})
}

// ClearCache removes every cache entry.
func (e *Engine) ClearCache() { e.cache.Clear() }

// DeleteCache removes a single cache key.
func (e *Engine) DeleteCache(key string) bool { return e.cache.Delete(key) }

// InvalidateCache removes every entry matching predicate.
func (e *Engine) InvalidateCache(predicate func(key string, value any) bool) int {
	return e.cache.Invalidate(predicate)
}

// InvalidatePath removes entries matching a string prefix, *regexp.Regexp
// or func(string) bool.
func (e *Engine) InvalidatePath(matcher any) int { return e.cache.InvalidatePath(matcher) }

// CacheStats reports {cacheSize, inflightCount}.
func (e *Engine) CacheStats() (cacheSize, inflightCount int) { return e.cache.Stats() }

// Destroy releases all cache/inflight state and marks the engine so
// further request calls settle immediately as aborted.
func (e *Engine) Destroy() {
	e.destroyed.Store(true)
	e.cache.Destroy()
}
