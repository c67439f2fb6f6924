// Package fetchengine implements FetchEngine (spec §4.H), the facade
// binding composition, rule resolution, the flow-control toolkit, the
// SWR cache and the lifecycle emitter behind a per-method request
// surface. Grounded on the teacher's internal/edge/rsclient.RSClient
// (a construction-validated wrapper around *http.Client) generalized
// from a single CDN render-service call into the general-purpose
// engine this spec describes.
package fetchengine

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/fetchcore/fetchengine/internal/logging"
	"github.com/fetchcore/fetchengine/internal/metrics"
	"github.com/fetchcore/fetchengine/internal/rules"
	"github.com/fetchcore/fetchengine/pkg/types"
)

// DedupePolicy is the dedupePolicy config shape from spec §6.
type DedupePolicy struct {
	Enabled    bool
	Methods    []types.Method
	Rules      []types.PolicyRule
	Serializer func(args []any) string
}

// CachePolicy is the cachePolicy config shape from spec §6.
type CachePolicy struct {
	Enabled    bool
	Methods    []types.Method
	TTL        time.Duration
	StaleIn    *time.Duration
	Skip       func(ctx *types.RequestContext) bool
	Serializer func(args []any) string
	Rules      []types.PolicyRule
}

// Config is `new FetchEngine(config)` (spec §6).
type Config struct {
	BaseURL     string
	DefaultType types.ContentType

	Headers       map[string]string
	MethodHeaders map[types.Method]map[string]string
	Params        map[string]string
	MethodParams  map[types.Method]map[string]string

	ModifyOptions       func(*types.ResolvedRequest, any) error
	ModifyMethodOptions map[types.Method]func(*types.ResolvedRequest, any) error

	Timeout time.Duration

	ValidateHeaders func(map[string]string, types.Method) error
	ValidateParams  func(map[string]string, types.Method) error
	ValidateState   func(any) error

	DetermineType func(*types.RequestContext) types.ContentType

	// Retry mirrors `retry: bool | config`; nil disables retry, a
	// non-nil pointer with Enabled=false also disables it.
	Retry *types.RetryConfig

	Dedupe *DedupePolicy
	Cache  *CachePolicy

	// InitialState seeds the process-wide state S and is what
	// ResetState restores.
	InitialState any

	// HTTPClient overrides the platform fetch collaborator; defaults to
	// &http.Client{}. The engine manages its own per-request timeout via
	// context, so callers should not set a client-level Timeout.
	HTTPClient *http.Client

	// Logger receives structured per-attempt diagnostics; nil builds a
	// console logger at debug level (logging.Default semantics).
	Logger *logging.Logger

	// Metrics records request/cache counters under a Prometheus
	// registry; nil disables recording entirely.
	Metrics *metrics.Metrics
}

var knownContentTypes = map[types.ContentType]bool{
	types.ContentTypeJSON: true, types.ContentTypeText: true, types.ContentTypeBlob: true,
	types.ContentTypeArrayBuffer: true, types.ContentTypeFormData: true,
}

// validate runs construction-time validation (spec §4.H: "validates the
// entire config up front ... rejection is synchronous and descriptive").
func (c *Config) validate() error {
	if c.BaseURL == "" {
		return &types.ConfigError{Message: "baseUrl is required"}
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &types.ConfigError{Message: fmt.Sprintf("baseUrl %q is not a valid absolute URL", c.BaseURL)}
	}
	if c.DefaultType != "" && !knownContentTypes[c.DefaultType] {
		return &types.ConfigError{Message: fmt.Sprintf("defaultType %q is not recognized", c.DefaultType)}
	}
	if c.Timeout < 0 {
		return &types.ConfigError{Message: "timeout must be a positive duration"}
	}
	if c.Retry != nil && c.Retry.Enabled && c.Retry.MaxAttempts <= 0 {
		return &types.ConfigError{Message: "retry.maxAttempts must be positive when retry is enabled"}
	}
	return nil
}

func compileRules(rs []types.PolicyRule) (*rules.Resolver, error) {
	if len(rs) == 0 {
		return nil, nil
	}
	resolver, err := rules.New(rs)
	if err != nil {
		return nil, &types.ConfigError{Message: err.Error()}
	}
	return resolver, nil
}
