package fetchengine

import (
	"time"

	"github.com/fetchcore/fetchengine/internal/config"
	"github.com/fetchcore/fetchengine/internal/logging"
	"github.com/fetchcore/fetchengine/internal/metrics"
	"github.com/fetchcore/fetchengine/pkg/types"
)

// NewFromFile loads an EngineSpec from a YAML file at path (see
// internal/config) and constructs an Engine from it, wiring a logger
// (always) and, when metricsNamespace is non-empty, a Prometheus
// collector registered under that namespace.
func NewFromFile(path string) (*Engine, error) {
	spec, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return New(fromSpec(spec))
}

func fromSpec(spec *config.EngineSpec) Config {
	cfg := Config{
		BaseURL:       spec.BaseURL,
		DefaultType:   types.ContentType(spec.DefaultType),
		Timeout:       time.Duration(spec.Timeout),
		Headers:       spec.Headers,
		Params:        spec.Params,
		MethodHeaders: methodMap(spec.MethodHeaders),
		MethodParams:  methodMap(spec.MethodParams),
	}

	if spec.Retry != nil {
		cfg.Retry = spec.Retry.ToRetryConfig()
	}
	if spec.Cache != nil {
		cfg.Cache = &CachePolicy{Enabled: spec.Cache.Enabled, Methods: spec.Cache.ResolvedMethods(), Rules: spec.Cache.PolicyRules()}
	}
	if spec.Dedupe != nil {
		cfg.Dedupe = &DedupePolicy{Enabled: spec.Dedupe.Enabled, Methods: spec.Dedupe.ResolvedMethods(), Rules: spec.Dedupe.PolicyRules()}
	}

	logger, err := logging.New(spec.Logging)
	if err != nil {
		logger = logging.Default()
	}
	cfg.Logger = logger

	if spec.MetricsNamespace != "" {
		cfg.Metrics = metrics.New(spec.MetricsNamespace, nil)
	}

	return cfg
}

func methodMap(m map[string]map[string]string) map[types.Method]map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[types.Method]map[string]string, len(m))
	for k, v := range m {
		out[types.Normalize(k)] = v
	}
	return out
}
