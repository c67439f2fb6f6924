// Package metrics adapts the teacher's internal/edge/metrics
// (PrometheusMetrics) to fetchengine's domain: request count/duration by
// method and status, cache hit/miss/stale ratios, circuit-breaker state,
// and rate-limit rejections, registered under a caller-supplied
// namespace via github.com/prometheus/client_golang. Unlike the teacher,
// metrics are served over net/http (promhttp.Handler), not fasthttp —
// fasthttp has no role in an engine built on *http.Client (see DESIGN.md).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Metrics is the Prometheus-backed collector bound to one engine
// instance's lifecycle events.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal *prometheus.CounterVec
	cacheStaleTotal  *prometheus.CounterVec
	cacheHitRatio    prometheus.Gauge
	cacheSize        prometheus.Gauge
	inflightCount    prometheus.Gauge

	circuitState        *prometheus.GaugeVec
	rateLimitRejections *prometheus.CounterVec
	retriesTotal        *prometheus.CounterVec
}

// New builds a Metrics collector registered under namespace in
// registry (a fresh *prometheus.Registry if nil). Keeping our own
// registry, rather than defaulting to the global one, is what lets
// Handler serve exactly this engine's series.
func New(namespace string, registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "fetch", Name: "requests_total",
			Help: "Total number of requests processed, by method and status.",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "fetch", Name: "request_duration_seconds",
			Help: "Time taken to settle a request, by method and status.", Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
		cacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "fetch", Name: "cache_hits_total", Help: "Total cache hits.",
		}, []string{}),
		cacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "fetch", Name: "cache_misses_total", Help: "Total cache misses.",
		}, []string{}),
		cacheStaleTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "fetch", Name: "cache_stale_served_total", Help: "Total stale cache entries served.",
		}, []string{}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "fetch", Name: "cache_hit_ratio", Help: "Cache hit ratio (0-1).",
		}),
		cacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "fetch", Name: "cache_size", Help: "Current number of cache entries.",
		}),
		inflightCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "fetch", Name: "cache_inflight_revalidations", Help: "Current number of background revalidations.",
		}),
		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "fetch", Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open), by name.",
		}, []string{"name"}),
		rateLimitRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "fetch", Name: "rate_limit_rejections_total", Help: "Total calls denied by rateLimit, by name.",
		}, []string{"name"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "fetch", Name: "retries_total", Help: "Total retry attempts issued, by method.",
		}, []string{"method"}),
	}

	registry.MustRegister(
		m.requestsTotal, m.requestDuration,
		m.cacheHitsTotal, m.cacheMissesTotal, m.cacheStaleTotal, m.cacheHitRatio, m.cacheSize, m.inflightCount,
		m.circuitState, m.rateLimitRejections, m.retriesTotal,
	)
	return m
}

// RecordRequest records one settled request's outcome and latency.
func (m *Metrics) RecordRequest(method, status string, d time.Duration) {
	m.requestsTotal.WithLabelValues(method, status).Inc()
	m.requestDuration.WithLabelValues(method, status).Observe(d.Seconds())
}

// RecordCacheHit/Miss/Stale update the counters and recompute the ratio.
func (m *Metrics) RecordCacheHit()  { m.cacheHitsTotal.WithLabelValues().Inc(); m.refreshCacheRatio() }
func (m *Metrics) RecordCacheMiss() { m.cacheMissesTotal.WithLabelValues().Inc(); m.refreshCacheRatio() }
func (m *Metrics) RecordCacheStale() { m.cacheStaleTotal.WithLabelValues().Inc() }

// SetCacheSize/SetInflightCount mirror cachestore.Store.Stats().
func (m *Metrics) SetCacheSize(n int)      { m.cacheSize.Set(float64(n)) }
func (m *Metrics) SetInflightCount(n int)  { m.inflightCount.Set(float64(n)) }

// SetCircuitState records one of gobreaker's three states under name,
// mapping closed=0, half-open=1, open=2.
func (m *Metrics) SetCircuitState(name string, state int) {
	m.circuitState.WithLabelValues(name).Set(float64(state))
}

// RecordRateLimitRejection counts one call denied by rateLimit.
func (m *Metrics) RecordRateLimitRejection(name string) {
	m.rateLimitRejections.WithLabelValues(name).Inc()
}

// RecordRetry counts one retry attempt issued for method.
func (m *Metrics) RecordRetry(method string) {
	m.retriesTotal.WithLabelValues(method).Inc()
}

// Handler returns the net/http handler serving this collector's metrics
// in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) refreshCacheRatio() {
	hits := counterValue(m.cacheHitsTotal.WithLabelValues())
	misses := counterValue(m.cacheMissesTotal.WithLabelValues())
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(hits / total)
	}
}

func counterValue(c prometheus.Counter) float64 {
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		return 0
	}
	return metric.GetCounter().GetValue()
}
