package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New("fetchengine_test", reg)
}

func TestRecordRequest_UpdatesCounterAndHistogram(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordRequest("GET", "200", 15*time.Millisecond)

	count := testutilCounterValue(t, m.requestsTotal.WithLabelValues("GET", "200"))
	assert.Equal(t, float64(1), count)
}

func TestCacheRatio_ComputesAfterHitsAndMisses(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheMiss()

	hits := testutilCounterValue(t, m.cacheHitsTotal.WithLabelValues())
	misses := testutilCounterValue(t, m.cacheMissesTotal.WithLabelValues())
	require.Equal(t, float64(2), hits)
	require.Equal(t, float64(1), misses)

	var ratio dto.Metric
	require.NoError(t, m.cacheHitRatio.Write(&ratio))
	assert.InDelta(t, 2.0/3.0, ratio.GetGauge().GetValue(), 1e-9)
}

func TestSetCircuitState_SetsGaugeByName(t *testing.T) {
	m := newTestMetrics(t)
	m.SetCircuitState("origin-api", 2)

	var metric dto.Metric
	g := m.circuitState.WithLabelValues("origin-api")
	require.NoError(t, g.Write(&metric))
	assert.Equal(t, float64(2), metric.GetGauge().GetValue())
}

func TestRecordRateLimitRejection_IncrementsByName(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordRateLimitRejection("search-api")
	m.RecordRateLimitRejection("search-api")

	v := testutilCounterValue(t, m.rateLimitRejections.WithLabelValues("search-api"))
	assert.Equal(t, float64(2), v)
}

func TestHandler_ServesExpositionFormat(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordRequest("GET", "200", time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
}

func testutilCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	return counterValue(c)
}
