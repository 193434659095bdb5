package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordUpstreamCall("FetchTransaction", "success", 0.1)
		m.RecordCacheLookup("tx", "hit")
		m.RecordRateLimitDecision(false)
		m.RecordHTTPRequest("/tx/{hash}", "GET", 200, 0.01)
		m.RecordActivityDuration("ExplainAndArchive", 0.2, nil)
	})
}

func TestRecordCacheLookup(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordCacheLookup("tx", "hit")
	m.RecordCacheLookup("tx", "hit")
	m.RecordCacheLookup("account", "miss")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("tx", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("account", "miss")))
}

func TestRecordRateLimitDecision(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordRateLimitDecision(true)
	m.RecordRateLimitDecision(false)
	m.RecordRateLimitDecision(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimitDecisions.WithLabelValues("admitted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rateLimitDecisions.WithLabelValues("rejected")))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	handler := HTTPMetricsMiddleware(m, "/tx/{hash}")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/tx/abc", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/tx/{hash}", "GET", "4xx")))
}

func TestStatusRecorderDefaultsToOK(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := NewStatusRecorder(rec)
	_, err := sr.Write([]byte("ok"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, sr.Status())

	// Wrapping twice returns the same recorder.
	assert.Same(t, sr, NewStatusRecorder(sr))
}
