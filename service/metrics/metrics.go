package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stellar_explain"

// Metrics holds all Prometheus collectors for the application.
// It is passed explicitly to every component that records metrics; a nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Horizon (upstream) metrics
	horizonCallsTotal   *prometheus.CounterVec
	horizonCallDuration *prometheus.HistogramVec
	horizonRetries      *prometheus.CounterVec

	// Cache metrics
	cacheLookups *prometheus.CounterVec
	cacheEntries prometheus.Gauge

	// Rate limiter metrics
	rateLimitDecisions *prometheus.CounterVec

	// Explanation metrics
	explanationsBuilt   *prometheus.CounterVec
	operationsExplained *prometheus.CounterVec
	explainDuration     prometheus.Histogram
	feeStatsUnavailable prometheus.Counter

	// Archive (database) metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec

	// Temporal activity metrics
	activityDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		horizonCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "horizon_calls_total",
				Help:      "Total number of Horizon API calls by method and status",
			},
			[]string{"method", "status"},
		),
		horizonCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "horizon_call_duration_seconds",
				Help:      "Duration of Horizon API calls in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),
		horizonRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "horizon_retries_total",
				Help:      "Total number of Horizon retry attempts",
			},
			[]string{"method", "reason"},
		),

		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Cache lookups by entry kind and result (hit, miss, shared)",
			},
			[]string{"kind", "result"},
		),
		cacheEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_entries",
				Help:      "Number of entries currently held in the explanation cache",
			},
		),

		rateLimitDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_decisions_total",
				Help:      "Rate limiter admission decisions",
			},
			[]string{"decision"},
		),

		explanationsBuilt: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "explanations_built_total",
				Help:      "Explanations assembled by kind and outcome",
			},
			[]string{"kind", "status"},
		),
		operationsExplained: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Operations processed by the explainer registry, by result",
			},
			[]string{"result"},
		),
		explainDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "explain_duration_seconds",
				Help:      "Time spent normalizing and assembling a transaction explanation",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
			},
		),
		feeStatsUnavailable: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fee_stats_unavailable_total",
				Help:      "Explanations built without fee statistics",
			},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Duration of archive database queries in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_operations_total",
				Help:      "Total number of archive database operations",
			},
			[]string{"operation", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "nats_messages_published_total",
				Help:      "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "nats_publish_duration_seconds",
				Help:      "Duration of NATS publish operations in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),

		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "activity_duration_seconds",
				Help:      "Duration of Temporal archive activities in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0},
			},
			[]string{"activity", "status"},
		),
	}
}

// Horizon metric helpers

// RecordUpstreamCall records one Horizon request with its outcome.
func (m *Metrics) RecordUpstreamCall(method, status string, duration float64) {
	if m == nil {
		return
	}
	m.horizonCallsTotal.WithLabelValues(method, status).Inc()
	m.horizonCallDuration.WithLabelValues(method).Observe(duration)
}

// RecordUpstreamRetry records a retry attempt.
func (m *Metrics) RecordUpstreamRetry(method, reason string) {
	if m == nil {
		return
	}
	m.horizonRetries.WithLabelValues(method, reason).Inc()
}

// Cache metric helpers

// RecordCacheLookup records a cache lookup. result is hit, miss or shared.
func (m *Metrics) RecordCacheLookup(kind, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(kind, result).Inc()
}

// SetCacheEntries records the current number of cached entries.
func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(n))
}

// RecordRateLimitDecision records an admission decision.
func (m *Metrics) RecordRateLimitDecision(allowed bool) {
	if m == nil {
		return
	}
	decision := "admitted"
	if !allowed {
		decision = "rejected"
	}
	m.rateLimitDecisions.WithLabelValues(decision).Inc()
}

// Explanation metric helpers

// RecordExplanation records an explanation build for kind (transaction, account).
func (m *Metrics) RecordExplanation(kind, status string) {
	if m == nil {
		return
	}
	m.explanationsBuilt.WithLabelValues(kind, status).Inc()
}

// RecordOperations records explained and skipped operation counts.
func (m *Metrics) RecordOperations(explained, skipped int) {
	if m == nil {
		return
	}
	m.operationsExplained.WithLabelValues("explained").Add(float64(explained))
	m.operationsExplained.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordExplainDuration records time spent in normalize+explain+assemble.
func (m *Metrics) RecordExplainDuration(duration float64) {
	if m == nil {
		return
	}
	m.explainDuration.Observe(duration)
}

// RecordFeeStatsUnavailable records an explanation that degraded to no fee explanation.
func (m *Metrics) RecordFeeStatsUnavailable() {
	if m == nil {
		return
	}
	m.feeStatsUnavailable.Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// RecordActivityDuration records one Temporal activity execution.
func (m *Metrics) RecordActivityDuration(activity string, duration float64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.activityDuration.WithLabelValues(activity, status).Observe(duration)
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
