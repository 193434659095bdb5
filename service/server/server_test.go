package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brojonat/stellar-explain/service/cache"
	"github.com/brojonat/stellar-explain/service/config"
	"github.com/brojonat/stellar-explain/service/engine"
	"github.com/brojonat/stellar-explain/service/horizon"
	"github.com/brojonat/stellar-explain/service/horizon/horizontest"
	"github.com/brojonat/stellar-explain/service/metrics"
	"github.com/brojonat/stellar-explain/service/ratelimit"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	horizon *horizontest.Server
	handler http.Handler
	logs    *bytes.Buffer
}

type envOptions struct {
	rateLimit      int
	trustProxy     bool
	requestTimeout time.Duration
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	hz := horizontest.New(t)
	hz.AddTransaction(horizontest.SampleHash, horizontest.SampleTransaction, horizontest.SampleOperations)
	hz.AddAccount(horizontest.SampleIssuer, horizontest.SampleAccount)
	hz.SetAccountTransactions(horizontest.SampleIssuer, horizontest.SampleAccountTransactions)

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelInfo}))
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	eng := engine.New(engine.Options{
		Upstream:      horizon.NewClient(hz.Client(), hz.URL, 2, m, quiet).WithBackoff(time.Millisecond),
		Cache:         cache.New(cache.Options{Metrics: m}),
		FetchFeeStats: true,
		Metrics:       m,
		Logger:        quiet,
		Network:       "testnet",
		Version:       "v1.2.3",
	})

	var limiter *ratelimit.Limiter
	if opts.rateLimit > 0 {
		limiter = ratelimit.New(ratelimit.Options{Limit: opts.rateLimit, Metrics: m})
	}

	cfg := &config.Config{
		Network:           "testnet",
		TrustProxyHeaders: opts.trustProxy,
		RequestTimeout:    opts.requestTimeout,
	}
	srv := New(":0", cfg, eng, limiter, reg, m, logger)

	return &testEnv{horizon: hz, handler: srv.Handler(), logs: logs}
}

func (e *testEnv) get(t *testing.T, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// logLines decodes every JSON log record with the given msg.
func (e *testEnv) logLines(t *testing.T, msg string) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(e.logs.Bytes()))
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		if rec["msg"] == msg {
			out = append(out, rec)
		}
	}
	return out
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestExplainTransaction_OK(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.get(t, "/tx/"+horizontest.SampleHash, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, horizontest.SampleHash, body["transaction_hash"])
	assert.Equal(t, true, body["successful"])
	assert.Equal(t, float64(0), body["skipped_operations"])
	assert.Len(t, body["payment_explanations"], 1)
	assert.Contains(t, body["summary"], "sent 100.0000000 XLM")
	assert.NotNil(t, body["memo_explanation"])
	assert.NotNil(t, body["fee_explanation"])

	_, err := uuid.Parse(rec.Header().Get("X-Request-ID"))
	assert.NoError(t, err, "a request ID should be generated")
}

func TestExplainTransaction_RequestLogs(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	headers := map[string]string{"X-Request-ID": "req-abc-123"}
	require.Equal(t, http.StatusOK, env.get(t, "/tx/"+horizontest.SampleHash, headers).Code)
	rec := env.get(t, "/tx/"+horizontest.SampleHash, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-abc-123", rec.Header().Get("X-Request-ID"))

	incoming := env.logLines(t, "incoming_request")
	require.Len(t, incoming, 2)
	assert.Equal(t, "req-abc-123", incoming[0]["request_id"])
	assert.Equal(t, horizontest.SampleHash, incoming[0]["hash"])

	completed := env.logLines(t, "request_completed")
	require.Len(t, completed, 2)
	for _, key := range []string{"horizon_fetch_duration_ms", "explain_duration_ms", "total_duration_ms", "status", "fee_stats_available", "cache_hit"} {
		assert.Contains(t, completed[0], key)
	}
	assert.Equal(t, float64(200), completed[0]["status"])
	assert.Equal(t, false, completed[0]["cache_hit"])
	assert.Equal(t, true, completed[0]["fee_stats_available"])
	assert.Equal(t, true, completed[1]["cache_hit"])
}

func TestRequestID_RejectsUnsafeValues(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.get(t, "/health", map[string]string{"X-Request-ID": "bad id with spaces"})
	id := rec.Header().Get("X-Request-ID")
	assert.NotEqual(t, "bad id with spaces", id)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}

func TestExplainTransaction_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		failWith   int
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid hash",
			path:       "/tx/nothex",
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "unknown transaction",
			path:       "/tx/" + strings.Repeat("ab", 32),
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "horizon server error",
			path:       "/tx/" + horizontest.SampleHash,
			failWith:   http.StatusInternalServerError,
			wantStatus: http.StatusBadGateway,
			wantCode:   "UPSTREAM_ERROR",
		},
		{
			name:       "horizon unavailable",
			path:       "/tx/" + horizontest.SampleHash,
			failWith:   http.StatusServiceUnavailable,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "UPSTREAM_ERROR",
		},
		{
			name:       "raw with invalid hash",
			path:       "/tx/xyz/raw",
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "invalid account address",
			path:       "/account/GNOTANADDRESS",
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "unknown account",
			path:       "/account/" + horizontest.SampleReceiver,
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "history limit out of range",
			path:       "/account/" + horizontest.SampleIssuer + "/transactions?limit=500",
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, envOptions{})
			if tt.failWith != 0 {
				env.horizon.FailWith(tt.failWith)
			}

			rec := env.get(t, tt.path, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			detail := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, detail.Code)
			assert.NotEmpty(t, detail.Message)
		})
	}
}

func TestExplainTransaction_SlowHorizonTimesOut(t *testing.T) {
	env := newTestEnv(t, envOptions{requestTimeout: 50 * time.Millisecond})
	env.horizon.SetDelay(300 * time.Millisecond)

	start := time.Now()
	rec := env.get(t, "/tx/"+horizontest.SampleHash, nil)
	assert.Less(t, time.Since(start), 250*time.Millisecond, "request must not wait for horizon")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "UPSTREAM_ERROR", decodeError(t, rec).Code)

	// The fetch keeps running and fills the cache for the next caller.
	env.horizon.SetDelay(0)
	require.Eventually(t, func() bool {
		return env.get(t, "/tx/"+horizontest.SampleHash, nil).Code == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, 1, env.horizon.Calls(horizontest.RouteTransaction))
}

func TestMalformedUpstreamHidesDetails(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.horizon.AddTransaction(horizontest.SampleHash, `{"hash":"`+horizontest.SampleHash+`"}`, horizontest.SampleOperations)

	rec := env.get(t, "/tx/"+horizontest.SampleHash, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, "UPSTREAM_ERROR", detail.Code)
	assert.NotContains(t, detail.Message, "success flag")
}

func TestRawTransaction(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.get(t, "/tx/"+horizontest.SampleHash+"/raw", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, horizontest.SampleTransaction, rec.Body.String())
}

func TestExplainAccount(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.get(t, "/account/"+horizontest.SampleIssuer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, horizontest.SampleIssuer, body["address"])
	assert.Equal(t, "104.5000000", body["xlm_balance"])
	assert.Equal(t, "USDC Issuer (Circle)", body["org_name"])
	assert.Equal(t, "centre.io", body["home_domain"])

	completed := env.logLines(t, "request_completed")
	require.Len(t, completed, 1)
	assert.Equal(t, horizontest.SampleIssuer, completed[0]["address"])
}

func TestAccountTransactions(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.get(t, "/account/"+horizontest.SampleIssuer+"/transactions?limit=2&order=desc", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Items []struct {
			Hash    string `json:"hash"`
			Summary string `json:"summary"`
		} `json:"items"`
		NextCursor string `json:"next_cursor"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 2)
	assert.Equal(t, horizontest.SampleHash, body.Items[0].Hash)
	assert.Equal(t, "Failed transaction with 3 operations.", body.Items[1].Summary)
	assert.NotEmpty(t, body.NextCursor)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.get(t, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","network":"testnet","horizon_reachable":true,"version":"v1.2.3"}`, rec.Body.String())

	env.horizon.FailWith(http.StatusInternalServerError)
	rec = env.get(t, "/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","network":"testnet","horizon_reachable":false,"version":"v1.2.3"}`, rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, envOptions{rateLimit: 2})
	path := "/tx/" + horizontest.SampleHash

	for i := range 2 {
		rec := env.get(t, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := env.get(t, path, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", decodeError(t, rec).Code)

	// Health and metrics stay reachable.
	assert.Equal(t, http.StatusOK, env.get(t, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, env.get(t, "/metrics", nil).Code)
}

func TestRateLimit_TrustedProxy(t *testing.T) {
	env := newTestEnv(t, envOptions{rateLimit: 1, trustProxy: true})
	path := "/tx/" + horizontest.SampleHash

	first := map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}
	second := map[string]string{"X-Forwarded-For": "203.0.113.8"}

	assert.Equal(t, http.StatusOK, env.get(t, path, first).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.get(t, path, first).Code)
	assert.Equal(t, http.StatusOK, env.get(t, path, second).Code)
}

func TestClientIdentity(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		trustProxy bool
		want       string
	}{
		{"remote addr", "198.51.100.4:5555", "", false, "198.51.100.4"},
		{"forwarded ignored when untrusted", "198.51.100.4:5555", "203.0.113.7", false, "198.51.100.4"},
		{"forwarded first hop", "10.0.0.1:80", "203.0.113.7, 10.0.0.2", true, "203.0.113.7"},
		{"trusted but absent", "10.0.0.1:80", "", true, "10.0.0.1"},
		{"no port", "unix", "", false, "unix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, clientIdentity(req, tt.trustProxy))
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	req := httptest.NewRequest(http.MethodOptions, "/tx/"+horizontest.SampleHash, nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, 0, env.horizon.Calls(horizontest.RouteTransaction))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, envOptions{rateLimit: 10})

	require.Equal(t, http.StatusOK, env.get(t, "/tx/"+horizontest.SampleHash, nil).Code)

	rec := env.get(t, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "stellar_explain_http_requests_total")
	assert.Contains(t, body, `handler="/tx/{hash}"`)
	assert.Contains(t, body, "stellar_explain_horizon_calls_total")
	assert.Contains(t, body, "stellar_explain_rate_limit_decisions_total")
}
