package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/stellar-explain/service/config"
	"github.com/brojonat/stellar-explain/service/engine"
	"github.com/brojonat/stellar-explain/service/metrics"
	"github.com/brojonat/stellar-explain/service/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultWriteTimeout = 15 * time.Second

// Server represents the HTTP server for the explanation service.
type Server struct {
	addr     string
	cfg      *config.Config
	engine   *engine.Engine
	limiter  *ratelimit.Limiter
	gatherer prometheus.Gatherer
	metrics  *metrics.Metrics
	logger   *slog.Logger
	server   *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The limiter is optional - if nil, requests are not rate limited.
// The metrics is optional - if nil, the /metrics endpoint is not served.
// The gatherer backs /metrics; nil means the default Prometheus registry.
func New(addr string, cfg *config.Config, eng *engine.Engine, limiter *ratelimit.Limiter, gatherer prometheus.Gatherer, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:     addr,
		cfg:      cfg,
		engine:   eng,
		limiter:  limiter,
		gatherer: gatherer,
		metrics:  m,
		logger:   logger,
	}
}

// Handler builds the full middleware and route stack.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	limited := func(pattern string, h http.Handler) {
		h = deadlineMiddleware(s.cfg.RequestTimeout)(h)
		h = metrics.HTTPMetricsMiddleware(s.metrics, pattern)(h)
		if s.limiter != nil {
			h = rateLimitMiddleware(s.limiter, s.cfg.TrustProxyHeaders, s.logger)(h)
		}
		mux.Handle("GET "+pattern, h)
	}

	// Explanation routes
	limited("/tx/{hash}", handleExplainTransaction(s.engine, s.logger))
	limited("/tx/{hash}/raw", handleRawTransaction(s.engine, s.logger))
	limited("/account/{address}", handleExplainAccount(s.engine, s.logger))
	limited("/account/{address}/transactions", handleAccountTransactions(s.engine, s.logger))

	// Health check endpoint
	mux.Handle("GET /health", metrics.HTTPMetricsMiddleware(s.metrics, "/health")(handleHealth(s.engine, s.logger)))

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		if s.gatherer != nil {
			mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		} else {
			mux.Handle("GET /metrics", promhttp.Handler())
		}
	}

	return corsMiddleware(requestIDMiddleware(s.logger)(mux))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	writeTimeout := s.cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server",
		"addr", s.addr,
		"network", s.cfg.Network,
		"rate_limited", s.limiter != nil,
		"request_timeout", s.cfg.RequestTimeout,
		"metrics", s.metrics != nil,
	)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After, X-RateLimit-Limit, X-RateLimit-Remaining")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
