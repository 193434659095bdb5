package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/stellar-explain/service/cache"
	"github.com/brojonat/stellar-explain/service/config"
	"github.com/brojonat/stellar-explain/service/db"
	"github.com/brojonat/stellar-explain/service/engine"
	"github.com/brojonat/stellar-explain/service/explain"
	"github.com/brojonat/stellar-explain/service/horizon"
	"github.com/brojonat/stellar-explain/service/metrics"
	natspkg "github.com/brojonat/stellar-explain/service/nats"
	"github.com/brojonat/stellar-explain/service/ratelimit"
	"github.com/brojonat/stellar-explain/service/server"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"network", cfg.Network,
		"horizon_url", cfg.HorizonURL,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsCollector := metrics.NewMetrics(prometheus.DefaultRegisterer)

	labels := explain.DefaultLabels()
	if cfg.LabelsFile != "" {
		var err error
		if labels, err = explain.LoadLabels(cfg.LabelsFile); err != nil {
			logger.Error("failed to load labels", "path", cfg.LabelsFile, "error", err)
			os.Exit(1)
		}
		logger.Info("loaded address labels", "path", cfg.LabelsFile)
	}

	opts := engine.Options{
		Upstream: horizon.NewClient(
			horizon.NewHTTPClient(cfg.HorizonTimeout),
			cfg.HorizonURL,
			cfg.HorizonMaxAttempts,
			metricsCollector,
			logger,
		),
		Cache: cache.New(cache.Options{
			Capacity:   cfg.CacheCapacity,
			AccountTTL: cfg.AccountCacheTTL,
			Metrics:    metricsCollector,
		}),
		Registry: explain.DefaultRegistry(),
		Labels:   labels,
		FeePolicy: explain.FeePolicy{
			Basis:          cfg.FeeBasis,
			HighMultiplier: cfg.FeeHighMultiplier,
		},
		FetchFeeStats: cfg.FetchFeeStats,
		Metrics:       metricsCollector,
		Logger:        logger,
		Network:       cfg.Network,
		Version:       cfg.Version,
	}

	// Optional archive
	if cfg.DatabaseURL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		if err := db.Migrate(ctx, dbPool); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		opts.Archive = db.NewStore(dbPool, cfg.Network, metricsCollector)
		logger.Info("connected to database, archive enabled")
	}

	// Optional event publishing
	if cfg.NATSURL != "" {
		natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer natsPublisher.Close()
		opts.Publisher = natsPublisher
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	eng := engine.New(opts)

	var limiter *ratelimit.Limiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = ratelimit.New(ratelimit.Options{
			Limit:   cfg.RateLimitPerMinute,
			Window:  time.Minute,
			Metrics: metricsCollector,
		})
		go limiter.Run(ctx, time.Minute)
	}

	httpServer := server.New(cfg.ServerAddr, cfg, eng, limiter, prometheus.DefaultGatherer, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"archive_enabled", opts.Archive != nil,
		"events_enabled", opts.Publisher != nil,
		"rate_limit_per_minute", cfg.RateLimitPerMinute,
		"fetch_fee_stats", cfg.FetchFeeStats,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
