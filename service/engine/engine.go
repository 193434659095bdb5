// Package engine runs the explanation pipeline: validate, consult the cache,
// fetch from Horizon, normalize, explain, assemble, and fan out side effects.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/brojonat/stellar-explain/service/apperror"
	"github.com/brojonat/stellar-explain/service/cache"
	"github.com/brojonat/stellar-explain/service/db"
	"github.com/brojonat/stellar-explain/service/explain"
	"github.com/brojonat/stellar-explain/service/horizon"
	"github.com/brojonat/stellar-explain/service/metrics"
	natspkg "github.com/brojonat/stellar-explain/service/nats"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 50
	healthTimeout    = 3 * time.Second
)

// Upstream is the slice of the Horizon client the engine needs.
type Upstream interface {
	FetchTransaction(ctx context.Context, hash string) (*horizon.RawTransaction, error)
	FetchTransactionBody(ctx context.Context, hash string) (json.RawMessage, error)
	FetchAccount(ctx context.Context, address string) (*horizon.RawAccount, error)
	FetchFeeStats(ctx context.Context) (*horizon.RawFeeStats, error)
	FetchAccountTransactions(ctx context.Context, address string, params horizon.PageParams) (*horizon.RawTransactionPage, error)
	Ping(ctx context.Context) error
}

// ArchiveStore is a durable second tier behind the in-memory cache.
// GetTransactionExplanation returns db.ErrNotFound on a miss.
type ArchiveStore interface {
	GetTransactionExplanation(ctx context.Context, hash string) (*explain.TransactionExplanation, error)
	SaveTransactionExplanation(ctx context.Context, exp *explain.TransactionExplanation) (bool, error)
}

// Publisher announces newly computed explanations.
type Publisher interface {
	PublishExplanation(ctx context.Context, event *natspkg.ExplanationEvent) error
}

// Options wires an Engine. Upstream and Cache are required; the rest are
// optional.
type Options struct {
	Upstream  Upstream
	Cache     *cache.Cache
	Registry  *explain.Registry
	Labels    *explain.LabelDirectory
	FeePolicy explain.FeePolicy
	// FetchFeeStats enables the best-effort fee statistics lookup.
	FetchFeeStats bool
	Archive       ArchiveStore
	Publisher     Publisher
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	Network       string
	Version       string
}

// Engine is safe for concurrent use.
type Engine struct {
	upstream      Upstream
	cache         *cache.Cache
	registry      *explain.Registry
	labels        *explain.LabelDirectory
	feePolicy     explain.FeePolicy
	fetchFeeStats bool
	archive       ArchiveStore
	publisher     Publisher
	metrics       *metrics.Metrics
	logger        *slog.Logger
	network       string
	version       string
}

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.Registry == nil {
		opts.Registry = explain.DefaultRegistry()
	}
	if opts.Labels == nil {
		opts.Labels = explain.DefaultLabels()
	}
	if opts.FeePolicy.Basis == "" {
		opts.FeePolicy = explain.DefaultFeePolicy()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		upstream:      opts.Upstream,
		cache:         opts.Cache,
		registry:      opts.Registry,
		labels:        opts.Labels,
		feePolicy:     opts.FeePolicy,
		fetchFeeStats: opts.FetchFeeStats,
		archive:       opts.Archive,
		publisher:     opts.Publisher,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		network:       opts.Network,
		version:       opts.Version,
	}
}

// Trace describes how one request was served. It feeds request logs.
type Trace struct {
	HorizonFetchDuration time.Duration
	ExplainDuration      time.Duration
	FeeStatsAvailable    bool
	// CacheHit is true when this request did not run the pipeline itself:
	// the result came from the cache or from a computation already in flight.
	CacheHit bool
	// Source is where the computed value came from: horizon or archive.
	// Empty on cache hits.
	Source string
}

// txResult is what the cache stores for a transaction. The timings belong
// to the request that computed it.
type txResult struct {
	explanation *explain.TransactionExplanation
	fetchDur    time.Duration
	explainDur  time.Duration
	source      string
}

// ExplainTransaction returns the explanation of the transaction with hash.
func (e *Engine) ExplainTransaction(ctx context.Context, hash string) (*explain.TransactionExplanation, *Trace, error) {
	trace := &Trace{}
	if err := explain.ValidateTransactionHash(hash); err != nil {
		return nil, trace, err
	}
	hash = strings.ToLower(hash)

	var ran atomic.Bool
	res, err := cache.GetOrCompute(ctx, e.cache, cache.Key{Kind: cache.KindTransaction, ID: hash},
		func(ctx context.Context) (*txResult, error) {
			ran.Store(true)
			return e.computeTransaction(ctx, hash)
		})
	if err != nil {
		err = e.waitError(err)
		e.metrics.RecordExplanation("transaction", apperror.KindOf(err).String())
		return nil, trace, err
	}

	trace.FeeStatsAvailable = res.explanation.FeeExplanation != nil
	trace.CacheHit = !ran.Load()
	if !trace.CacheHit {
		trace.HorizonFetchDuration = res.fetchDur
		trace.ExplainDuration = res.explainDur
		trace.Source = res.source
	}
	return res.explanation, trace, nil
}

func (e *Engine) computeTransaction(ctx context.Context, hash string) (*txResult, error) {
	if e.archive != nil {
		exp, err := e.archive.GetTransactionExplanation(ctx, hash)
		switch {
		case err == nil:
			e.metrics.RecordExplanation("transaction", "archived")
			return &txResult{explanation: exp, source: "archive"}, nil
		case !errors.Is(err, db.ErrNotFound):
			e.logger.WarnContext(ctx, "archive lookup failed", "hash", hash, "error", err)
		}
	}

	fetchStart := time.Now()
	raw, err := e.upstream.FetchTransaction(ctx, hash)
	if err != nil {
		return nil, err
	}
	feeStats := e.feeStats(ctx)
	fetchDur := time.Since(fetchStart)

	explainStart := time.Now()
	exp, err := e.explainRaw(raw, feeStats)
	explainDur := time.Since(explainStart)
	if err != nil {
		if apperror.Is(err, apperror.MalformedUpstreamData) {
			e.logger.ErrorContext(ctx, "horizon data contract break", "hash", hash, "error", err)
		}
		return nil, err
	}
	e.metrics.RecordExplainDuration(explainDur.Seconds())
	e.metrics.RecordExplanation("transaction", "success")
	e.metrics.RecordOperations(len(exp.PaymentExplanations), exp.SkippedOperations)

	e.archiveAndPublish(ctx, exp)

	return &txResult{explanation: exp, fetchDur: fetchDur, explainDur: explainDur, source: "horizon"}, nil
}

// explainRaw is the pure part of the pipeline.
func (e *Engine) explainRaw(raw *horizon.RawTransaction, feeStats *explain.FeeStats) (*explain.TransactionExplanation, error) {
	tx, err := explain.Normalize(raw)
	if err != nil {
		return nil, err
	}
	ops, err := e.registry.ExplainAll(tx)
	if err != nil {
		return nil, err
	}
	return explain.Assemble(tx, ops, feeStats, e.feePolicy)
}

// feeStats fetches network fee statistics. Any failure degrades to nil.
func (e *Engine) feeStats(ctx context.Context) *explain.FeeStats {
	if !e.fetchFeeStats {
		return nil
	}
	raw, err := e.upstream.FetchFeeStats(ctx)
	if err == nil {
		var stats *explain.FeeStats
		if stats, err = explain.NormalizeFeeStats(raw); err == nil {
			return stats
		}
	}
	e.metrics.RecordFeeStatsUnavailable()
	e.logger.WarnContext(ctx, "fee stats unavailable, omitting fee explanation", "error", err)
	return nil
}

func (e *Engine) archiveAndPublish(ctx context.Context, exp *explain.TransactionExplanation) {
	if e.archive != nil {
		if _, err := e.archive.SaveTransactionExplanation(ctx, exp); err != nil {
			e.logger.WarnContext(ctx, "failed to archive explanation", "hash", exp.TransactionHash, "error", err)
		}
	}
	if e.publisher != nil {
		if err := e.publisher.PublishExplanation(ctx, natspkg.FromExplanation(exp)); err != nil {
			e.logger.WarnContext(ctx, "failed to publish explanation event", "hash", exp.TransactionHash, "error", err)
		}
	}
}

// RawTransaction returns the Horizon transaction resource for hash, verbatim.
func (e *Engine) RawTransaction(ctx context.Context, hash string) (json.RawMessage, *Trace, error) {
	trace := &Trace{}
	if err := explain.ValidateTransactionHash(hash); err != nil {
		return nil, trace, err
	}
	hash = strings.ToLower(hash)

	var ran atomic.Bool
	body, err := cache.GetOrCompute(ctx, e.cache, cache.Key{Kind: cache.KindRaw, ID: hash},
		func(ctx context.Context) (json.RawMessage, error) {
			ran.Store(true)
			return e.upstream.FetchTransactionBody(ctx, hash)
		})
	if err != nil {
		return nil, trace, e.waitError(err)
	}
	trace.CacheHit = !ran.Load()
	return body, trace, nil
}

// ExplainAccount returns the explanation of the account at address. Results
// are cached for the configured account TTL.
func (e *Engine) ExplainAccount(ctx context.Context, address string) (*explain.AccountExplanation, *Trace, error) {
	trace := &Trace{}
	if err := explain.ValidateAccountAddress(address); err != nil {
		return nil, trace, err
	}

	var ran atomic.Bool
	exp, err := cache.GetOrCompute(ctx, e.cache, cache.Key{Kind: cache.KindAccount, ID: address},
		func(ctx context.Context) (*explain.AccountExplanation, error) {
			ran.Store(true)
			raw, err := e.upstream.FetchAccount(ctx, address)
			if err != nil {
				return nil, err
			}
			acct, err := explain.NormalizeAccount(raw)
			if err != nil {
				e.logger.ErrorContext(ctx, "horizon data contract break", "address", address, "error", err)
				return nil, err
			}
			return explain.ExplainAccount(acct, e.labels), nil
		})
	if err != nil {
		err = e.waitError(err)
		e.metrics.RecordExplanation("account", apperror.KindOf(err).String())
		return nil, trace, err
	}
	e.metrics.RecordExplanation("account", "success")
	trace.CacheHit = !ran.Load()
	return exp, trace, nil
}

// PageRequest is a validated request for a page of account history.
type PageRequest struct {
	Limit  int
	Cursor string
	Order  string
}

// ParsePageRequest validates raw query values. Empty values get defaults:
// limit 10, order desc.
func ParsePageRequest(limit, cursor, order string) (PageRequest, error) {
	req := PageRequest{Limit: defaultPageLimit, Cursor: cursor, Order: "desc"}

	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > maxPageLimit {
			return req, apperror.Invalid("limit must be an integer between 1 and %d", maxPageLimit)
		}
		req.Limit = n
	}
	switch order {
	case "":
	case "asc", "desc":
		req.Order = order
	default:
		return req, apperror.Invalid("order must be asc or desc")
	}
	if cursor != "" {
		if _, err := strconv.ParseUint(cursor, 10, 64); err != nil {
			return req, apperror.Invalid("cursor must be a paging token")
		}
	}
	return req, nil
}

// AccountTransactions returns one page of summarized account history.
func (e *Engine) AccountTransactions(ctx context.Context, address string, req PageRequest) (*explain.AccountTransactionsPage, *Trace, error) {
	trace := &Trace{}
	if err := explain.ValidateAccountAddress(address); err != nil {
		return nil, trace, err
	}

	key := cache.Key{
		Kind: cache.KindAccountTxs,
		ID:   strings.Join([]string{address, strconv.Itoa(req.Limit), req.Order, req.Cursor}, "|"),
	}

	var ran atomic.Bool
	page, err := cache.GetOrCompute(ctx, e.cache, key,
		func(ctx context.Context) (*explain.AccountTransactionsPage, error) {
			ran.Store(true)
			raw, err := e.upstream.FetchAccountTransactions(ctx, address, horizon.PageParams{
				Limit:  req.Limit,
				Cursor: req.Cursor,
				Order:  req.Order,
			})
			if err != nil {
				return nil, err
			}
			records, err := explain.NormalizeTransactionPage(raw)
			if err != nil {
				return nil, err
			}
			return explain.SummarizeTransactions(records), nil
		})
	if err != nil {
		err = e.waitError(err)
		e.metrics.RecordExplanation("account_transactions", apperror.KindOf(err).String())
		return nil, trace, err
	}
	e.metrics.RecordExplanation("account_transactions", "success")
	trace.CacheHit = !ran.Load()
	return page, trace, nil
}

// waitError classifies a caller giving up on a computation as an upstream
// failure. The computation itself keeps running and fills the cache.
func (e *Engine) waitError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if apperror.KindOf(err) == apperror.Internal {
			return apperror.Upstream(err, "timed out waiting for horizon")
		}
	}
	return err
}

// HealthReport is the body of the health endpoint.
type HealthReport struct {
	Status           string `json:"status"`
	Network          string `json:"network"`
	HorizonReachable bool   `json:"horizon_reachable"`
	Version          string `json:"version"`
}

// Healthy reports whether the service can serve explanations.
func (h HealthReport) Healthy() bool {
	return h.Status == "ok"
}

// Health pings Horizon and reports the service status.
func (e *Engine) Health(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	report := HealthReport{
		Status:           "ok",
		Network:          e.network,
		HorizonReachable: true,
		Version:          e.version,
	}
	if err := e.upstream.Ping(ctx); err != nil {
		e.logger.WarnContext(ctx, "horizon health check failed", "error", err)
		report.Status = "degraded"
		report.HorizonReachable = false
	}
	return report
}

// CacheStats exposes cache counters for diagnostics.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}
