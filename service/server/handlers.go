package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/stellar-explain/service/apperror"
	"github.com/brojonat/stellar-explain/service/engine"
)

// explainFunc runs one engine call for the path value id.
type explainFunc[T any] func(ctx context.Context, r *http.Request, id string) (T, *engine.Trace, error)

// explainHandler wraps an engine call with the request log lines and error
// mapping shared by every explanation route. param is the path wildcard and
// also the log key ("hash" or "address").
func explainHandler[T any](param string, logger *slog.Logger, call explainFunc[T]) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.PathValue(param)
		log := requestLogger(r.Context(), logger).With(param, id)
		log.InfoContext(r.Context(), "incoming_request", "method", r.Method, "path", r.URL.Path)

		result, trace, err := call(r.Context(), r, id)

		status := http.StatusOK
		if err != nil {
			status = writeError(w, log, err)
		} else {
			writeJSON(w, result, http.StatusOK)
		}

		if trace == nil {
			trace = &engine.Trace{}
		}
		log.InfoContext(r.Context(), "request_completed",
			"status", status,
			"horizon_fetch_duration_ms", trace.HorizonFetchDuration.Milliseconds(),
			"explain_duration_ms", trace.ExplainDuration.Milliseconds(),
			"total_duration_ms", time.Since(start).Milliseconds(),
			"fee_stats_available", trace.FeeStatsAvailable,
			"cache_hit", trace.CacheHit,
		)
	})
}

// handleExplainTransaction returns a handler that explains a transaction.
// GET /tx/{hash}
func handleExplainTransaction(eng *engine.Engine, logger *slog.Logger) http.Handler {
	return explainHandler("hash", logger, func(ctx context.Context, _ *http.Request, hash string) (any, *engine.Trace, error) {
		return eng.ExplainTransaction(ctx, hash)
	})
}

// handleRawTransaction returns the Horizon transaction resource unchanged.
// GET /tx/{hash}/raw
func handleRawTransaction(eng *engine.Engine, logger *slog.Logger) http.Handler {
	return explainHandler("hash", logger, func(ctx context.Context, _ *http.Request, hash string) (json.RawMessage, *engine.Trace, error) {
		return eng.RawTransaction(ctx, hash)
	})
}

// handleExplainAccount returns a handler that explains an account.
// GET /account/{address}
func handleExplainAccount(eng *engine.Engine, logger *slog.Logger) http.Handler {
	return explainHandler("address", logger, func(ctx context.Context, _ *http.Request, address string) (any, *engine.Trace, error) {
		return eng.ExplainAccount(ctx, address)
	})
}

// handleAccountTransactions returns a page of summarized account history.
// GET /account/{address}/transactions?limit=N&cursor=TOKEN&order=asc|desc
func handleAccountTransactions(eng *engine.Engine, logger *slog.Logger) http.Handler {
	return explainHandler("address", logger, func(ctx context.Context, r *http.Request, address string) (any, *engine.Trace, error) {
		query := r.URL.Query()
		req, err := engine.ParsePageRequest(query.Get("limit"), query.Get("cursor"), query.Get("order"))
		if err != nil {
			return nil, nil, err
		}
		return eng.AccountTransactions(ctx, address, req)
	})
}

// handleHealth reports service health. Degraded answers 503 so load
// balancers can act on the status alone.
// GET /health
func handleHealth(eng *engine.Engine, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := eng.Health(r.Context())
		status := http.StatusOK
		if !report.Healthy() {
			status = http.StatusServiceUnavailable
			requestLogger(r.Context(), logger).WarnContext(r.Context(), "health check degraded",
				"horizon_reachable", report.HorizonReachable,
			)
		}
		writeJSON(w, report, status)
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps err onto the uniform error body and returns the status
// written. Failures that are ours or upstream's are logged with full detail.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) int {
	kind := apperror.KindOf(err)
	status := apperror.StatusFor(err)

	switch kind {
	case apperror.Internal:
		logger.Error("request failed", "error", err)
	case apperror.MalformedUpstreamData:
		logger.Error("upstream data contract break", "error", err)
	case apperror.UpstreamError:
		logger.Warn("upstream request failed", "error", err, "status", status)
	default:
		logger.Debug("request rejected", "error", err, "status", status)
	}

	writeJSON(w, errorBody{Error: errorDetail{
		Code:    apperror.Code(kind),
		Message: apperror.PublicMessage(err),
	}}, status)
	return status
}
