package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/stellar-explain/service/apperror"
	"github.com/brojonat/stellar-explain/service/ratelimit"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// Client supplied request IDs are kept only if they look like an ID.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

type ctxKey int

const loggerKey ctxKey = iota

// requestIDMiddleware honors a sane X-Request-ID or generates a uuid, echoes
// it on the response and puts a request-scoped logger in the context.
func requestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if !validRequestID.MatchString(id) {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			ctx := context.WithValue(r.Context(), loggerKey, logger.With("request_id", id))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestLogger returns the logger stored by requestIDMiddleware, or fallback.
func requestLogger(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return fallback
}

// deadlineMiddleware bounds the request context. Work the request started
// may outlive the deadline; the handler only stops waiting for it.
func deadlineMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rateLimitMiddleware rejects clients over their per-window budget with 429.
func rateLimitMiddleware(limiter *ratelimit.Limiter, trustProxy bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := clientIdentity(r, trustProxy)
			d := limiter.Admit(identity)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				secs := int(d.RetryAfter.Seconds())
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				log := requestLogger(r.Context(), logger)
				log.WarnContext(r.Context(), "rate limit exceeded",
					"client", identity,
					"path", r.URL.Path,
					"retry_after_s", secs,
				)
				writeError(w, log, apperror.New(apperror.RateLimited, "rate limit exceeded, retry in %d seconds", secs))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIdentity is the remote IP, or the first X-Forwarded-For hop when the
// service runs behind a trusted proxy.
func clientIdentity(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
