package horizon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/brojonat/stellar-explain/service/apperror"
	"github.com/brojonat/stellar-explain/service/metrics"
)

const (
	maxResponseBytes   = 10 << 20
	operationsPageSize = 200
	maxRetryAfter      = 5 * time.Second
)

// Client fetches raw ledger records from a Horizon server.
// It owns retries: callers see a single terminal outcome per fetch.
type Client struct {
	http        HTTPDoer
	baseURL     string
	maxAttempts int
	backoff     time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewClient creates a new Horizon client.
// maxAttempts below 1 is treated as 1. If metrics is nil, no metrics will be recorded.
func NewClient(doer HTTPDoer, baseURL string, maxAttempts int, m *metrics.Metrics, logger *slog.Logger) *Client {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:        doer,
		baseURL:     baseURL,
		maxAttempts: maxAttempts,
		backoff:     250 * time.Millisecond,
		metrics:     m,
		logger:      logger,
	}
}

// WithBackoff overrides the initial retry backoff. Mostly useful in tests.
func (c *Client) WithBackoff(d time.Duration) *Client {
	c.backoff = d
	return c
}

// BaseURL returns the Horizon root this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchTransaction fetches a transaction and the first page of its operations.
func (c *Client) FetchTransaction(ctx context.Context, hash string) (*RawTransaction, error) {
	escaped := url.PathEscape(hash)

	body, err := c.get(ctx, "FetchTransaction", "/transactions/"+escaped, nil, "transaction not found")
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(operationsPageSize))
	ops, err := c.get(ctx, "FetchOperations", "/transactions/"+escaped+"/operations", q, "transaction not found")
	if err != nil {
		return nil, err
	}

	return &RawTransaction{Hash: hash, Body: body, Operations: ops}, nil
}

// FetchTransactionBody fetches only the transaction resource, without its
// operations.
func (c *Client) FetchTransactionBody(ctx context.Context, hash string) (json.RawMessage, error) {
	body, err := c.get(ctx, "FetchTransaction", "/transactions/"+url.PathEscape(hash), nil, "transaction not found")
	if err != nil {
		return nil, err
	}
	return body, nil
}

// FetchAccount fetches an account resource.
func (c *Client) FetchAccount(ctx context.Context, address string) (*RawAccount, error) {
	body, err := c.get(ctx, "FetchAccount", "/accounts/"+url.PathEscape(address), nil, "account not found")
	if err != nil {
		return nil, err
	}
	return &RawAccount{Address: address, Body: body}, nil
}

// FetchFeeStats fetches current network fee statistics.
func (c *Client) FetchFeeStats(ctx context.Context) (*RawFeeStats, error) {
	body, err := c.get(ctx, "FetchFeeStats", "/fee_stats", nil, "fee stats not found")
	if err != nil {
		return nil, err
	}
	return &RawFeeStats{Body: body}, nil
}

// FetchAccountTransactions fetches one page of an account's transaction history.
func (c *Client) FetchAccountTransactions(ctx context.Context, address string, params PageParams) (*RawTransactionPage, error) {
	q := url.Values{}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Cursor != "" {
		q.Set("cursor", params.Cursor)
	}
	if params.Order != "" {
		q.Set("order", params.Order)
	}

	body, err := c.get(ctx, "FetchAccountTransactions", "/accounts/"+url.PathEscape(address)+"/transactions", q, "account not found")
	if err != nil {
		return nil, err
	}
	return &RawTransactionPage{Body: body}, nil
}

// Ping checks that the Horizon root answers with a 2xx. It does not retry.
func (c *Client) Ping(ctx context.Context) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordUpstreamCall("Ping", "error", time.Since(start).Seconds())
		return apperror.Upstream(err, "horizon unreachable")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.RecordUpstreamCall("Ping", "error", time.Since(start).Seconds())
		return apperror.Upstream(fmt.Errorf("status %d", resp.StatusCode), "horizon unhealthy")
	}
	c.metrics.RecordUpstreamCall("Ping", "success", time.Since(start).Seconds())
	return nil
}

// attemptError is the outcome of a single attempt and whether it may be retried.
type attemptError struct {
	err        error
	retryable  bool
	reason     string
	retryAfter time.Duration
}

// get performs a GET against path with retries and returns the JSON body.
func (c *Client) get(ctx context.Context, method, path string, query url.Values, notFoundMsg string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var last *attemptError
	for attempt := range c.maxAttempts {
		if attempt > 0 {
			wait := c.backoff << uint(attempt-1)
			if last.retryAfter > 0 {
				wait = last.retryAfter
			}
			c.logger.WarnContext(ctx, "retrying horizon request",
				"method", method,
				"attempt", attempt+1,
				"reason", last.reason,
				"backoff_ms", wait.Milliseconds(),
			)
			c.metrics.RecordUpstreamRetry(method, last.reason)

			select {
			case <-ctx.Done():
				return nil, apperror.Upstream(ctx.Err(), "horizon %s cancelled", method)
			case <-time.After(wait):
			}
		}

		start := time.Now()
		body, aerr := c.do(ctx, u, notFoundMsg)
		duration := time.Since(start).Seconds()

		if aerr == nil {
			c.metrics.RecordUpstreamCall(method, "success", duration)
			c.logger.DebugContext(ctx, "horizon request succeeded",
				"method", method,
				"url", u,
				"duration_ms", int64(duration*1000),
			)
			return body, nil
		}

		status := "error"
		if apperror.Is(aerr.err, apperror.NotFound) {
			status = "not_found"
		}
		c.metrics.RecordUpstreamCall(method, status, duration)

		if !aerr.retryable || ctx.Err() != nil {
			return nil, aerr.err
		}
		last = aerr
	}

	c.logger.ErrorContext(ctx, "horizon request failed after retries",
		"method", method,
		"attempts", c.maxAttempts,
		"error", last.err,
	)
	return nil, last.err
}

// do performs one attempt.
func (c *Client) do(ctx context.Context, u, notFoundMsg string) ([]byte, *attemptError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &attemptError{err: apperror.Wrap(apperror.Internal, err, "failed to create request")}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &attemptError{
			err:       apperror.Upstream(err, "horizon request failed"),
			retryable: ctx.Err() == nil,
			reason:    "network",
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &attemptError{
			err:       apperror.Upstream(err, "failed to read horizon response"),
			retryable: true,
			reason:    "read",
		}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if !json.Valid(body) {
			return nil, &attemptError{err: apperror.Malformed("horizon returned invalid JSON from %s", req.URL.Path)}
		}
		return body, nil

	case resp.StatusCode == http.StatusNotFound:
		return nil, &attemptError{err: apperror.NotFoundf("%s", notFoundMsg)}

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &attemptError{
			err:        apperror.Upstream(fmt.Errorf("status %d", resp.StatusCode), "horizon rate limited"),
			retryable:  true,
			reason:     "rate_limited",
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}

	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, &attemptError{
			err:       apperror.Upstream(apperror.ErrUnavailable, "horizon returned %d", resp.StatusCode),
			retryable: true,
			reason:    "unavailable",
		}

	case resp.StatusCode >= 500:
		return nil, &attemptError{
			err:       apperror.Upstream(errors.New(http.StatusText(resp.StatusCode)), "horizon returned %d", resp.StatusCode),
			retryable: true,
			reason:    "server_error",
		}

	default:
		return nil, &attemptError{
			err: apperror.Upstream(errors.New(http.StatusText(resp.StatusCode)), "horizon returned %d", resp.StatusCode),
		}
	}
}

// parseRetryAfter reads a delay-seconds Retry-After value, capped so a
// misbehaving upstream cannot stall a request.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}
