package client

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

	"github.com/brojonat/stellar-explain/service/explain"
)

// Health is the body of GET /health.
type Health struct {
	Status           string `json:"status"`
	Network          string `json:"network"`
	HorizonReachable bool   `json:"horizon_reachable"`
	Version          string `json:"version"`
}

// Healthy reports whether the server said it can serve explanations.
func (h Health) Healthy() bool {
	return h.Status == "ok"
}

// PageOptions selects a page of account transactions. Zero values are
// omitted so the server applies its defaults.
type PageOptions struct {
	Limit  int
	Cursor string
	Order  string
}

// Values encodes the options as a query string.
func (o PageOptions) Values() url.Values {
	q := url.Values{}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Cursor != "" {
		q.Set("cursor", o.Cursor)
	}
	if o.Order != "" {
		q.Set("order", o.Order)
	}
	return q
}

// APIError is a non-2xx response carrying the server's error body.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	// RetryAfter is set from the Retry-After header on 429 responses.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("request failed (%d %s): %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client is the HTTP client for the stellar-explain service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new explanation service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// ExplainTransaction fetches the explanation for a transaction hash.
func (c *Client) ExplainTransaction(ctx context.Context, hash string) (*explain.TransactionExplanation, error) {
	var out explain.TransactionExplanation
	if err := c.getJSON(ctx, txPath(hash), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RawTransaction fetches the normalized transaction the explanation is built from.
func (c *Client) RawTransaction(ctx context.Context, hash string) (*explain.Transaction, error) {
	var out explain.Transaction
	if err := c.getJSON(ctx, txPath(hash)+"/raw", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExplainAccount fetches the explanation for an account.
func (c *Client) ExplainAccount(ctx context.Context, address string) (*explain.AccountExplanation, error) {
	var out explain.AccountExplanation
	if err := c.getJSON(ctx, accountPath(address), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AccountTransactions fetches one page of an account's transaction summaries.
func (c *Client) AccountTransactions(ctx context.Context, address string, opts PageOptions) (*explain.AccountTransactionsPage, error) {
	var out explain.AccountTransactionsPage
	if err := c.getJSON(ctx, accountPath(address)+"/transactions", opts.Values(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health fetches the health report. A degraded server answers 503 with a
// report body; that case returns the report and no error.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	resp, err := c.do(ctx, "/health", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, c.parseErrorResponse(resp)
	}

	var out Health
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// GetRaw performs a GET against path and returns the undecoded body. The CLI
// uses it to feed jq filters without losing fields the typed methods drop.
func (c *Client) GetRaw(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	resp, err := c.do(ctx, path, query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, dst any) error {
	resp, err := c.do(ctx, path, query)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	c.logger.Debug("request completed",
		"path", path,
		"status", resp.StatusCode,
		"request_id", resp.Header.Get("X-Request-ID"),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

// parseErrorResponse turns a non-2xx response into an *APIError.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Code == "" {
		apiErr.Message = string(body)
		return apiErr
	}

	apiErr.Code = errResp.Error.Code
	apiErr.Message = errResp.Error.Message
	return apiErr
}

func txPath(hash string) string {
	return "/tx/" + url.PathEscape(hash)
}

func accountPath(address string) string {
	return "/account/" + url.PathEscape(address)
}
