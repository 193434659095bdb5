package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testHash    = "3389e9f0f1a65f19736cacf544c2e825313e8447f569233bb8db39aa607c8889"
	testAccount = "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"
)

func writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

func TestExplainTransaction_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/tx/"+testHash, r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"transaction_hash": testHash,
			"successful":       true,
			"summary":          "This successful transaction contains 1 payment.",
			"payment_explanations": []map[string]string{
				{"operation_id": "1", "summary": "sent 5 XLM", "to": testAccount, "asset": "XLM", "amount": "5.0000000"},
			},
			"skipped_operations": 0,
			"memo_explanation":   nil,
			"fee_explanation":    "Fee was 100 stroops.",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	exp, err := client.ExplainTransaction(context.Background(), testHash)
	require.NoError(t, err)

	assert.Equal(t, testHash, exp.TransactionHash)
	assert.True(t, exp.Successful)
	require.Len(t, exp.PaymentExplanations, 1)
	assert.Equal(t, "5.0000000", exp.PaymentExplanations[0].Amount)
	assert.Nil(t, exp.MemoExplanation)
	require.NotNil(t, exp.FeeExplanation)
}

func TestExplainTransaction_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorBody(w, http.StatusNotFound, "NOT_FOUND", "transaction not found")
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.ExplainTransaction(context.Background(), testHash)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
	assert.Equal(t, "transaction not found", apiErr.Message)
}

func TestRateLimited_ParsesRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "42")
		writeErrorBody(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.ExplainAccount(context.Background(), testAccount)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, 42*time.Second, apiErr.RetryAfter)
	assert.False(t, IsNotFound(err))
}

func TestNonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.RawTransaction(context.Background(), testHash)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "bad gateway")
}

func TestRawTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tx/"+testHash+"/raw", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"hash":           testHash,
			"successful":     true,
			"source_account": testAccount,
			"fee_charged":    100,
			"operations": []map[string]any{
				{"id": "1", "kind": "payment", "raw_type": "payment"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	tx, err := client.RawTransaction(context.Background(), testHash)
	require.NoError(t, err)
	assert.Equal(t, int64(100), tx.FeeCharged)
	require.Len(t, tx.Operations, 1)
}

func TestAccountTransactions_Query(t *testing.T) {
	tests := []struct {
		name      string
		opts      PageOptions
		wantQuery string
	}{
		{name: "defaults send no query", opts: PageOptions{}, wantQuery: ""},
		{name: "all options", opts: PageOptions{Limit: 5, Cursor: "123", Order: "asc"}, wantQuery: "cursor=123&limit=5&order=asc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/account/"+testAccount+"/transactions", r.URL.Path)
				assert.Equal(t, tt.wantQuery, r.URL.RawQuery)
				json.NewEncoder(w).Encode(map[string]any{
					"items":       []map[string]any{{"hash": testHash, "successful": true, "operation_count": 1}},
					"next_cursor": "456",
				})
			}))
			defer server.Close()

			client := NewClient(server.URL, nil, nil)
			page, err := client.AccountTransactions(context.Background(), testAccount, tt.opts)
			require.NoError(t, err)
			require.Len(t, page.Items, 1)
			assert.Equal(t, "456", page.NextCursor)
		})
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantErr     bool
		wantHealthy bool
	}{
		{
			name:        "ok",
			status:      http.StatusOK,
			body:        `{"status":"ok","network":"testnet","horizon_reachable":true,"version":"dev"}`,
			wantHealthy: true,
		},
		{
			name:   "degraded still returns report",
			status: http.StatusServiceUnavailable,
			body:   `{"status":"degraded","network":"testnet","horizon_reachable":false,"version":"dev"}`,
		},
		{
			name:    "unexpected status",
			status:  http.StatusInternalServerError,
			body:    `{"error":{"code":"INTERNAL_ERROR","message":"internal error"}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/health", r.URL.Path)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, nil, nil)
			health, err := client.Health(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHealthy, health.Healthy())
			assert.Equal(t, "testnet", health.Network)
		})
	}
}

func TestGetRaw(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/account/"+testAccount, r.URL.Path)
		w.Write([]byte(`{"address":"` + testAccount + `","extra":1}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	raw, err := client.GetRaw(context.Background(), accountPath(testAccount), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"address":"`+testAccount+`","extra":1}`, string(raw))
}

func TestContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	client := NewClient(server.URL, nil, nil)
	_, err := client.ExplainTransaction(ctx, testHash)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}
