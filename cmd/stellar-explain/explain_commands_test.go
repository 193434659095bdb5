package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testHash    = "3389e9f0f1a65f19736cacf544c2e825313e8447f569233bb8db39aa607c8889"
	testAccount = "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"
)

// newAPIServer serves canned responses for the explanation routes and counts
// the requests it receives.
func newAPIServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("GET /tx/{hash}", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.PathValue("hash") != testHash {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"transaction not found"}}`))
			return
		}
		fee := "The fee of 100 stroops was normal."
		json.NewEncoder(w).Encode(map[string]any{
			"transaction_hash": testHash,
			"successful":       true,
			"summary":          "This successful transaction contains 2 payments.",
			"payment_explanations": []map[string]string{
				{"operation_id": "1", "summary": "A sent 5.0000000 XLM to B", "to": testAccount, "asset": "XLM", "amount": "5.0000000"},
				{"operation_id": "2", "summary": "A sent 1.5000000 USDC to B", "to": testAccount, "asset": "USDC", "amount": "1.5000000"},
			},
			"skipped_operations": 1,
			"memo_explanation":   nil,
			"fee_explanation":    fee,
		})
	})
	mux.HandleFunc("GET /tx/{hash}/raw", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(`{"hash":"` + testHash + `","successful":true,"fee_charged":100,"operations":[]}`))
	})
	mux.HandleFunc("GET /account/{address}", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(`{"address":"` + testAccount + `","summary":"This account holds 104.5000000 XLM.","xlm_balance":"104.5000000","asset_count":0,"signer_count":1,"home_domain":"centre.io","org_name":null,"flag_descriptions":["Authorization required"]}`))
	})
	mux.HandleFunc("GET /account/{address}/transactions", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "asc", r.URL.Query().Get("order"))
		w.Write([]byte(`{"items":[{"hash":"` + testHash + `","created_at":"2024-01-02T03:04:05Z","successful":true,"operation_count":2,"memo":null,"summary":"2 payments"}],"next_cursor":"215271300423270000"}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &requests
}

func TestTxCommand(t *testing.T) {
	server, _ := newAPIServer(t)

	stdout, _, err := runApp(t, "--server-url", server.URL, "tx", testHash)
	require.NoError(t, err)

	assert.Contains(t, stdout, "This successful transaction contains 2 payments.")
	assert.Contains(t, stdout, "A sent 1.5000000 USDC to B")
	assert.Contains(t, stdout, "Skipped operations: 1")
	assert.Contains(t, stdout, "The fee of 100 stroops was normal.")
	assert.NotContains(t, stdout, "Memo:")
}

func TestTxCommand_JSON(t *testing.T) {
	server, _ := newAPIServer(t)

	stdout, _, err := runApp(t, "--server-url", server.URL, "--json", "tx", testHash)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &body))
	assert.Equal(t, testHash, body["transaction_hash"])
	assert.Contains(t, body, "memo_explanation")
}

func TestTxCommand_JQ(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		want   string
	}{
		{name: "strings print unquoted", filter: ".payment_explanations[].asset", want: "XLM\nUSDC\n"},
		{name: "numbers print as json", filter: ".skipped_operations", want: "1\n"},
		{name: "null is preserved", filter: ".memo_explanation", want: "null\n"},
		{name: "objects are indented", filter: "{ok: .successful}", want: "{\n  \"ok\": true\n}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newAPIServer(t)

			stdout, _, err := runApp(t, "--server-url", server.URL, "tx", "--jq", tt.filter, testHash)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stdout)
		})
	}
}

func TestTxCommand_BadJQFilterSkipsRequest(t *testing.T) {
	server, requests := newAPIServer(t)

	_, _, err := runApp(t, "--server-url", server.URL, "tx", "--jq", ".[", testHash)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse jq filter")
	assert.Equal(t, int32(0), requests.Load())
}

func TestTxCommand_NotFound(t *testing.T) {
	server, _ := newAPIServer(t)

	_, _, err := runApp(t, "--server-url", server.URL, "tx", "deadbeef")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_FOUND")
	assert.Contains(t, err.Error(), "transaction not found")
}

func TestTxCommand_RequiresHash(t *testing.T) {
	_, _, err := runApp(t, "tx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transaction hash is required")
}

func TestRawCommand(t *testing.T) {
	server, _ := newAPIServer(t)

	stdout, _, err := runApp(t, "--server-url", server.URL, "raw", "--jq", ".fee_charged", testHash)
	require.NoError(t, err)
	assert.Equal(t, "100\n", stdout)
}

func TestAccountCommand(t *testing.T) {
	server, _ := newAPIServer(t)

	stdout, _, err := runApp(t, "--server-url", server.URL, "account", testAccount)
	require.NoError(t, err)

	assert.Contains(t, stdout, "This account holds 104.5000000 XLM.")
	assert.Contains(t, stdout, "Home domain:  centre.io")
	assert.Contains(t, stdout, "  - Authorization required")
	assert.NotContains(t, stdout, "Organization:")
}

func TestAccountTransactionsCommand(t *testing.T) {
	server, _ := newAPIServer(t)

	stdout, stderr, err := runApp(t, "--server-url", server.URL, "account-txs", "--limit", "5", "--order", "asc", testAccount)
	require.NoError(t, err)

	assert.Contains(t, stdout, "HASH")
	assert.Contains(t, stdout, testHash)
	assert.Contains(t, stdout, "2 payments")
	assert.Contains(t, stderr, "--cursor 215271300423270000")
}

func TestAccountTransactionsCommand_JQ(t *testing.T) {
	server, _ := newAPIServer(t)

	stdout, _, err := runApp(t, "--server-url", server.URL, "txs", "-n", "5", "--order", "asc", "--jq", ".next_cursor", testAccount)
	require.NoError(t, err)
	assert.Equal(t, "215271300423270000\n", stdout)
}
