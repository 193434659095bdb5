// Package horizontest provides an in-process fake Horizon server for tests.
package horizontest

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

// Route names used by Calls.
const (
	RouteRoot        = "root"
	RouteTransaction = "transaction"
	RouteOperations  = "operations"
	RouteAccount     = "account"
	RouteAccountTxs  = "account_transactions"
	RouteFeeStats    = "fee_stats"
)

type transaction struct {
	body string
	ops  string
}

// Server is a fake Horizon. Unknown records answer 404, like Horizon does.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	transactions map[string]transaction
	accounts     map[string]string
	accountTxs   map[string]string
	feeStats     string
	failStatus   int
	delay        time.Duration
	calls        map[string]int
}

// New starts a fake Horizon that is closed when the test ends. It serves
// fee stats from SampleFeeStats until told otherwise.
func New(t *testing.T) *Server {
	t.Helper()

	s := &Server{
		transactions: make(map[string]transaction),
		accounts:     make(map[string]string),
		accountTxs:   make(map[string]string),
		feeStats:     SampleFeeStats,
		calls:        make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handle(RouteRoot, func(r *http.Request) (string, bool) {
		return `{"horizon_version":"fake","network_passphrase":"Test SDF Network ; September 2015"}`, true
	}))
	mux.HandleFunc("GET /transactions/{hash}", s.handle(RouteTransaction, func(r *http.Request) (string, bool) {
		tx, ok := s.transactions[r.PathValue("hash")]
		return tx.body, ok
	}))
	mux.HandleFunc("GET /transactions/{hash}/operations", s.handle(RouteOperations, func(r *http.Request) (string, bool) {
		tx, ok := s.transactions[r.PathValue("hash")]
		return tx.ops, ok
	}))
	mux.HandleFunc("GET /accounts/{address}", s.handle(RouteAccount, func(r *http.Request) (string, bool) {
		body, ok := s.accounts[r.PathValue("address")]
		return body, ok
	}))
	mux.HandleFunc("GET /accounts/{address}/transactions", s.handle(RouteAccountTxs, func(r *http.Request) (string, bool) {
		body, ok := s.accountTxs[r.PathValue("address")]
		return body, ok
	}))
	mux.HandleFunc("GET /fee_stats", s.handle(RouteFeeStats, func(r *http.Request) (string, bool) {
		return s.feeStats, s.feeStats != ""
	}))

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) handle(route string, lookup func(r *http.Request) (string, bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[route]++
		delay := s.delay
		status := s.failStatus
		body, ok := lookup(r)
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		w.Header().Set("Content-Type", "application/hal+json")
		switch {
		case status != 0 && route != RouteFeeStats:
			w.WriteHeader(status)
			w.Write([]byte(`{"status":` + strconv.Itoa(status) + `}`))
		case route == RouteFeeStats && !ok:
			w.WriteHeader(http.StatusInternalServerError)
		case !ok:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"type":"https://stellar.org/horizon-errors/not_found","title":"Resource Missing","status":404}`))
		default:
			w.Write([]byte(body))
		}
	}
}

// AddTransaction serves a transaction and its operations page under hash.
func (s *Server) AddTransaction(hash, body, ops string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[hash] = transaction{body: body, ops: ops}
}

// AddAccount serves an account resource.
func (s *Server) AddAccount(address, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[address] = body
}

// SetAccountTransactions serves a history page for address.
func (s *Server) SetAccountTransactions(address, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accountTxs[address] = body
}

// SetFeeStats replaces the fee stats body. Empty makes /fee_stats fail.
func (s *Server) SetFeeStats(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeStats = body
}

// FailWith makes every route except /fee_stats answer status. Zero restores
// normal behaviour.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
}

// SetDelay delays every response by d.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Calls returns how many requests route has received.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}
