package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/stellar-explain/service/explain"
	"github.com/brojonat/stellar-explain/service/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no archived explanation matches.
var ErrNotFound = errors.New("explanation not found")

const table = "tx_explanations"

// Store archives transaction explanations in Postgres. Ledger records are
// immutable, so an archived explanation is never updated.
type Store struct {
	pool    *pgxpool.Pool
	network string
	metrics *metrics.Metrics
}

// NewStore creates a Store scoped to one Stellar network.
// If metrics is nil, no metrics will be recorded.
func NewStore(pool *pgxpool.Pool, network string, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		network: network,
		metrics: m,
	}
}

// Network returns the network this store reads and writes.
func (s *Store) Network() string {
	return s.network
}

// ExplanationRecord is an archived explanation with its bookkeeping columns.
type ExplanationRecord struct {
	Hash        string
	Network     string
	Successful  bool
	Ledger      int64
	ClosedAt    *time.Time
	Accounts    []string
	Explanation *explain.TransactionExplanation
	ArchivedAt  time.Time
}

// SaveTransactionExplanation archives exp. Saving a hash that is already
// archived is a no-op. It reports whether a row was written.
func (s *Store) SaveTransactionExplanation(ctx context.Context, exp *explain.TransactionExplanation) (bool, error) {
	start := time.Now()

	body, err := json.Marshal(exp)
	if err != nil {
		return false, fmt.Errorf("marshal explanation: %w", err)
	}

	var closedAt *time.Time
	if t, err := time.Parse(time.RFC3339, exp.CreatedAt); err == nil {
		closedAt = &t
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO tx_explanations (hash, network, successful, ledger, closed_at, accounts, explanation)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (hash, network) DO NOTHING
	`, exp.TransactionHash, s.network, exp.Successful, exp.Ledger, closedAt, paymentAccounts(exp), body)
	s.metrics.RecordDBQuery("insert", table, time.Since(start).Seconds(), err)
	if err != nil {
		return false, fmt.Errorf("insert explanation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetTransactionExplanation returns the archived explanation for hash, or
// ErrNotFound.
func (s *Store) GetTransactionExplanation(ctx context.Context, hash string) (*explain.TransactionExplanation, error) {
	start := time.Now()

	var body []byte
	err := s.pool.QueryRow(ctx, `
		SELECT explanation FROM tx_explanations WHERE hash = $1 AND network = $2
	`, hash, s.network).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		s.metrics.RecordDBQuery("select", table, time.Since(start).Seconds(), nil)
		return nil, ErrNotFound
	}
	s.metrics.RecordDBQuery("select", table, time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("get explanation: %w", err)
	}

	var exp explain.TransactionExplanation
	if err := json.Unmarshal(body, &exp); err != nil {
		return nil, fmt.Errorf("decode archived explanation %s: %w", hash, err)
	}
	return &exp, nil
}

// ListRecent returns the most recently archived explanations, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*ExplanationRecord, error) {
	return s.list(ctx, "list_recent", `
		SELECT hash, network, successful, ledger, closed_at, accounts, explanation, archived_at
		FROM tx_explanations
		WHERE network = $1
		ORDER BY archived_at DESC, hash
		LIMIT $2
	`, s.network, limit)
}

// ListByAccount returns archived explanations whose payments involve address,
// most recent ledger first.
func (s *Store) ListByAccount(ctx context.Context, address string, limit int) ([]*ExplanationRecord, error) {
	return s.list(ctx, "list_by_account", `
		SELECT hash, network, successful, ledger, closed_at, accounts, explanation, archived_at
		FROM tx_explanations
		WHERE network = $1 AND $2 = ANY(accounts)
		ORDER BY ledger DESC, hash
		LIMIT $3
	`, s.network, address, limit)
}

// ArchivedHashes returns the subset of hashes that are already archived.
func (s *Store) ArchivedHashes(ctx context.Context, hashes []string) ([]string, error) {
	if len(hashes) == 0 {
		return []string{}, nil
	}

	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT hash FROM tx_explanations WHERE network = $1 AND hash = ANY($2)
	`, s.network, hashes)
	if err != nil {
		s.metrics.RecordDBQuery("archived_hashes", table, time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("archived hashes: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	s.metrics.RecordDBQuery("archived_hashes", table, time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("archived hashes: %w", err)
	}
	return found, nil
}

func (s *Store) list(ctx context.Context, op, query string, args ...any) ([]*ExplanationRecord, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		s.metrics.RecordDBQuery(op, table, time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []*ExplanationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			s.metrics.RecordDBQuery(op, table, time.Since(start).Seconds(), err)
			return nil, err
		}
		out = append(out, rec)
	}
	err = rows.Err()
	s.metrics.RecordDBQuery(op, table, time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// CountExplanations returns the number of archived explanations.
func (s *Store) CountExplanations(ctx context.Context) (int64, error) {
	start := time.Now()
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tx_explanations WHERE network = $1`, s.network).Scan(&n)
	s.metrics.RecordDBQuery("count", table, time.Since(start).Seconds(), err)
	if err != nil {
		return 0, fmt.Errorf("count explanations: %w", err)
	}
	return n, nil
}

// DeleteTransactionExplanation removes an archived explanation so the next
// request recomputes it. It returns ErrNotFound if nothing was archived.
func (s *Store) DeleteTransactionExplanation(ctx context.Context, hash string) error {
	start := time.Now()
	tag, err := s.pool.Exec(ctx, `DELETE FROM tx_explanations WHERE hash = $1 AND network = $2`, hash, s.network)
	s.metrics.RecordDBQuery("delete", table, time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("delete explanation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (*ExplanationRecord, error) {
	var (
		rec  ExplanationRecord
		body []byte
	)
	if err := row.Scan(&rec.Hash, &rec.Network, &rec.Successful, &rec.Ledger, &rec.ClosedAt, &rec.Accounts, &body, &rec.ArchivedAt); err != nil {
		return nil, fmt.Errorf("scan explanation: %w", err)
	}
	rec.Explanation = &explain.TransactionExplanation{}
	if err := json.Unmarshal(body, rec.Explanation); err != nil {
		return nil, fmt.Errorf("decode archived explanation %s: %w", rec.Hash, err)
	}
	return &rec, nil
}

// paymentAccounts lists the distinct senders and receivers of exp's payments.
func paymentAccounts(exp *explain.TransactionExplanation) []string {
	seen := make(map[string]bool)
	accounts := []string{}
	for _, p := range exp.PaymentExplanations {
		for _, a := range []string{p.From, p.To} {
			if a != "" && !seen[a] {
				seen[a] = true
				accounts = append(accounts, a)
			}
		}
	}
	return accounts
}
