package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestStore wraps a Store backed by a throwaway Postgres container.
type TestStore struct {
	*Store
	pool *pgxpool.Pool
}

// SkipIfNoTestDB skips the test under -short or when SKIP_DB_TESTS is set.
func SkipIfNoTestDB(t *testing.T) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}
	if os.Getenv("SKIP_DB_TESTS") != "" {
		t.Skip("Skipping database test (SKIP_DB_TESTS is set)")
	}
}

// NewTestStore starts a Postgres container, applies migrations and returns a
// store for network. The container is terminated when the test ends. Set
// TEST_DATABASE_URL to use an existing database instead.
func NewTestStore(t *testing.T, network string) *TestStore {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		container, err := postgres.Run(ctx, "postgres:15-alpine",
			postgres.WithDatabase("stellar_explain_test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			t.Skipf("Skipping database test: cannot start postgres container: %v", err)
		}
		t.Cleanup(func() {
			if err := container.Terminate(ctx); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			t.Fatalf("failed to get connection string: %v", err)
		}
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping test database: %v", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return &TestStore{Store: NewStore(pool, network, nil), pool: pool}
}

// Cleanup removes all archived explanations.
func (ts *TestStore) Cleanup(t *testing.T) {
	t.Helper()
	if _, err := ts.pool.Exec(context.Background(), "TRUNCATE TABLE tx_explanations"); err != nil {
		t.Fatalf("failed to cleanup test database: %v", err)
	}
}
