package main

import (
	"context"
	"testing"

	"github.com/brojonat/stellar-explain/service/db"
	"github.com/brojonat/stellar-explain/service/explain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// setupTestArchive points the db commands at a throwaway archive.
func setupTestArchive(t *testing.T) *db.TestStore {
	t.Helper()
	db.SkipIfNoTestDB(t)

	store := db.NewTestStore(t, "public")
	original := openArchive
	openArchive = func(*cli.Context) (archive, func(), error) {
		return store.Store, func() {}, nil
	}
	t.Cleanup(func() { openArchive = original })
	return store
}

func archiveExplanation(t *testing.T, store *db.TestStore, hash string, ledger int64, to string) {
	t.Helper()
	_, err := store.SaveTransactionExplanation(context.Background(), &explain.TransactionExplanation{
		TransactionHash: hash,
		Successful:      true,
		Summary:         "This successful transaction contains 1 payment.",
		PaymentExplanations: []explain.PaymentExplanation{
			{OperationID: "1", Summary: "sent 1 XLM", To: to, Asset: "XLM", Amount: "1.0000000"},
		},
		Ledger: ledger,
	})
	require.NoError(t, err)
}

func TestDBCommands(t *testing.T) {
	store := setupTestArchive(t)
	other := "GBSGKZTHNBUWU23MNVXG64DROJZXI5LWO54HS6T3PR6X474AQGBIGHPW"

	t.Run("list", func(t *testing.T) {
		defer store.Cleanup(t)
		archiveExplanation(t, store, "aa", 100, testAccount)
		archiveExplanation(t, store, "bb", 200, other)

		stdout, stderr, err := runApp(t, "db", "list")
		require.NoError(t, err)
		assert.Contains(t, stdout, "aa")
		assert.Contains(t, stdout, "bb")
		assert.Contains(t, stderr, "Total: 2 explanations")
	})

	t.Run("list by account", func(t *testing.T) {
		defer store.Cleanup(t)
		archiveExplanation(t, store, "aa", 100, testAccount)
		archiveExplanation(t, store, "bb", 200, other)

		stdout, _, err := runApp(t, "db", "ls", "--account", testAccount)
		require.NoError(t, err)
		assert.Contains(t, stdout, "aa")
		assert.NotContains(t, stdout, "bb")
	})

	t.Run("get", func(t *testing.T) {
		defer store.Cleanup(t)
		archiveExplanation(t, store, "aa", 100, testAccount)

		stdout, _, err := runApp(t, "db", "get", "aa")
		require.NoError(t, err)
		assert.Contains(t, stdout, "This successful transaction contains 1 payment.")
		assert.Contains(t, stdout, "sent 1 XLM")
	})

	t.Run("get missing", func(t *testing.T) {
		_, _, err := runApp(t, "db", "get", "nope")
		require.Error(t, err)
		assert.ErrorIs(t, err, db.ErrNotFound)
	})

	t.Run("count", func(t *testing.T) {
		defer store.Cleanup(t)
		archiveExplanation(t, store, "aa", 100, testAccount)

		stdout, _, err := runApp(t, "--json", "db", "count")
		require.NoError(t, err)
		assert.JSONEq(t, `{"count":1}`, stdout)
	})

	t.Run("delete", func(t *testing.T) {
		defer store.Cleanup(t)
		archiveExplanation(t, store, "aa", 100, testAccount)

		_, _, err := runApp(t, "db", "delete", "aa")
		require.NoError(t, err)

		_, _, err = runApp(t, "db", "rm", "aa")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no archived explanation")
	})
}

func TestDBCommands_RequireDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, _, err := runApp(t, "db", "count")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database-url is required")
}

func TestMigrateCommand_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, _, err := runApp(t, "db", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database-url is required")
}
