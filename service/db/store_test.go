package db

import (
	"context"
	"testing"

	"github.com/brojonat/stellar-explain/service/explain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleExplanation(hash string, ledger int64, from, to string) *explain.TransactionExplanation {
	memo := `This transaction includes a text memo: "rent"`
	return &explain.TransactionExplanation{
		TransactionHash: hash,
		Successful:      true,
		Summary:         "This successful transaction contains 1 payment.",
		PaymentExplanations: []explain.PaymentExplanation{
			{OperationID: "1", Summary: "sent", From: from, To: to, Asset: "XLM", Amount: "1.0000000"},
		},
		SkippedOperations: 0,
		MemoExplanation:   &memo,
		CreatedAt:         "2024-01-15T14:32:00Z",
		Ledger:            ledger,
	}
}

func TestPaymentAccounts(t *testing.T) {
	exp := sampleExplanation("h", 1, "GA", "GB")
	exp.PaymentExplanations = append(exp.PaymentExplanations, explain.PaymentExplanation{From: "GB", To: "GA"}, explain.PaymentExplanation{To: "GC"})
	assert.Equal(t, []string{"GA", "GB", "GC"}, paymentAccounts(exp))
	assert.Equal(t, []string{}, paymentAccounts(&explain.TransactionExplanation{}))
}

func TestStore_Archive(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t, "public")
	ctx := context.Background()

	t.Run("save and get round trip", func(t *testing.T) {
		defer store.Cleanup(t)

		exp := sampleExplanation("aa", 100, "GA", "GB")
		written, err := store.SaveTransactionExplanation(ctx, exp)
		require.NoError(t, err)
		assert.True(t, written)

		got, err := store.GetTransactionExplanation(ctx, "aa")
		require.NoError(t, err)
		assert.Equal(t, exp, got)
	})

	t.Run("saving twice keeps the first copy", func(t *testing.T) {
		defer store.Cleanup(t)

		first := sampleExplanation("bb", 100, "GA", "GB")
		_, err := store.SaveTransactionExplanation(ctx, first)
		require.NoError(t, err)

		second := sampleExplanation("bb", 100, "GA", "GB")
		second.Summary = "changed"
		written, err := store.SaveTransactionExplanation(ctx, second)
		require.NoError(t, err)
		assert.False(t, written)

		got, err := store.GetTransactionExplanation(ctx, "bb")
		require.NoError(t, err)
		assert.Equal(t, first.Summary, got.Summary)
	})

	t.Run("missing hash", func(t *testing.T) {
		_, err := store.GetTransactionExplanation(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, store.DeleteTransactionExplanation(ctx, "nope"), ErrNotFound)
	})

	t.Run("archived hashes include transactions without payments", func(t *testing.T) {
		defer store.Cleanup(t)

		exp := sampleExplanation("ee", 5, "GA", "GB")
		exp.PaymentExplanations = nil
		exp.SkippedOperations = 1
		_, err := store.SaveTransactionExplanation(ctx, exp)
		require.NoError(t, err)

		archived, err := store.ArchivedHashes(ctx, []string{"ee"})
		require.NoError(t, err)
		assert.Equal(t, []string{"ee"}, archived)

		archived, err = store.ArchivedHashes(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, archived)
	})

	t.Run("networks are isolated", func(t *testing.T) {
		defer store.Cleanup(t)

		_, err := store.SaveTransactionExplanation(ctx, sampleExplanation("cc", 1, "GA", "GB"))
		require.NoError(t, err)

		testnet := NewStore(store.pool, "testnet", nil)
		_, err = testnet.GetTransactionExplanation(ctx, "cc")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list, count and delete", func(t *testing.T) {
		defer store.Cleanup(t)

		for i, hash := range []string{"d1", "d2", "d3"} {
			_, err := store.SaveTransactionExplanation(ctx, sampleExplanation(hash, int64(10+i), "GA", "G"+hash))
			require.NoError(t, err)
		}

		n, err := store.CountExplanations(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		recent, err := store.ListRecent(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, recent, 2)

		byAccount, err := store.ListByAccount(ctx, "GA", 10)
		require.NoError(t, err)
		require.Len(t, byAccount, 3)
		assert.Equal(t, "d3", byAccount[0].Hash, "highest ledger first")
		require.NotNil(t, byAccount[0].ClosedAt)
		assert.Equal(t, []string{"GA", "Gd3"}, byAccount[0].Accounts)

		byAccount, err = store.ListByAccount(ctx, "Gd2", 10)
		require.NoError(t, err)
		require.Len(t, byAccount, 1)
		assert.Equal(t, "d2", byAccount[0].Hash)

		archived, err := store.ArchivedHashes(ctx, []string{"d1", "d2", "zz"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"d1", "d2"}, archived)

		require.NoError(t, store.DeleteTransactionExplanation(ctx, "d2"))
		n, err = store.CountExplanations(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
}
