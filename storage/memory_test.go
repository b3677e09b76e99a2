package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/storage"
)

func seedListing(t *testing.T, store *storage.MemoryStore) models.NFT {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	for _, id := range []string{"seller", "buyer"} {
		require.NoError(t, store.CreateUser(ctx, &models.User{ID: id, Email: id + "@example.com", Role: models.RoleUser, Balances: models.CurrencyAmounts{}, CreatedAt: now}))
	}
	n := models.NFT{
		ID: "n1", Name: "Ape", OwnerID: "seller", CreatorID: "seller", CategoryID: "art",
		FloorPrice: decimal.NewFromInt(2), Status: models.NFTStatusApproved, IsActive: true, CreatedAt: now,
	}
	require.NoError(t, store.CreateNFT(ctx, &n))
	return n
}

func TestMemoryWithTxDiscardsOnError(t *testing.T) {
	store := storage.NewMemoryStore()
	seedListing(t, store)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx storage.Queries) error {
		require.NoError(t, tx.UpdateUserBalances(ctx, "buyer", models.CurrencyAmounts{models.CurrencyETH: decimal.NewFromInt(9)}))
		require.NoError(t, tx.TransferNFT(ctx, "n1", "seller", "buyer"))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	buyer, err := store.GetUser(ctx, "buyer")
	require.NoError(t, err)
	assert.True(t, buyer.Balances.Get(models.CurrencyETH).IsZero())
	n, err := store.GetNFT(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "seller", n.OwnerID)
}

func TestMemoryCommitFaultDiscardsStagedWrites(t *testing.T) {
	store := storage.NewMemoryStore()
	seedListing(t, store)
	ctx := context.Background()
	store.InjectFault("Commit", storage.ErrConflict, 1)

	err := store.WithTx(ctx, func(tx storage.Queries) error {
		return tx.TransferNFT(ctx, "n1", "seller", "buyer")
	})
	assert.ErrorIs(t, err, storage.ErrConflict)

	n, err := store.GetNFT(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "seller", n.OwnerID)

	// the fault fired once and is gone
	require.NoError(t, store.WithTx(ctx, func(tx storage.Queries) error {
		return tx.TransferNFT(ctx, "n1", "seller", "buyer")
	}))
}

func TestMemoryTransferNFTRequiresPurchasableListing(t *testing.T) {
	store := storage.NewMemoryStore()
	seedListing(t, store)
	ctx := context.Background()

	require.NoError(t, store.TransferNFT(ctx, "n1", "seller", "buyer"))
	err := store.TransferNFT(ctx, "n1", "seller", "buyer")

	assert.ErrorIs(t, err, storage.ErrConflict)
	n, err := store.GetNFT(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "buyer", n.OwnerID)
	assert.False(t, n.IsActive)
}

func TestMemoryDuplicateEmail(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, &models.User{ID: "a", Email: "dup@example.com"}))
	err := store.CreateUser(ctx, &models.User{ID: "b", Email: "DUP@example.com"})

	assert.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestMemoryReturnedBalancesAreCopies(t *testing.T) {
	store := storage.NewMemoryStore()
	seedListing(t, store)
	ctx := context.Background()

	u, err := store.GetUser(ctx, "buyer")
	require.NoError(t, err)
	u.Balances[models.CurrencyETH] = decimal.NewFromInt(100)

	again, err := store.GetUser(ctx, "buyer")
	require.NoError(t, err)
	assert.True(t, again.Balances.Get(models.CurrencyETH).IsZero())
}

func TestMemoryListTransactionsNewestFirst(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, store.CreateTransaction(ctx, &models.Transaction{ID: id, UserID: "u", Kind: models.KindDeposit}))
	}

	txs, err := store.ListTransactions(ctx, storage.TransactionFilter{UserID: "u", Page: storage.Page{Limit: 2}})

	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "t3", txs[0].ID)
	assert.Equal(t, "t2", txs[1].ID)
}

func TestMemoryStats(t *testing.T) {
	store := storage.NewMemoryStore()
	seedListing(t, store)
	ctx := context.Background()
	require.NoError(t, store.CreateDeposit(ctx, &models.Deposit{ID: "d1", UserID: "buyer", Status: models.ReviewPending}))

	stats, err := store.Stats(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, stats.Users)
	assert.Equal(t, 1, stats.NFTsByStatus[models.NFTStatusApproved])
	assert.Equal(t, 1, stats.PendingDeposits)
	assert.Equal(t, 1, stats.PendingReviews())
}
