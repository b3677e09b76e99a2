package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/notifications"
	"github.com/ferreirogomes/nftmarket/services"
	"github.com/ferreirogomes/nftmarket/storage"
)

func newSettlement(store storage.Store, n services.Notifier) *services.SettlementService {
	return services.NewSettlementService(store, n, quietLogger(), 3)
}

func TestPurchasePaysInConvertedCurrency(t *testing.T) {
	store := storage.NewMemoryStore()
	seedUser(t, store, "buyer", models.RoleUser, models.CurrencyAmounts{models.CurrencyETH: dec("3")})
	seedUser(t, store, "seller", models.RoleUser, nil)
	seedNFT(t, store, "n1", "seller", "2", models.NFTStatusApproved, true)

	notifier := new(MockNotifier)
	notifier.On("Notify", mock.MatchedBy(func(m notifications.Message) bool {
		return m.Kind == notifications.KindNFTPurchased && m.To.Email == "buyer@example.com"
	})).Return(nil).Once()
	notifier.On("Notify", mock.MatchedBy(func(m notifications.Message) bool {
		return m.Kind == notifications.KindNFTSold && m.To.Email == "seller@example.com"
	})).Return(nil).Once()

	res, err := newSettlement(store, notifier).Purchase(context.Background(), "buyer", "n1", models.CurrencyETH)

	require.NoError(t, err)
	assert.Equal(t, "seller", res.SellerID)
	assert.True(t, res.AmountPaid.Equal(dec("2")))
	assert.True(t, res.SellerCredited.Equal(dec("2")))
	assert.True(t, res.ConversionRate.Equal(dec("1")))
	assert.Equal(t, models.CurrencyETH, res.CurrencyPaid)
	assert.Equal(t, models.BaseCurrency, res.BaseCurrency)

	assert.True(t, balanceOf(t, store, "buyer", models.CurrencyETH).Equal(dec("1")))
	assert.True(t, balanceOf(t, store, "seller", models.CurrencyWETH).Equal(dec("2")))

	n, err := store.GetNFT(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, "buyer", n.OwnerID)
	assert.False(t, n.IsActive, "a sold listing leaves the market")

	notifier.AssertExpectations(t)
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	store := storage.NewMemoryStore()
	seedUser(t, store, "buyer", models.RoleUser, models.CurrencyAmounts{models.CurrencyETH: dec("1")})
	seedUser(t, store, "seller", models.RoleUser, nil)
	seedNFT(t, store, "n1", "seller", "2", models.NFTStatusApproved, true)
	notifier := new(MockNotifier)

	_, err := newSettlement(store, notifier).Purchase(context.Background(), "buyer", "n1", models.CurrencyETH)

	require.ErrorIs(t, err, services.ErrInsufficientFunds)
	var insufficient *services.InsufficientFundsError
	require.True(t, errors.As(err, &insufficient))
	assert.True(t, insufficient.Required.Equal(dec("2")))
	assert.True(t, insufficient.Available.Equal(dec("1")))
	assert.Equal(t, models.CurrencyETH, insufficient.Currency)

	assert.True(t, balanceOf(t, store, "buyer", models.CurrencyETH).Equal(dec("1")))
	assert.Empty(t, allTransactions(t, store))
	notifier.AssertNotCalled(t, "Notify", mock.Anything)
}

func TestPurchaseRejections(t *testing.T) {
	cases := []struct {
		name     string
		buyer    string
		listing  string
		currency models.Currency
		want     error
	}{
		{"pending listing", "buyer", "pending", models.CurrencyETH, services.ErrInvalidState},
		{"inactive listing", "buyer", "inactive", models.CurrencyETH, services.ErrInvalidState},
		{"declined listing", "buyer", "declined", models.CurrencyETH, services.ErrInvalidState},
		{"own listing", "seller", "live", models.CurrencyETH, services.ErrSelfPurchase},
		{"unknown currency", "buyer", "live", "DOGE", services.ErrUnsupportedCurrency},
		{"missing listing", "buyer", "ghost", models.CurrencyETH, services.ErrNotFound},
		{"missing buyer", "ghost", "live", models.CurrencyETH, services.ErrNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			seedUser(t, store, "buyer", models.RoleUser, models.CurrencyAmounts{models.CurrencyETH: dec("10")})
			seedUser(t, store, "seller", models.RoleUser, models.CurrencyAmounts{models.CurrencyETH: dec("10")})
			seedNFT(t, store, "live", "seller", "2", models.NFTStatusApproved, true)
			seedNFT(t, store, "pending", "seller", "2", models.NFTStatusPending, false)
			seedNFT(t, store, "inactive", "seller", "2", models.NFTStatusApproved, false)
			seedNFT(t, store, "declined", "seller", "2", models.NFTStatusDeclined, true)

			_, err := newSettlement(store, new(MockNotifier)).Purchase(context.Background(), tc.buyer, tc.listing, tc.currency)

			assert.ErrorIs(t, err, tc.want)
			assert.True(t, balanceOf(t, store, "buyer", models.CurrencyETH).Equal(dec("10")))
			assert.True(t, balanceOf(t, store, "seller", models.CurrencyETH).Equal(dec("10")))
			assert.Empty(t, allTransactions(t, store))
		})
	}
}

func TestPurchaseZeroRateIsUnsupported(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.SaveSettings(context.Background(), models.Settings{
		ExchangeRates: models.RateTable{models.RateKey(models.CurrencyETH, models.CurrencyWETH): dec("0")},
	}))
	seedUser(t, store, "buyer", models.RoleUser, models.CurrencyAmounts{models.CurrencyETH: dec("10")})
	seedUser(t, store, "seller", models.RoleUser, nil)
	seedNFT(t, store, "n1", "seller", "2", models.NFTStatusApproved, true)

	_, err := newSettlement(store, new(MockNotifier)).Purchase(context.Background(), "buyer", "n1", models.CurrencyETH)

	assert.ErrorIs(t, err, services.ErrUnsupportedCurrency)
}

func TestPurchaseUsesInvertedRate(t *testing.T) {
	store := storage.NewMemoryStore()
	// one ETH is worth two WETH, so a 2 WETH listing costs 1 ETH
	require.NoError(t, store.SaveSettings(context.Background(), models.Settings{
		ExchangeRates: models.RateTable{models.RateKey(models.CurrencyETH, models.CurrencyWETH): dec("2")},
	}))
	seedUser(t, store, "buyer", models.RoleUser, models.CurrencyAmounts{models.CurrencyETH: dec("1")})
	seedUser(t, store, "seller", models.RoleUser, nil)
	seedNFT(t, store, "n1", "seller", "2", models.NFTStatusApproved, true)

	res, err := newSettlement(store, permissiveNotifier()).Purchase(context.Background(), "buyer", "n1", models.CurrencyETH)

	require.NoError(t, err)
	assert.True(t, res.AmountPaid.Equal(dec("1")))
	assert.True(t, res.ConversionRate.Equal(dec("0.5")))
	assert.True(t, balanceOf(t, store, "buyer", models.CurrencyETH).IsZero())
	assert.True(t, balanceOf(t, store, "seller", models.CurrencyWETH).Equal(dec("2")))
}

func TestPurchaseWritesPairedLedgerEntries(t *testing.T) {
	store := storage.NewMemoryStore()
	seedUser(t, store, "buyer", models.RoleUser, models.CurrencyAmounts{models.CurrencyETH: dec("5")})
	seedUser(t, store, "seller", models.RoleUser, nil)
	seedNFT(t, store, "n1", "seller", "2", models.NFTStatusApproved, true)

	res, err := newSettlement(store, permissiveNotifier()).Purchase(context.Background(), "buyer", "n1", models.CurrencyETH)
	require.NoError(t, err)

	txs := allTransactions(t, store)
	require.Len(t, txs, 2)
	byID := map[string]models.Transaction{txs[0].ID: txs[0], txs[1].ID: txs[1]}

	purchase, ok := byID[res.PurchaseEntryID]
	require.True(t, ok)
	sale, ok := byID[res.SaleEntryID]
	require.True(t, ok)

	assert.Equal(t, models.KindNFTPurchase, purchase.Kind)
	assert.Equal(t, "buyer", purchase.UserID)
	assert.True(t, purchase.Amount.Equal(dec("-2")))
	assert.Equal(t, models.CurrencyETH, purchase.Currency)
	assert.Equal(t, "seller", purchase.Metadata.CounterpartyID)
	assert.Equal(t, sale.ID, purchase.Metadata.RelatedEntryID)
	require.NotNil(t, purchase.Metadata.ConversionRate)

	assert.Equal(t, models.KindNFTSale, sale.Kind)
	assert.Equal(t, "seller", sale.UserID)
	assert.True(t, sale.Amount.Equal(dec("2")))
	assert.Equal(t, models.BaseCurrency, sale.Currency)
	assert.Equal(t, "buyer", sale.Metadata.CounterpartyID)
	assert.Equal(t, purchase.ID, sale.Metadata.RelatedEntryID)
	assert.Equal(t, models.CurrencyETH, sale.Metadata.BuyerPaidCurrency)
	require.NotNil(t, sale.Metadata.BuyerPaidAmount)
	assert.True(t, sale.Metadata.BuyerPaidAmount.Equal(dec("2")))

	assert.Equal(t, "n1", purchase.Metadata.ListingID)
	assert.Equal(t, "n1", sale.Metadata.ListingID)
}

func TestPurchaseIsAtomicWhenAWriteFails(t *testing.T) {
	boom := errors.New("disk on fire")
	for _, op := range []string{"UpdateUserBalances", "TransferNFT", "CreateTransaction"} {
		t.Run(op, func(t *testing.T) {
			store := storage.NewMemoryStore()
			seedUser(t, store, "buyer", models.RoleUser, models.CurrencyAmounts{models.CurrencyETH: dec("3")})
			seedUser(t, store, "seller", models.RoleUser, nil)
			seedNFT(t, store, "n1", "seller", "2", models.NFTStatusApproved, true)
			store.InjectFault(op, boom, 0)
			notifier := new(MockNotifier)

			_, err := newSettlement(store, notifier).Purchase(context.Background(), "buyer", "n1", models.CurrencyETH)

			require.ErrorIs(t, err, boom)
			store.ClearFaults()
			assert.True(t, balanceOf(t, store, "buyer", models.CurrencyETH).Equal(dec("3")))
			assert.True(t, balanceOf(t, store, "seller", models.CurrencyWETH).IsZero())
			n, err := store.GetNFT(context.Background(), "n1")
			require.NoError(t, err)
			assert.Equal(t, "seller", n.OwnerID)
			assert.True(t, n.IsActive)
			assert.Empty(t, allTransactions(t, store))
			notifier.AssertNotCalled(t, "Notify", mock.Anything)
		})
	}
}

func TestPurchaseRetriesConflicts(t *testing.T) {
	store := storage.NewMemoryStore()
	seedUser(t, store, "buyer", models.RoleUser, models.CurrencyAmounts{models.CurrencyETH: dec("3")})
	seedUser(t, store, "seller", models.RoleUser, nil)
	seedNFT(t, store, "n1", "seller", "2", models.NFTStatusApproved, true)
	store.InjectFault("Commit", storage.ErrConflict, 2)

	_, err := newSettlement(store, permissiveNotifier()).Purchase(context.Background(), "buyer", "n1", models.CurrencyETH)

	require.NoError(t, err)
	assert.Len(t, allTransactions(t, store), 2)
	assert.True(t, balanceOf(t, store, "buyer", models.CurrencyETH).Equal(dec("1")))
}

func TestPurchaseGivesUpAfterRepeatedConflicts(t *testing.T) {
	store := storage.NewMemoryStore()
	seedUser(t, store, "buyer", models.RoleUser, models.CurrencyAmounts{models.CurrencyETH: dec("3")})
	seedUser(t, store, "seller", models.RoleUser, nil)
	seedNFT(t, store, "n1", "seller", "2", models.NFTStatusApproved, true)
	store.InjectFault("Commit", storage.ErrConflict, 0)

	_, err := newSettlement(store, new(MockNotifier)).Purchase(context.Background(), "buyer", "n1", models.CurrencyETH)

	assert.ErrorIs(t, err, services.ErrUnavailable)
	store.ClearFaults()
	assert.Empty(t, allTransactions(t, store))
}

func TestPurchaseNotificationFailureDoesNotFailPurchase(t *testing.T) {
	store := storage.NewMemoryStore()
	seedUser(t, store, "buyer", models.RoleUser, models.CurrencyAmounts{models.CurrencyWETH: dec("2")})
	seedUser(t, store, "seller", models.RoleUser, nil)
	seedNFT(t, store, "n1", "seller", "2", models.NFTStatusApproved, true)
	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything).Return(notifications.ErrQueueFull).Twice()

	_, err := newSettlement(store, notifier).Purchase(context.Background(), "buyer", "n1", models.CurrencyWETH)

	require.NoError(t, err)
	notifier.AssertExpectations(t)
}

func TestConcurrentPurchasesSellOnce(t *testing.T) {
	store := storage.NewMemoryStore()
	const buyers = 12
	for i := 0; i < buyers; i++ {
		seedUser(t, store, fmt.Sprintf("buyer-%02d", i), models.RoleUser, models.CurrencyAmounts{models.CurrencyWETH: dec("5")})
	}
	seedUser(t, store, "seller", models.RoleUser, nil)
	seedNFT(t, store, "n1", "seller", "2", models.NFTStatusApproved, true)
	svc := newSettlement(store, permissiveNotifier())

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []string
		rejection []error
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.Purchase(context.Background(), id, "n1", models.CurrencyWETH)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, id)
				return
			}
			rejection = append(rejection, err)
		}(fmt.Sprintf("buyer-%02d", i))
	}
	wg.Wait()

	require.Len(t, winners, 1)
	for _, err := range rejection {
		assert.ErrorIs(t, err, services.ErrInvalidState)
	}

	n, err := store.GetNFT(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, winners[0], n.OwnerID)
	assert.Len(t, allTransactions(t, store), 2)

	// WETH is conserved across all accounts
	total := dec("0")
	users, err := store.ListUsers(context.Background(), storage.UserFilter{})
	require.NoError(t, err)
	for _, u := range users {
		total = total.Add(u.Balances.Get(models.CurrencyWETH))
	}
	assert.True(t, total.Equal(dec("60")), total.String())
	assert.True(t, balanceOf(t, store, "seller", models.CurrencyWETH).Equal(dec("2")))
	assert.True(t, balanceOf(t, store, winners[0], models.CurrencyWETH).Equal(dec("3")))
}

func TestResaleByNewOwnerAfterRelist(t *testing.T) {
	store := storage.NewMemoryStore()
	seedUser(t, store, "alice", models.RoleUser, models.CurrencyAmounts{models.CurrencyWETH: dec("10")})
	seedUser(t, store, "bob", models.RoleUser, models.CurrencyAmounts{models.CurrencyWETH: dec("10")})
	seedNFT(t, store, "n1", "alice", "4", models.NFTStatusApproved, true)
	settle := newSettlement(store, permissiveNotifier())
	catalog := services.NewCatalogService(store, quietLogger(), 3)
	ctx := context.Background()

	_, err := settle.Purchase(ctx, "bob", "n1", models.CurrencyWETH)
	require.NoError(t, err)

	_, err = settle.Purchase(ctx, "alice", "n1", models.CurrencyWETH)
	require.ErrorIs(t, err, services.ErrInvalidState)

	price := dec("6")
	_, err = catalog.Relist(ctx, "bob", "n1", &price, true)
	require.NoError(t, err)

	_, err = settle.Purchase(ctx, "alice", "n1", models.CurrencyWETH)
	require.NoError(t, err)

	assert.True(t, balanceOf(t, store, "alice", models.CurrencyWETH).Equal(dec("8")))
	assert.True(t, balanceOf(t, store, "bob", models.CurrencyWETH).Equal(dec("12")))
}

func TestPurchaseChargesAmountRoundedToStoredScale(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.SaveSettings(context.Background(), models.Settings{
		ExchangeRates: models.RateTable{models.RateKey(models.CurrencyWETH, models.CurrencyETH): dec("1.5")},
	}))
	seedUser(t, store, "buyer", models.RoleUser, models.CurrencyAmounts{models.CurrencyETH: dec("10")})
	seedUser(t, store, "seller", models.RoleUser, nil)
	seedNFT(t, store, "n1", "seller", "0.123456789012345671", models.NFTStatusApproved, true)

	res, err := newSettlement(store, permissiveNotifier()).Purchase(context.Background(), "buyer", "n1", models.CurrencyETH)

	require.NoError(t, err)
	assert.Equal(t, "0.185185183518518507", res.AmountPaid.String())
	assert.GreaterOrEqual(t, res.AmountPaid.Exponent(), int32(-18))
	assert.Equal(t, "9.814814816481481493", balanceOf(t, store, "buyer", models.CurrencyETH).String())

	var debit models.Transaction
	for _, tx := range allTransactions(t, store) {
		if tx.UserID == "buyer" {
			debit = tx
		}
	}
	assert.True(t, debit.Amount.Equal(res.AmountPaid.Neg()), debit.Amount.String())
	assert.True(t, balanceOf(t, store, "seller", models.CurrencyWETH).Equal(dec("0.123456789012345671")))
}

func TestConcurrentPurchasesCannotOverdraw(t *testing.T) {
	store := storage.NewMemoryStore()
	seedUser(t, store, "buyer", models.RoleUser, models.CurrencyAmounts{models.CurrencyWETH: dec("3")})
	const listings = 6
	for i := 0; i < listings; i++ {
		seller := fmt.Sprintf("seller-%02d", i)
		seedUser(t, store, seller, models.RoleUser, nil)
		seedNFT(t, store, fmt.Sprintf("n%02d", i), seller, "2", models.NFTStatusApproved, true)
	}
	svc := newSettlement(store, permissiveNotifier())

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		bought    []string
		rejection []error
	)
	for i := 0; i < listings; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.Purchase(context.Background(), "buyer", id, models.CurrencyWETH)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				bought = append(bought, id)
				return
			}
			rejection = append(rejection, err)
		}(fmt.Sprintf("n%02d", i))
	}
	wg.Wait()

	require.Len(t, bought, 1)
	require.Len(t, rejection, listings-1)
	for _, err := range rejection {
		assert.ErrorIs(t, err, services.ErrInsufficientFunds)
	}
	assert.True(t, balanceOf(t, store, "buyer", models.CurrencyWETH).Equal(dec("1")))
	assert.Len(t, allTransactions(t, store), 2)
}
