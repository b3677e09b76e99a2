package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/notifications"
	"github.com/ferreirogomes/nftmarket/storage"
)

// MockNotifier is a testify mock of services.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, msg notifications.Message) error {
	args := m.Called(msg)
	return args.Error(0)
}

func permissiveNotifier() *MockNotifier {
	n := new(MockNotifier)
	n.On("Notify", mock.Anything).Return(nil).Maybe()
	return n
}

func quietLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedUser(t *testing.T, store storage.Store, id string, role models.Role, balances models.CurrencyAmounts) models.User {
	t.Helper()
	if balances == nil {
		balances = models.CurrencyAmounts{}
	}
	u := models.User{
		ID:        id,
		Name:      id,
		Email:     id + "@example.com",
		Role:      role,
		Balances:  balances,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateUser(context.Background(), &u))
	return u
}

func seedNFT(t *testing.T, store storage.Store, id, ownerID, price string, status models.NFTStatus, active bool) models.NFT {
	t.Helper()
	n := models.NFT{
		ID:         id,
		Name:       "NFT " + id,
		OwnerID:    ownerID,
		CreatorID:  ownerID,
		CategoryID: "art",
		FloorPrice: dec(price),
		Status:     status,
		IsActive:   active,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.CreateNFT(context.Background(), &n))
	return n
}

func balanceOf(t *testing.T, store storage.Store, userID string, c models.Currency) decimal.Decimal {
	t.Helper()
	u, err := store.GetUser(context.Background(), userID)
	require.NoError(t, err)
	return u.Balances.Get(c)
}

func allTransactions(t *testing.T, store storage.Store) []models.Transaction {
	t.Helper()
	txs, err := store.ListTransactions(context.Background(), storage.TransactionFilter{Page: storage.Page{Limit: 200}})
	require.NoError(t, err)
	return txs
}
