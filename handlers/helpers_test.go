package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/ferreirogomes/nftmarket/auth"
	"github.com/ferreirogomes/nftmarket/handlers"
	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/notifications"
	"github.com/ferreirogomes/nftmarket/services"
	"github.com/ferreirogomes/nftmarket/storage"
)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, notifications.Message) error { return nil }

type testEnv struct {
	store  *storage.MemoryStore
	issuer *auth.Issuer
	router http.Handler
}

func quietLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func newEnv(t *testing.T, limiter *handlers.RateLimiter) *testEnv {
	t.Helper()
	store := storage.NewMemoryStore()
	issuer, err := auth.NewIssuer("test-secret", "nftmarket-test", time.Hour)
	require.NoError(t, err)

	log := quietLogger()
	var n nopNotifier
	svc := handlers.Services{
		Accounts:   services.NewAccountService(store, issuer, n, 4, log),
		Catalog:    services.NewCatalogService(store, log, 3),
		Categories: services.NewCategoryService(store, log),
		Settlement: services.NewSettlementService(store, n, log, 3),
		Funding:    services.NewFundingService(store, n, log, 3),
		Settings:   services.NewSettingsService(store, log),
		Ledger:     services.NewLedgerService(store, log),
		Newsletter: services.NewNewsletterService(store, n, log),
		Admin:      services.NewAdminService(store, n, log),
	}
	router := handlers.NewRouter(handlers.RouterConfig{
		Services: svc,
		Issuer:   issuer,
		Store:    store,
		Limiter:  limiter,
		Log:      log,
	})
	return &testEnv{store: store, issuer: issuer, router: router}
}

func (e *testEnv) seedUser(t *testing.T, id string, role models.Role, balances models.CurrencyAmounts) (models.User, string) {
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
	require.NoError(t, e.store.CreateUser(context.Background(), &u))
	token, _, err := e.issuer.Issue(u)
	require.NoError(t, err)
	return u, token
}

func (e *testEnv) seedNFT(t *testing.T, id, ownerID, price string, status models.NFTStatus, active bool) models.NFT {
	t.Helper()
	n := models.NFT{
		ID:         id,
		Name:       "NFT " + id,
		OwnerID:    ownerID,
		CreatorID:  ownerID,
		FloorPrice: decimal.RequireFromString(price),
		Status:     status,
		IsActive:   active,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, e.store.CreateNFT(context.Background(), &n))
	return n
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}
