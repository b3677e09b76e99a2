package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ferreirogomes/nftmarket/auth"
	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/notifications"
	"github.com/ferreirogomes/nftmarket/services"
	"github.com/ferreirogomes/nftmarket/storage"
)

func newAccounts(t *testing.T, store storage.Store, n services.Notifier) (*services.AccountService, *auth.Issuer) {
	t.Helper()
	issuer, err := auth.NewIssuer("test-secret", "nftmarket", time.Hour)
	require.NoError(t, err)
	return services.NewAccountService(store, issuer, n, bcrypt.MinCost, quietLogger()), issuer
}

func TestRegisterAndLogin(t *testing.T) {
	store := storage.NewMemoryStore()
	notifier := new(MockNotifier)
	notifier.On("Notify", mock.MatchedBy(func(m notifications.Message) bool {
		return m.Kind == notifications.KindWelcome
	})).Return(nil).Once()
	svc, issuer := newAccounts(t, store, notifier)
	ctx := context.Background()

	u, err := svc.Register(ctx, "Ana", " Ana@Example.com ", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.Empty(t, u.Balances)

	session, err := svc.Login(ctx, "ana@example.com", "correct-horse")
	require.NoError(t, err)
	claims, err := issuer.Verify(session.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)

	_, err = svc.Login(ctx, "ana@example.com", "wrong-horse")
	assert.ErrorIs(t, err, services.ErrUnauthorized)
	_, err = svc.Login(ctx, "nobody@example.com", "correct-horse")
	assert.ErrorIs(t, err, services.ErrUnauthorized)

	notifier.AssertExpectations(t)
}

func TestRegisterRejects(t *testing.T) {
	store := storage.NewMemoryStore()
	svc, _ := newAccounts(t, store, permissiveNotifier())
	ctx := context.Background()

	_, err := svc.Register(ctx, "Ana", "ana@example.com", "correct-horse")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "Other", "ANA@example.com", "correct-horse")
	assert.ErrorIs(t, err, services.ErrConflict)
	_, err = svc.Register(ctx, "Bob", "not-an-email", "correct-horse")
	assert.ErrorIs(t, err, services.ErrValidation)
	_, err = svc.Register(ctx, "Bob", "bob@example.com", "short")
	assert.ErrorIs(t, err, services.ErrValidation)
	_, err = svc.Register(ctx, " ", "bob@example.com", "correct-horse")
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestUpdateProfileAndRoles(t *testing.T) {
	store := storage.NewMemoryStore()
	seedUser(t, store, "admin", models.RoleAdmin, nil)
	seedUser(t, store, "u1", models.RoleUser, nil)
	svc, _ := newAccounts(t, store, permissiveNotifier())
	ctx := context.Background()

	wallet := "0xwallet"
	u, err := svc.UpdateProfile(ctx, "u1", services.ProfileUpdate{WalletAddress: &wallet})
	require.NoError(t, err)
	assert.Equal(t, "0xwallet", u.WalletAddress)
	assert.Equal(t, "u1", u.Name)

	u, err = svc.SetRole(ctx, "admin", "u1", models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)

	_, err = svc.SetRole(ctx, "admin", "admin", models.RoleUser)
	assert.ErrorIs(t, err, services.ErrInvalidState)
	_, err = svc.SetRole(ctx, "admin", "u1", "root")
	assert.ErrorIs(t, err, services.ErrValidation)

	admins, err := svc.ListUsers(ctx, models.RoleAdmin, storage.Page{})
	require.NoError(t, err)
	assert.Len(t, admins, 2)
}

func TestEnsureAdmin(t *testing.T) {
	store := storage.NewMemoryStore()
	svc, _ := newAccounts(t, store, permissiveNotifier())
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, "", "root@example.com", "bootstrap-pass"))
	require.NoError(t, svc.EnsureAdmin(ctx, "", "root@example.com", "bootstrap-pass"))

	u, err := store.GetUserByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	assert.True(t, u.IsAdmin())

	admins, err := store.ListUsers(ctx, storage.UserFilter{Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, admins, 1)

	assert.NoError(t, svc.EnsureAdmin(ctx, "", "", ""))
}
