package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/services"
	"github.com/ferreirogomes/nftmarket/storage"
)

func TestMintReviewAndMarketplace(t *testing.T) {
	store := storage.NewMemoryStore()
	seedUser(t, store, "creator", models.RoleUser, nil)
	categories := services.NewCategoryService(store, quietLogger())
	catalog := services.NewCatalogService(store, quietLogger(), 3)
	ctx := context.Background()

	art, err := categories.Create(ctx, "Digital Art!", "")
	require.NoError(t, err)
	assert.Equal(t, "digital-art", art.Slug)

	n, err := catalog.Mint(ctx, "creator", services.MintInput{Name: "Sunset", CategoryID: art.ID, FloorPrice: dec("1.25")})
	require.NoError(t, err)
	assert.Equal(t, models.NFTStatusPending, n.Status)
	assert.False(t, n.IsActive)
	assert.Equal(t, "creator", n.CreatorID)

	market, err := catalog.Marketplace(ctx, "", storage.Page{})
	require.NoError(t, err)
	assert.Empty(t, market)

	reviewed, err := catalog.Review(ctx, "admin", n.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.NFTStatusApproved, reviewed.Status)
	assert.True(t, reviewed.IsActive)

	market, err = catalog.Marketplace(ctx, art.ID, storage.Page{})
	require.NoError(t, err)
	require.Len(t, market, 1)
	assert.Equal(t, n.ID, market[0].ID)

	_, err = catalog.Review(ctx, "admin", n.ID, false)
	assert.ErrorIs(t, err, services.ErrInvalidState)
}

func TestMintValidation(t *testing.T) {
	store := storage.NewMemoryStore()
	seedUser(t, store, "creator", models.RoleUser, nil)
	catalog := services.NewCatalogService(store, quietLogger(), 3)
	ctx := context.Background()

	_, err := catalog.Mint(ctx, "creator", services.MintInput{Name: "x", CategoryID: "none", FloorPrice: dec("1")})
	assert.ErrorIs(t, err, services.ErrNotFound)
	_, err = catalog.Mint(ctx, "creator", services.MintInput{Name: "x", CategoryID: "none", FloorPrice: dec("0")})
	assert.ErrorIs(t, err, services.ErrValidation)
	_, err = catalog.Mint(ctx, "creator", services.MintInput{Name: " ", FloorPrice: dec("1")})
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestDeclinedCanBeApprovedLater(t *testing.T) {
	store := storage.NewMemoryStore()
	seedUser(t, store, "owner", models.RoleUser, nil)
	seedNFT(t, store, "n1", "owner", "1", models.NFTStatusPending, false)
	catalog := services.NewCatalogService(store, quietLogger(), 3)
	ctx := context.Background()

	n, err := catalog.Review(ctx, "admin", "n1", false)
	require.NoError(t, err)
	assert.Equal(t, models.NFTStatusDeclined, n.Status)

	n, err = catalog.Review(ctx, "admin", "n1", true)
	require.NoError(t, err)
	assert.Equal(t, models.NFTStatusApproved, n.Status)
}

func TestRelistRules(t *testing.T) {
	store := storage.NewMemoryStore()
	seedUser(t, store, "owner", models.RoleUser, nil)
	seedUser(t, store, "other", models.RoleUser, nil)
	seedNFT(t, store, "approved", "owner", "1", models.NFTStatusApproved, false)
	seedNFT(t, store, "pending", "owner", "1", models.NFTStatusPending, false)
	catalog := services.NewCatalogService(store, quietLogger(), 3)
	ctx := context.Background()

	_, err := catalog.Relist(ctx, "other", "approved", nil, true)
	assert.ErrorIs(t, err, services.ErrForbidden)

	_, err = catalog.Relist(ctx, "owner", "pending", nil, true)
	assert.ErrorIs(t, err, services.ErrInvalidState)

	bad := dec("-1")
	_, err = catalog.Relist(ctx, "owner", "approved", &bad, true)
	assert.ErrorIs(t, err, services.ErrValidation)

	price := dec("3")
	n, err := catalog.Relist(ctx, "owner", "approved", &price, true)
	require.NoError(t, err)
	assert.True(t, n.IsActive)
	assert.True(t, n.FloorPrice.Equal(dec("3")))

	n, err = catalog.SetActive(ctx, "approved", false)
	require.NoError(t, err)
	assert.False(t, n.IsActive)

	_, err = catalog.SetActive(ctx, "pending", true)
	assert.ErrorIs(t, err, services.ErrInvalidState)

	pending, err := catalog.ListByStatus(ctx, models.NFTStatusPending, storage.Page{})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	owned, err := catalog.ListOwned(ctx, "owner", storage.Page{})
	require.NoError(t, err)
	assert.Len(t, owned, 2)
}

func TestCategoryDeleteRefusedWhileInUse(t *testing.T) {
	store := storage.NewMemoryStore()
	seedUser(t, store, "owner", models.RoleUser, nil)
	categories := services.NewCategoryService(store, quietLogger())
	ctx := context.Background()

	art, err := categories.Create(ctx, "Art", "")
	require.NoError(t, err)
	_, err = categories.Create(ctx, "art", "")
	assert.ErrorIs(t, err, services.ErrConflict)

	n := seedNFT(t, store, "n1", "owner", "1", models.NFTStatusPending, false)
	n.CategoryID = art.ID
	require.NoError(t, store.UpdateNFT(ctx, n))

	assert.ErrorIs(t, categories.Delete(ctx, art.ID), services.ErrConflict)

	music, err := categories.Create(ctx, "Music", "")
	require.NoError(t, err)
	require.NoError(t, categories.Delete(ctx, music.ID))
	assert.ErrorIs(t, categories.Delete(ctx, music.ID), services.ErrNotFound)

	list, err := categories.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Art", list[0].Name)
}

func TestPricesBeyondStoredScaleAreRejected(t *testing.T) {
	store := storage.NewMemoryStore()
	seedUser(t, store, "owner", models.RoleUser, nil)
	seedNFT(t, store, "n1", "owner", "1", models.NFTStatusApproved, true)
	catalog := services.NewCatalogService(store, quietLogger(), 3)
	categories := services.NewCategoryService(store, quietLogger())
	ctx := context.Background()

	art, err := categories.Create(ctx, "Art", "")
	require.NoError(t, err)

	tooPrecise := dec("0.1234567890123456789")
	_, err = catalog.Mint(ctx, "owner", services.MintInput{Name: "x", CategoryID: art.ID, FloorPrice: tooPrecise})
	assert.ErrorIs(t, err, services.ErrValidation)

	_, err = catalog.Relist(ctx, "owner", "n1", &tooPrecise, true)
	assert.ErrorIs(t, err, services.ErrValidation)

	fine := dec("0.123456789012345678")
	n, err := catalog.Relist(ctx, "owner", "n1", &fine, true)
	require.NoError(t, err)
	assert.True(t, n.FloorPrice.Equal(fine))
}

func TestCatalogUpdatesRetryConflicts(t *testing.T) {
	store := storage.NewMemoryStore()
	seedUser(t, store, "owner", models.RoleUser, nil)
	seedNFT(t, store, "n1", "owner", "1", models.NFTStatusPending, false)
	catalog := services.NewCatalogService(store, quietLogger(), 3)
	ctx := context.Background()

	store.InjectFault("UpdateNFT", storage.ErrConflict, 2)
	n, err := catalog.Review(ctx, "admin", "n1", true)
	require.NoError(t, err)
	assert.Equal(t, models.NFTStatusApproved, n.Status)

	store.InjectFault("UpdateNFT", storage.ErrConflict, 0)
	_, err = catalog.SetActive(ctx, "n1", false)
	assert.ErrorIs(t, err, services.ErrUnavailable)

	store.ClearFaults()
	stored, err := store.GetNFT(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
}
