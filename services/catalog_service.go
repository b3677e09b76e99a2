package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/storage"
)

// MintInput describes a new NFT submitted for review.
type MintInput struct {
	Name        string
	Description string
	ImageURL    string
	CategoryID  string
	FloorPrice  decimal.Decimal
}

// CatalogService manages NFTs outside of settlement: minting, listing
// visibility and moderation.
type CatalogService struct {
	store storage.Store
	log   logrus.FieldLogger
	retry retryPolicy
}

func NewCatalogService(store storage.Store, log logrus.FieldLogger, retryAttempts int) *CatalogService {
	return &CatalogService{
		store: store,
		log:   log.WithField("component", "catalog"),
		retry: newRetryPolicy(retryAttempts),
	}
}

// update locks one NFT, lets apply change it and writes it back, rerunning
// the transaction when it loses a serialization race.
func (s *CatalogService) update(ctx context.Context, id string, apply func(n *models.NFT) error) (models.NFT, error) {
	var updated models.NFT
	err := s.retry.run(ctx, s.log, func() error {
		return s.store.WithTx(ctx, func(tx storage.Queries) error {
			n, err := tx.GetNFTForUpdate(ctx, id)
			if err != nil {
				return fromStorage(err, "nft "+id)
			}
			if err := apply(&n); err != nil {
				return err
			}
			n.UpdatedAt = now()
			if err := tx.UpdateNFT(ctx, n); err != nil {
				return fromStorage(err, "update nft")
			}
			updated = n
			return nil
		})
	})
	if err != nil {
		return models.NFT{}, err
	}
	return updated, nil
}

func checkPrice(p decimal.Decimal) error {
	if !p.IsPositive() {
		return validationf("floor price must be positive")
	}
	if !models.FitsScale(p) {
		return validationf("floor price has more than 18 decimal places")
	}
	return nil
}

// Mint creates a pending, inactive NFT owned by its creator.
func (s *CatalogService) Mint(ctx context.Context, ownerID string, in MintInput) (models.NFT, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.NFT{}, validationf("name is required")
	}
	if err := checkPrice(in.FloorPrice); err != nil {
		return models.NFT{}, err
	}
	if _, err := s.store.GetUser(ctx, ownerID); err != nil {
		return models.NFT{}, fromStorage(err, "owner "+ownerID)
	}
	if _, err := s.store.GetCategory(ctx, in.CategoryID); err != nil {
		return models.NFT{}, fromStorage(err, "category "+in.CategoryID)
	}

	at := now()
	n := models.NFT{
		ID:          newID(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		ImageURL:    strings.TrimSpace(in.ImageURL),
		OwnerID:     ownerID,
		CreatorID:   ownerID,
		CategoryID:  in.CategoryID,
		FloorPrice:  in.FloorPrice,
		Status:      models.NFTStatusPending,
		IsActive:    false,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	if err := s.store.CreateNFT(ctx, &n); err != nil {
		return models.NFT{}, fromStorage(err, "create nft")
	}

	s.log.WithFields(logrus.Fields{"nft_id": n.ID, "owner_id": ownerID}).Info("nft minted")
	return n, nil
}

// Marketplace lists purchasable NFTs, optionally within one category.
func (s *CatalogService) Marketplace(ctx context.Context, categoryID string, page storage.Page) ([]models.NFT, error) {
	nfts, err := s.store.ListNFTs(ctx, storage.NFTFilter{
		Status:     models.NFTStatusApproved,
		ActiveOnly: true,
		CategoryID: categoryID,
		Page:       page,
	})
	return nfts, fromStorage(err, "list marketplace")
}

func (s *CatalogService) Get(ctx context.Context, id string) (models.NFT, error) {
	n, err := s.store.GetNFT(ctx, id)
	return n, fromStorage(err, "nft "+id)
}

func (s *CatalogService) ListOwned(ctx context.Context, ownerID string, page storage.Page) ([]models.NFT, error) {
	nfts, err := s.store.ListNFTs(ctx, storage.NFTFilter{OwnerID: ownerID, Page: page})
	return nfts, fromStorage(err, "list owned nfts")
}

// Relist lets an owner put an approved NFT on or off the market and
// optionally reprice it.
func (s *CatalogService) Relist(ctx context.Context, ownerID, id string, price *decimal.Decimal, active bool) (models.NFT, error) {
	if price != nil {
		if err := checkPrice(*price); err != nil {
			return models.NFT{}, err
		}
	}

	updated, err := s.update(ctx, id, func(n *models.NFT) error {
		if n.OwnerID != ownerID {
			return fmt.Errorf("%w: nft %s belongs to another user", ErrForbidden, id)
		}
		if active && n.Status != models.NFTStatusApproved {
			return fmt.Errorf("%w: nft %s is %s", ErrInvalidState, id, n.Status)
		}
		if price != nil {
			n.FloorPrice = *price
		}
		n.IsActive = active
		return nil
	})
	if err != nil {
		return models.NFT{}, err
	}

	s.log.WithFields(logrus.Fields{"nft_id": id, "active": active}).Info("listing updated")
	return updated, nil
}

// Review approves or declines a submission. Approval also lists it.
// Declined NFTs may be approved on a later review.
func (s *CatalogService) Review(ctx context.Context, adminID, id string, approve bool) (models.NFT, error) {
	reviewed, err := s.update(ctx, id, func(n *models.NFT) error {
		switch {
		case approve && (n.Status == models.NFTStatusPending || n.Status == models.NFTStatusDeclined):
			n.Status = models.NFTStatusApproved
			n.IsActive = true
		case !approve && n.Status == models.NFTStatusPending:
			n.Status = models.NFTStatusDeclined
			n.IsActive = false
		default:
			return fmt.Errorf("%w: nft %s is already %s", ErrInvalidState, id, n.Status)
		}
		return nil
	})
	if err != nil {
		return models.NFT{}, err
	}

	s.log.WithFields(logrus.Fields{"nft_id": id, "admin_id": adminID, "status": reviewed.Status}).Info("nft reviewed")
	return reviewed, nil
}

// SetActive is the admin override for listing visibility.
func (s *CatalogService) SetActive(ctx context.Context, id string, active bool) (models.NFT, error) {
	return s.update(ctx, id, func(n *models.NFT) error {
		if active && n.Status != models.NFTStatusApproved {
			return fmt.Errorf("%w: nft %s is %s", ErrInvalidState, id, n.Status)
		}
		n.IsActive = active
		return nil
	})
}

func (s *CatalogService) ListByStatus(ctx context.Context, status models.NFTStatus, page storage.Page) ([]models.NFT, error) {
	if status != "" && !status.Valid() {
		return nil, validationf("unknown status %q", status)
	}
	nfts, err := s.store.ListNFTs(ctx, storage.NFTFilter{Status: status, Page: page})
	return nfts, fromStorage(err, "list nfts")
}
