package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ferreirogomes/nftmarket/models"
)

const nftColumns = `id, name, description, image_url, owner_id, creator_id, category_id, floor_price, status, is_active, created_at, updated_at`

func (q queries) CreateNFT(ctx context.Context, n *models.NFT) error {
	_, err := sqlx.NamedExecContext(ctx, q.ext, `
		INSERT INTO nfts (id, name, description, image_url, owner_id, creator_id, category_id, floor_price, status, is_active, created_at, updated_at)
		VALUES (:id, :name, :description, :image_url, :owner_id, :creator_id, :category_id, :floor_price, :status, :is_active, :created_at, :updated_at)
	`, n)
	if err != nil {
		return fmt.Errorf("insert nft: %w", translate(err))
	}
	return nil
}

func (q queries) GetNFT(ctx context.Context, id string) (models.NFT, error) {
	var n models.NFT
	err := sqlx.GetContext(ctx, q.ext, &n, `SELECT `+nftColumns+` FROM nfts WHERE id = $1`, id)
	return n, translate(err)
}

func (q queries) GetNFTForUpdate(ctx context.Context, id string) (models.NFT, error) {
	var n models.NFT
	err := sqlx.GetContext(ctx, q.ext, &n, `SELECT `+nftColumns+` FROM nfts WHERE id = $1 FOR UPDATE`, id)
	return n, translate(err)
}

func (q queries) ListNFTs(ctx context.Context, f NFTFilter) ([]models.NFT, error) {
	var w where
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}
	if f.ActiveOnly {
		w.add("is_active = $%d", true)
	}
	if f.OwnerID != "" {
		w.add("owner_id = $%d", f.OwnerID)
	}
	if f.CategoryID != "" {
		w.add("category_id = $%d", f.CategoryID)
	}
	query := `SELECT ` + nftColumns + ` FROM nfts` + w.String() + ` ORDER BY created_at DESC` + w.paginate(f.Page)

	nfts := []models.NFT{}
	if err := sqlx.SelectContext(ctx, q.ext, &nfts, query, w.args...); err != nil {
		return nil, fmt.Errorf("list nfts: %w", translate(err))
	}
	return nfts, nil
}

func (q queries) UpdateNFT(ctx context.Context, n models.NFT) error {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE nfts
		SET name = $2, description = $3, image_url = $4, category_id = $5,
		    floor_price = $6, status = $7, is_active = $8, updated_at = $9
		WHERE id = $1
	`, n.ID, n.Name, n.Description, n.ImageURL, n.CategoryID, n.FloorPrice, n.Status, n.IsActive, n.UpdatedAt)
	return mustAffect(res, err)
}

func (q queries) TransferNFT(ctx context.Context, id, from, to string) error {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE nfts SET owner_id = $3, is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND status = 'approved' AND is_active
	`, id, from, to)
	if err := mustAffect(res, err); err != nil {
		if err == ErrNotFound {
			return fmt.Errorf("%w: listing %s changed hands", ErrConflict, id)
		}
		return err
	}
	return nil
}
