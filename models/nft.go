package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NFTStatus is the moderation state of a listing.
type NFTStatus string

const (
	NFTStatusPending  NFTStatus = "pending"
	NFTStatusApproved NFTStatus = "approved"
	NFTStatusDeclined NFTStatus = "declined"
)

// Valid reports whether s is a known status.
func (s NFTStatus) Valid() bool {
	switch s {
	case NFTStatusPending, NFTStatusApproved, NFTStatusDeclined:
		return true
	}
	return false
}

// NFT is a collectible listed on the marketplace.
// FloorPrice is always denominated in BaseCurrency.
type NFT struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	ImageURL    string          `json:"image_url" db:"image_url"`
	OwnerID     string          `json:"owner_id" db:"owner_id"`
	CreatorID   string          `json:"creator_id" db:"creator_id"`
	CategoryID  string          `json:"category_id" db:"category_id"`
	FloorPrice  decimal.Decimal `json:"floor_price" db:"floor_price"`
	Status      NFTStatus       `json:"status" db:"status"`
	IsActive    bool            `json:"is_active" db:"is_active"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Purchasable reports whether the listing can currently be bought.
func (n NFT) Purchasable() bool {
	return n.Status == NFTStatusApproved && n.IsActive
}
