package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind classifies a ledger entry.
type TransactionKind string

const (
	KindNFTPurchase TransactionKind = "nft-purchase"
	KindNFTSale     TransactionKind = "nft-sale"
	KindDeposit     TransactionKind = "deposit"
	KindWithdrawal  TransactionKind = "withdrawal"
)

// Valid reports whether k is a known kind.
func (k TransactionKind) Valid() bool {
	switch k {
	case KindNFTPurchase, KindNFTSale, KindDeposit, KindWithdrawal:
		return true
	}
	return false
}

type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionPending   TransactionStatus = "pending"
	TransactionDeclined  TransactionStatus = "declined"
)

// Transaction is an append-only ledger entry. Amount is signed: debits are
// negative, credits positive.
type Transaction struct {
	ID        string              `json:"id" db:"id"`
	UserID    string              `json:"user_id" db:"user_id"`
	Amount    decimal.Decimal     `json:"amount" db:"amount"`
	Currency  Currency            `json:"currency" db:"currency"`
	Kind      TransactionKind     `json:"kind" db:"kind"`
	Status    TransactionStatus   `json:"status" db:"status"`
	Note      string              `json:"note" db:"note"`
	Metadata  TransactionMetadata `json:"metadata" db:"metadata"`
	CreatedAt time.Time           `json:"created_at" db:"created_at"`
}

// TransactionMetadata carries the cross-references of a ledger entry.
// The two entries of a settlement point at the same listing and at each
// other's account and entry.
type TransactionMetadata struct {
	ListingID         string           `json:"listing_id,omitempty"`
	ListingName       string           `json:"listing_name,omitempty"`
	CounterpartyID    string           `json:"counterparty_id,omitempty"`
	RelatedEntryID    string           `json:"related_entry_id,omitempty"`
	ConversionRate    *decimal.Decimal `json:"conversion_rate,omitempty"`
	BuyerPaidCurrency Currency         `json:"buyer_paid_currency,omitempty"`
	BuyerPaidAmount   *decimal.Decimal `json:"buyer_paid_amount,omitempty"`
	ReferenceID       string           `json:"reference_id,omitempty"`
}

func (m TransactionMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *TransactionMetadata) Scan(src any) error {
	var out TransactionMetadata
	if err := scanJSON(src, &out); err != nil {
		return fmt.Errorf("scan transaction metadata: %w", err)
	}
	*m = out
	return nil
}
