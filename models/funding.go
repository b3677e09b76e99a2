package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReviewStatus is the admin review state of a deposit or withdrawal request.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewDeclined ReviewStatus = "declined"
)

// Valid reports whether s is a known review status.
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewPending, ReviewApproved, ReviewDeclined:
		return true
	}
	return false
}

// Deposit is a user's claim that funds were sent to a platform deposit
// address. Balances only move once an admin approves it.
type Deposit struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Currency    Currency        `json:"currency" db:"currency"`
	TxReference string          `json:"tx_reference" db:"tx_reference"`
	Status      ReviewStatus    `json:"status" db:"status"`
	ReviewedBy  string          `json:"reviewed_by,omitempty" db:"reviewed_by"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Withdrawal is a request to pay custodial funds out to Destination.
type Withdrawal struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Currency    Currency        `json:"currency" db:"currency"`
	Destination string          `json:"destination" db:"destination"`
	Status      ReviewStatus    `json:"status" db:"status"`
	ReviewedBy  string          `json:"reviewed_by,omitempty" db:"reviewed_by"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}
