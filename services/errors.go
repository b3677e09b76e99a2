package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/storage"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrSelfPurchase        = errors.New("cannot purchase your own listing")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrBelowMinimum        = errors.New("amount below minimum")
	ErrValidation          = errors.New("validation failed")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrConflict            = errors.New("conflict")
	// ErrUnavailable is returned when a transaction kept losing
	// serialization races and the retry budget ran out.
	ErrUnavailable = errors.New("temporarily unavailable, retry later")
)

// InsufficientFundsError reports how far short a balance fell.
// errors.Is(err, ErrInsufficientFunds) holds for it.
type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
	Currency  models.Currency
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %s %s, available %s %s",
		e.Required, e.Currency, e.Available, e.Currency)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// fromStorage maps storage sentinels onto service errors. storage.ErrConflict
// is kept in the chain so the retry loop can see it.
func fromStorage(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, storage.ErrDuplicate):
		return fmt.Errorf("%s: %w", what, ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
