package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ferreirogomes/nftmarket/metrics"
	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/notifications"
	"github.com/ferreirogomes/nftmarket/storage"
)

// SettlementResult describes a completed purchase.
type SettlementResult struct {
	BuyerID         string          `json:"buyer_id"`
	SellerID        string          `json:"seller_id"`
	ListingID       string          `json:"listing_id"`
	ListingName     string          `json:"listing_name"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	CurrencyPaid    models.Currency `json:"currency_paid"`
	SellerCredited  decimal.Decimal `json:"seller_credited"`
	BaseCurrency    models.Currency `json:"base_currency"`
	ConversionRate  decimal.Decimal `json:"conversion_rate"`
	PurchaseEntryID string          `json:"purchase_entry_id"`
	SaleEntryID     string          `json:"sale_entry_id"`
}

// SettlementService executes marketplace purchases. A purchase debits the
// buyer, credits the seller, moves ownership and writes the paired ledger
// entries in one transaction, or does none of it.
type SettlementService struct {
	store    storage.Store
	notifier Notifier
	log      logrus.FieldLogger
	retry    retryPolicy
}

func NewSettlementService(store storage.Store, notifier Notifier, log logrus.FieldLogger, retryAttempts int) *SettlementService {
	return &SettlementService{
		store:    store,
		notifier: notifier,
		log:      log.WithField("component", "settlement"),
		retry:    newRetryPolicy(retryAttempts),
	}
}

// settlement is what a committed purchase hands to the notification step.
type settlement struct {
	result SettlementResult
	buyer  models.User
	seller models.User
}

// Purchase buys listingID for buyerID, paying in currency.
func (s *SettlementService) Purchase(ctx context.Context, buyerID, listingID string, currency models.Currency) (SettlementResult, error) {
	start := time.Now()
	log := s.log.WithFields(logrus.Fields{
		"buyer_id":   buyerID,
		"listing_id": listingID,
		"currency":   currency,
	})

	var done settlement
	err := s.retry.run(ctx, log, func() error {
		return s.store.WithTx(ctx, func(tx storage.Queries) error {
			var err error
			done, err = s.settle(ctx, tx, buyerID, listingID, currency)
			return err
		})
	})
	label := "n/a"
	if err == nil {
		label = currency.String()
	}
	metrics.RecordSettlement(settlementOutcome(err), label, time.Since(start))
	if err != nil {
		log.WithError(err).Info("purchase rejected")
		return SettlementResult{}, err
	}

	r := done.result
	log.WithFields(logrus.Fields{
		"seller_id":   r.SellerID,
		"amount_paid": r.AmountPaid.String(),
		"credited":    r.SellerCredited.String(),
	}).Info("purchase settled")

	notify(ctx, s.notifier, log, notifications.Message{
		Kind: notifications.KindNFTPurchased,
		To:   recipient(done.buyer),
		Data: map[string]string{
			"listing_name": r.ListingName,
			"amount":       r.AmountPaid.String(),
			"currency":     r.CurrencyPaid.String(),
			"entry_id":     r.PurchaseEntryID,
		},
	})
	notify(ctx, s.notifier, log, notifications.Message{
		Kind: notifications.KindNFTSold,
		To:   recipient(done.seller),
		Data: map[string]string{
			"listing_name": r.ListingName,
			"amount":       r.SellerCredited.String(),
			"currency":     r.BaseCurrency.String(),
			"entry_id":     r.SaleEntryID,
		},
	})

	return r, nil
}

func (s *SettlementService) settle(ctx context.Context, tx storage.Queries, buyerID, listingID string, currency models.Currency) (settlement, error) {
	if _, err := tx.GetUser(ctx, buyerID); err != nil {
		return settlement{}, fromStorage(err, "buyer "+buyerID)
	}

	listing, err := tx.GetNFTForUpdate(ctx, listingID)
	if err != nil {
		return settlement{}, fromStorage(err, "listing "+listingID)
	}
	if !listing.Purchasable() {
		return settlement{}, fmt.Errorf("%w: listing %s is %s and active=%t", ErrInvalidState, listing.ID, listing.Status, listing.IsActive)
	}
	if listing.OwnerID == buyerID {
		return settlement{}, ErrSelfPurchase
	}

	settings, err := tx.GetSettings(ctx)
	if err != nil {
		return settlement{}, fromStorage(err, "load settings")
	}
	required, rate, ok := settings.ConvertFromBase(listing.FloorPrice, currency)
	if !ok {
		return settlement{}, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, currency)
	}

	users, err := lockUsers(ctx, tx, buyerID, listing.OwnerID)
	if err != nil {
		return settlement{}, err
	}
	buyer, seller := users[buyerID], users[listing.OwnerID]

	available := buyer.Balances.Get(currency)
	if available.LessThan(required) {
		return settlement{}, &InsufficientFundsError{Required: required, Available: available, Currency: currency}
	}

	buyer.Balances = buyer.Balances.Add(currency, required.Neg())
	seller.Balances = seller.Balances.Add(models.BaseCurrency, listing.FloorPrice)
	if err := tx.UpdateUserBalances(ctx, buyer.ID, buyer.Balances); err != nil {
		return settlement{}, fromStorage(err, "debit buyer")
	}
	if err := tx.UpdateUserBalances(ctx, seller.ID, seller.Balances); err != nil {
		return settlement{}, fromStorage(err, "credit seller")
	}
	if err := tx.TransferNFT(ctx, listing.ID, seller.ID, buyer.ID); err != nil {
		return settlement{}, fromStorage(err, "transfer listing")
	}

	at := now()
	purchaseID, saleID := newID(), newID()
	paid := required
	purchase := models.Transaction{
		ID:       purchaseID,
		UserID:   buyer.ID,
		Amount:   required.Neg(),
		Currency: currency,
		Kind:     models.KindNFTPurchase,
		Status:   models.TransactionCompleted,
		Note:     "Purchased " + listing.Name,
		Metadata: models.TransactionMetadata{
			ListingID:      listing.ID,
			ListingName:    listing.Name,
			CounterpartyID: seller.ID,
			RelatedEntryID: saleID,
			ConversionRate: &rate,
		},
		CreatedAt: at,
	}
	sale := models.Transaction{
		ID:       saleID,
		UserID:   seller.ID,
		Amount:   listing.FloorPrice,
		Currency: models.BaseCurrency,
		Kind:     models.KindNFTSale,
		Status:   models.TransactionCompleted,
		Note:     "Sold " + listing.Name,
		Metadata: models.TransactionMetadata{
			ListingID:         listing.ID,
			ListingName:       listing.Name,
			CounterpartyID:    buyer.ID,
			RelatedEntryID:    purchaseID,
			BuyerPaidCurrency: currency,
			BuyerPaidAmount:   &paid,
		},
		CreatedAt: at,
	}
	if err := tx.CreateTransaction(ctx, &purchase); err != nil {
		return settlement{}, fromStorage(err, "record purchase entry")
	}
	if err := tx.CreateTransaction(ctx, &sale); err != nil {
		return settlement{}, fromStorage(err, "record sale entry")
	}

	return settlement{
		result: SettlementResult{
			BuyerID:         buyer.ID,
			SellerID:        seller.ID,
			ListingID:       listing.ID,
			ListingName:     listing.Name,
			AmountPaid:      required,
			CurrencyPaid:    currency,
			SellerCredited:  listing.FloorPrice,
			BaseCurrency:    models.BaseCurrency,
			ConversionRate:  rate,
			PurchaseEntryID: purchaseID,
			SaleEntryID:     saleID,
		},
		buyer:  buyer,
		seller: seller,
	}, nil
}

func settlementOutcome(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrSelfPurchase):
		return "self_purchase"
	case errors.Is(err, ErrUnsupportedCurrency):
		return "unsupported_currency"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	}
	return "error"
}
