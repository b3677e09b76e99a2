package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/notifications"
	"github.com/ferreirogomes/nftmarket/storage"
)

// FundingService handles deposit and withdrawal requests. Balances move
// only when an admin approves a request; approval re-validates inside the
// same transaction that moves the funds.
type FundingService struct {
	store    storage.Store
	notifier Notifier
	log      logrus.FieldLogger
	retry    retryPolicy
}

func NewFundingService(store storage.Store, notifier Notifier, log logrus.FieldLogger, retryAttempts int) *FundingService {
	return &FundingService{
		store:    store,
		notifier: notifier,
		log:      log.WithField("component", "funding"),
		retry:    newRetryPolicy(retryAttempts),
	}
}

func (s *FundingService) supported(ctx context.Context, currency models.Currency) (models.Settings, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return models.Settings{}, fromStorage(err, "load settings")
	}
	if !settings.Supports(currency) {
		return models.Settings{}, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, currency)
	}
	return settings, nil
}

func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return validationf("amount must be positive")
	}
	if !models.FitsScale(amount) {
		return validationf("amount has more than 18 decimal places")
	}
	return nil
}

// RequestDeposit records a user's claim that funds were sent.
func (s *FundingService) RequestDeposit(ctx context.Context, userID string, amount decimal.Decimal, currency models.Currency, txReference string) (models.Deposit, error) {
	if err := checkAmount(amount); err != nil {
		return models.Deposit{}, err
	}
	if _, err := s.supported(ctx, currency); err != nil {
		return models.Deposit{}, err
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return models.Deposit{}, fromStorage(err, "user "+userID)
	}

	at := now()
	d := models.Deposit{
		ID:          newID(),
		UserID:      userID,
		Amount:      amount,
		Currency:    currency,
		TxReference: strings.TrimSpace(txReference),
		Status:      models.ReviewPending,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	if err := s.store.CreateDeposit(ctx, &d); err != nil {
		return models.Deposit{}, fromStorage(err, "create deposit")
	}
	s.log.WithFields(logrus.Fields{"deposit_id": d.ID, "user_id": userID}).Info("deposit requested")
	return d, nil
}

// ReviewDeposit approves or declines a pending deposit. Approval credits
// the balance and writes a deposit ledger entry.
func (s *FundingService) ReviewDeposit(ctx context.Context, adminID, id string, approve bool) (models.Deposit, error) {
	var (
		reviewed models.Deposit
		owner    models.User
	)
	err := s.retry.run(ctx, s.log, func() error {
		return s.store.WithTx(ctx, func(tx storage.Queries) error {
			d, err := tx.GetDepositForUpdate(ctx, id)
			if err != nil {
				return fromStorage(err, "deposit "+id)
			}
			if d.Status != models.ReviewPending {
				return fmt.Errorf("%w: deposit %s is %s", ErrInvalidState, id, d.Status)
			}
			users, err := lockUsers(ctx, tx, d.UserID)
			if err != nil {
				return err
			}
			owner = users[d.UserID]

			d.Status = models.ReviewDeclined
			if approve {
				d.Status = models.ReviewApproved
				owner.Balances = owner.Balances.Add(d.Currency, d.Amount)
				if err := tx.UpdateUserBalances(ctx, owner.ID, owner.Balances); err != nil {
					return fromStorage(err, "credit deposit")
				}
				entry := models.Transaction{
					ID:        newID(),
					UserID:    owner.ID,
					Amount:    d.Amount,
					Currency:  d.Currency,
					Kind:      models.KindDeposit,
					Status:    models.TransactionCompleted,
					Note:      "Deposit " + d.TxReference,
					Metadata:  models.TransactionMetadata{ReferenceID: d.ID},
					CreatedAt: now(),
				}
				if err := tx.CreateTransaction(ctx, &entry); err != nil {
					return fromStorage(err, "record deposit entry")
				}
			}
			d.ReviewedBy = adminID
			d.UpdatedAt = now()
			if err := tx.UpdateDeposit(ctx, d); err != nil {
				return fromStorage(err, "update deposit")
			}
			reviewed = d
			return nil
		})
	})
	if err != nil {
		return models.Deposit{}, err
	}

	s.log.WithFields(logrus.Fields{"deposit_id": id, "admin_id": adminID, "status": reviewed.Status}).Info("deposit reviewed")
	kind := notifications.KindDepositDeclined
	if approve {
		kind = notifications.KindDepositApproved
	}
	notify(ctx, s.notifier, s.log, notifications.Message{
		Kind: kind,
		To:   recipient(owner),
		Data: map[string]string{"amount": reviewed.Amount.String(), "currency": reviewed.Currency.String()},
	})
	return reviewed, nil
}

// RequestWithdrawal records a payout request. The balance is checked now
// and again on approval; nothing is reserved in between.
func (s *FundingService) RequestWithdrawal(ctx context.Context, userID string, amount decimal.Decimal, currency models.Currency, destination string) (models.Withdrawal, error) {
	if err := checkAmount(amount); err != nil {
		return models.Withdrawal{}, err
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return models.Withdrawal{}, validationf("destination is required")
	}
	settings, err := s.supported(ctx, currency)
	if err != nil {
		return models.Withdrawal{}, err
	}
	if minimum := settings.WithdrawalMinimum(currency); amount.LessThan(minimum) {
		return models.Withdrawal{}, fmt.Errorf("%w: minimum withdrawal is %s %s", ErrBelowMinimum, minimum, currency)
	}

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return models.Withdrawal{}, fromStorage(err, "user "+userID)
	}
	if available := u.Balances.Get(currency); available.LessThan(amount) {
		return models.Withdrawal{}, &InsufficientFundsError{Required: amount, Available: available, Currency: currency}
	}

	at := now()
	w := models.Withdrawal{
		ID:          newID(),
		UserID:      userID,
		Amount:      amount,
		Currency:    currency,
		Destination: destination,
		Status:      models.ReviewPending,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	if err := s.store.CreateWithdrawal(ctx, &w); err != nil {
		return models.Withdrawal{}, fromStorage(err, "create withdrawal")
	}
	s.log.WithFields(logrus.Fields{"withdrawal_id": w.ID, "user_id": userID}).Info("withdrawal requested")
	return w, nil
}

// ReviewWithdrawal approves or declines a pending withdrawal. Approval
// debits the balance, which must still cover the amount.
func (s *FundingService) ReviewWithdrawal(ctx context.Context, adminID, id string, approve bool) (models.Withdrawal, error) {
	var (
		reviewed models.Withdrawal
		owner    models.User
	)
	err := s.retry.run(ctx, s.log, func() error {
		return s.store.WithTx(ctx, func(tx storage.Queries) error {
			w, err := tx.GetWithdrawalForUpdate(ctx, id)
			if err != nil {
				return fromStorage(err, "withdrawal "+id)
			}
			if w.Status != models.ReviewPending {
				return fmt.Errorf("%w: withdrawal %s is %s", ErrInvalidState, id, w.Status)
			}
			users, err := lockUsers(ctx, tx, w.UserID)
			if err != nil {
				return err
			}
			owner = users[w.UserID]

			w.Status = models.ReviewDeclined
			if approve {
				available := owner.Balances.Get(w.Currency)
				if available.LessThan(w.Amount) {
					return &InsufficientFundsError{Required: w.Amount, Available: available, Currency: w.Currency}
				}
				w.Status = models.ReviewApproved
				owner.Balances = owner.Balances.Add(w.Currency, w.Amount.Neg())
				if err := tx.UpdateUserBalances(ctx, owner.ID, owner.Balances); err != nil {
					return fromStorage(err, "debit withdrawal")
				}
				entry := models.Transaction{
					ID:        newID(),
					UserID:    owner.ID,
					Amount:    w.Amount.Neg(),
					Currency:  w.Currency,
					Kind:      models.KindWithdrawal,
					Status:    models.TransactionCompleted,
					Note:      "Withdrawal to " + w.Destination,
					Metadata:  models.TransactionMetadata{ReferenceID: w.ID},
					CreatedAt: now(),
				}
				if err := tx.CreateTransaction(ctx, &entry); err != nil {
					return fromStorage(err, "record withdrawal entry")
				}
			}
			w.ReviewedBy = adminID
			w.UpdatedAt = now()
			if err := tx.UpdateWithdrawal(ctx, w); err != nil {
				return fromStorage(err, "update withdrawal")
			}
			reviewed = w
			return nil
		})
	})
	if err != nil {
		return models.Withdrawal{}, err
	}

	s.log.WithFields(logrus.Fields{"withdrawal_id": id, "admin_id": adminID, "status": reviewed.Status}).Info("withdrawal reviewed")
	kind := notifications.KindWithdrawalDeclined
	if approve {
		kind = notifications.KindWithdrawalApproved
	}
	notify(ctx, s.notifier, s.log, notifications.Message{
		Kind: kind,
		To:   recipient(owner),
		Data: map[string]string{
			"amount":      reviewed.Amount.String(),
			"currency":    reviewed.Currency.String(),
			"destination": reviewed.Destination,
		},
	})
	return reviewed, nil
}

func (s *FundingService) ListDeposits(ctx context.Context, f storage.ReviewFilter) ([]models.Deposit, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, validationf("unknown status %q", f.Status)
	}
	deposits, err := s.store.ListDeposits(ctx, f)
	return deposits, fromStorage(err, "list deposits")
}

func (s *FundingService) ListWithdrawals(ctx context.Context, f storage.ReviewFilter) ([]models.Withdrawal, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, validationf("unknown status %q", f.Status)
	}
	withdrawals, err := s.store.ListWithdrawals(ctx, f)
	return withdrawals, fromStorage(err, "list withdrawals")
}
