package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ferreirogomes/nftmarket/models"
)

const (
	transactionColumns = `id, user_id, amount, currency, kind, status, note, metadata, created_at`
	depositColumns     = `id, user_id, amount, currency, tx_reference, status, reviewed_by, created_at, updated_at`
	withdrawalColumns  = `id, user_id, amount, currency, destination, status, reviewed_by, created_at, updated_at`
)

func (q queries) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	_, err := sqlx.NamedExecContext(ctx, q.ext, `
		INSERT INTO transactions (id, user_id, amount, currency, kind, status, note, metadata, created_at)
		VALUES (:id, :user_id, :amount, :currency, :kind, :status, :note, :metadata, :created_at)
	`, t)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", translate(err))
	}
	return nil
}

func (q queries) ListTransactions(ctx context.Context, f TransactionFilter) ([]models.Transaction, error) {
	var w where
	if f.UserID != "" {
		w.add("user_id = $%d", f.UserID)
	}
	if f.Kind != "" {
		w.add("kind = $%d", f.Kind)
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions` + w.String() +
		` ORDER BY created_at DESC, id` + w.paginate(f.Page)

	txs := []models.Transaction{}
	if err := sqlx.SelectContext(ctx, q.ext, &txs, query, w.args...); err != nil {
		return nil, fmt.Errorf("list transactions: %w", translate(err))
	}
	return txs, nil
}

func (q queries) CreateDeposit(ctx context.Context, d *models.Deposit) error {
	_, err := sqlx.NamedExecContext(ctx, q.ext, `
		INSERT INTO deposits (id, user_id, amount, currency, tx_reference, status, reviewed_by, created_at, updated_at)
		VALUES (:id, :user_id, :amount, :currency, :tx_reference, :status, :reviewed_by, :created_at, :updated_at)
	`, d)
	if err != nil {
		return fmt.Errorf("insert deposit: %w", translate(err))
	}
	return nil
}

func (q queries) GetDepositForUpdate(ctx context.Context, id string) (models.Deposit, error) {
	var d models.Deposit
	err := sqlx.GetContext(ctx, q.ext, &d, `SELECT `+depositColumns+` FROM deposits WHERE id = $1 FOR UPDATE`, id)
	return d, translate(err)
}

func (q queries) UpdateDeposit(ctx context.Context, d models.Deposit) error {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE deposits SET status = $2, reviewed_by = $3, updated_at = $4 WHERE id = $1
	`, d.ID, d.Status, d.ReviewedBy, d.UpdatedAt)
	return mustAffect(res, err)
}

func (q queries) ListDeposits(ctx context.Context, f ReviewFilter) ([]models.Deposit, error) {
	var w where
	if f.UserID != "" {
		w.add("user_id = $%d", f.UserID)
	}
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}
	query := `SELECT ` + depositColumns + ` FROM deposits` + w.String() + ` ORDER BY created_at DESC` + w.paginate(f.Page)

	deposits := []models.Deposit{}
	if err := sqlx.SelectContext(ctx, q.ext, &deposits, query, w.args...); err != nil {
		return nil, fmt.Errorf("list deposits: %w", translate(err))
	}
	return deposits, nil
}

func (q queries) CreateWithdrawal(ctx context.Context, wd *models.Withdrawal) error {
	_, err := sqlx.NamedExecContext(ctx, q.ext, `
		INSERT INTO withdrawals (id, user_id, amount, currency, destination, status, reviewed_by, created_at, updated_at)
		VALUES (:id, :user_id, :amount, :currency, :destination, :status, :reviewed_by, :created_at, :updated_at)
	`, wd)
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", translate(err))
	}
	return nil
}

func (q queries) GetWithdrawalForUpdate(ctx context.Context, id string) (models.Withdrawal, error) {
	var wd models.Withdrawal
	err := sqlx.GetContext(ctx, q.ext, &wd, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id)
	return wd, translate(err)
}

func (q queries) UpdateWithdrawal(ctx context.Context, wd models.Withdrawal) error {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE withdrawals SET status = $2, reviewed_by = $3, updated_at = $4 WHERE id = $1
	`, wd.ID, wd.Status, wd.ReviewedBy, wd.UpdatedAt)
	return mustAffect(res, err)
}

func (q queries) ListWithdrawals(ctx context.Context, f ReviewFilter) ([]models.Withdrawal, error) {
	var w where
	if f.UserID != "" {
		w.add("user_id = $%d", f.UserID)
	}
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals` + w.String() + ` ORDER BY created_at DESC` + w.paginate(f.Page)

	withdrawals := []models.Withdrawal{}
	if err := sqlx.SelectContext(ctx, q.ext, &withdrawals, query, w.args...); err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", translate(err))
	}
	return withdrawals, nil
}
