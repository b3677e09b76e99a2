package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ferreirogomes/nftmarket/models"
)

func (q queries) CreateCategory(ctx context.Context, c *models.Category) error {
	_, err := sqlx.NamedExecContext(ctx, q.ext, `
		INSERT INTO categories (id, name, slug, description, created_at)
		VALUES (:id, :name, :slug, :description, :created_at)
	`, c)
	if err != nil {
		return fmt.Errorf("insert category: %w", translate(err))
	}
	return nil
}

func (q queries) GetCategory(ctx context.Context, id string) (models.Category, error) {
	var c models.Category
	err := sqlx.GetContext(ctx, q.ext, &c, `
		SELECT id, name, slug, description, created_at FROM categories WHERE id = $1
	`, id)
	return c, translate(err)
}

func (q queries) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	err := sqlx.SelectContext(ctx, q.ext, &categories, `
		SELECT id, name, slug, description, created_at FROM categories ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", translate(err))
	}
	return categories, nil
}

func (q queries) UpdateCategory(ctx context.Context, c models.Category) error {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE categories SET name = $2, slug = $3, description = $4 WHERE id = $1
	`, c.ID, c.Name, c.Slug, c.Description)
	return mustAffect(res, err)
}

func (q queries) DeleteCategory(ctx context.Context, id string) error {
	res, err := q.ext.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	return mustAffect(res, err)
}

func (q queries) CategoryInUse(ctx context.Context, id string) (bool, error) {
	var inUse bool
	err := sqlx.GetContext(ctx, q.ext, &inUse, `SELECT EXISTS (SELECT 1 FROM nfts WHERE category_id = $1)`, id)
	if err != nil {
		return false, fmt.Errorf("check category usage: %w", translate(err))
	}
	return inUse, nil
}

func (q queries) GetSettings(ctx context.Context) (models.Settings, error) {
	var s models.Settings
	err := sqlx.GetContext(ctx, q.ext, &s, `
		SELECT exchange_rates, withdrawal_minimums, deposit_addresses, updated_at
		FROM settings WHERE id = 1
	`)
	if err != nil {
		if translate(err) == ErrNotFound {
			return models.DefaultSettings(), nil
		}
		return models.Settings{}, fmt.Errorf("get settings: %w", translate(err))
	}
	return s, nil
}

func (q queries) SaveSettings(ctx context.Context, s models.Settings) error {
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO settings (id, exchange_rates, withdrawal_minimums, deposit_addresses, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			exchange_rates = EXCLUDED.exchange_rates,
			withdrawal_minimums = EXCLUDED.withdrawal_minimums,
			deposit_addresses = EXCLUDED.deposit_addresses,
			updated_at = EXCLUDED.updated_at
	`, s.ExchangeRates, s.WithdrawalMinimums, s.DepositAddresses, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save settings: %w", translate(err))
	}
	return nil
}

func (q queries) Subscribe(ctx context.Context, s *models.NewsletterSubscription) (bool, error) {
	res, err := q.ext.ExecContext(ctx, `
		INSERT INTO newsletter_subscriptions (id, email, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO NOTHING
	`, s.ID, s.Email, s.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("subscribe: %w", translate(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (q queries) Unsubscribe(ctx context.Context, email string) error {
	res, err := q.ext.ExecContext(ctx, `DELETE FROM newsletter_subscriptions WHERE email = $1`, email)
	return mustAffect(res, err)
}

func (q queries) ListSubscriptions(ctx context.Context) ([]models.NewsletterSubscription, error) {
	subs := []models.NewsletterSubscription{}
	err := sqlx.SelectContext(ctx, q.ext, &subs, `
		SELECT id, email, created_at FROM newsletter_subscriptions ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", translate(err))
	}
	return subs, nil
}

func (q queries) Stats(ctx context.Context) (models.MarketStats, error) {
	var counts struct {
		Users              int `db:"users"`
		PendingDeposits    int `db:"pending_deposits"`
		PendingWithdrawals int `db:"pending_withdrawals"`
	}
	err := sqlx.GetContext(ctx, q.ext, &counts, `
		SELECT
			(SELECT COUNT(*) FROM users) AS users,
			(SELECT COUNT(*) FROM deposits WHERE status = 'pending') AS pending_deposits,
			(SELECT COUNT(*) FROM withdrawals WHERE status = 'pending') AS pending_withdrawals
	`)
	if err != nil {
		return models.MarketStats{}, fmt.Errorf("count queues: %w", translate(err))
	}

	var rows []struct {
		Status models.NFTStatus `db:"status"`
		Count  int              `db:"count"`
	}
	if err := sqlx.SelectContext(ctx, q.ext, &rows, `SELECT status, COUNT(*) AS count FROM nfts GROUP BY status`); err != nil {
		return models.MarketStats{}, fmt.Errorf("count nfts: %w", translate(err))
	}

	stats := models.MarketStats{
		Users:              counts.Users,
		NFTsByStatus:       map[models.NFTStatus]int{},
		PendingDeposits:    counts.PendingDeposits,
		PendingWithdrawals: counts.PendingWithdrawals,
	}
	for _, r := range rows {
		stats.NFTsByStatus[r.Status] = r.Count
	}
	return stats, nil
}
