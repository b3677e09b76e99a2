package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ferreirogomes/nftmarket/models"
)

const userColumns = `id, name, email, password_hash, role, balances, wallet_address, created_at, updated_at`

func (q queries) CreateUser(ctx context.Context, u *models.User) error {
	_, err := sqlx.NamedExecContext(ctx, q.ext, `
		INSERT INTO users (id, name, email, password_hash, role, balances, wallet_address, created_at, updated_at)
		VALUES (:id, :name, :email, :password_hash, :role, :balances, :wallet_address, :created_at, :updated_at)
	`, u)
	if err != nil {
		return fmt.Errorf("insert user: %w", translate(err))
	}
	return nil
}

func (q queries) GetUser(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := sqlx.GetContext(ctx, q.ext, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return u, translate(err)
}

func (q queries) GetUserForUpdate(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := sqlx.GetContext(ctx, q.ext, &u, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
	return u, translate(err)
}

func (q queries) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := sqlx.GetContext(ctx, q.ext, &u, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return u, translate(err)
}

func (q queries) ListUsers(ctx context.Context, f UserFilter) ([]models.User, error) {
	var w where
	if f.Role != "" {
		w.add("role = $%d", f.Role)
	}
	query := `SELECT ` + userColumns + ` FROM users` + w.String() + ` ORDER BY created_at DESC` + w.paginate(f.Page)

	users := []models.User{}
	if err := sqlx.SelectContext(ctx, q.ext, &users, query, w.args...); err != nil {
		return nil, fmt.Errorf("list users: %w", translate(err))
	}
	return users, nil
}

func (q queries) UpdateUser(ctx context.Context, u models.User) error {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE users SET name = $2, role = $3, wallet_address = $4, updated_at = $5
		WHERE id = $1
	`, u.ID, u.Name, u.Role, u.WalletAddress, u.UpdatedAt)
	return mustAffect(res, err)
}

func (q queries) UpdateUserBalances(ctx context.Context, id string, balances models.CurrencyAmounts) error {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE users SET balances = $2, updated_at = NOW() WHERE id = $1
	`, id, balances)
	return mustAffect(res, err)
}
