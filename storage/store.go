package storage

import (
	"context"

	"github.com/ferreirogomes/nftmarket/models"
)

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// Normalize clamps the page into sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type UserFilter struct {
	Role models.Role
	Page Page
}

type NFTFilter struct {
	Status     models.NFTStatus
	ActiveOnly bool
	OwnerID    string
	CategoryID string
	Page       Page
}

type TransactionFilter struct {
	UserID string
	Kind   models.TransactionKind
	Page   Page
}

// ReviewFilter selects deposits or withdrawals.
type ReviewFilter struct {
	UserID string
	Status models.ReviewStatus
	Page   Page
}

// Queries is the persistence surface used by the services. The same
// surface is available inside a transaction.
type Queries interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (models.User, error)
	// GetUserForUpdate reads a user and, inside a transaction, locks it
	// until commit.
	GetUserForUpdate(ctx context.Context, id string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	ListUsers(ctx context.Context, f UserFilter) ([]models.User, error)
	UpdateUser(ctx context.Context, u models.User) error
	UpdateUserBalances(ctx context.Context, id string, balances models.CurrencyAmounts) error

	CreateNFT(ctx context.Context, n *models.NFT) error
	GetNFT(ctx context.Context, id string) (models.NFT, error)
	GetNFTForUpdate(ctx context.Context, id string) (models.NFT, error)
	ListNFTs(ctx context.Context, f NFTFilter) ([]models.NFT, error)
	UpdateNFT(ctx context.Context, n models.NFT) error
	// TransferNFT moves ownership from `from` to `to` and takes the listing
	// off the market, but only while the listing is still owned by `from`
	// and purchasable. Otherwise it returns ErrConflict.
	TransferNFT(ctx context.Context, id, from, to string) error

	CreateCategory(ctx context.Context, c *models.Category) error
	GetCategory(ctx context.Context, id string) (models.Category, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	UpdateCategory(ctx context.Context, c models.Category) error
	DeleteCategory(ctx context.Context, id string) error
	CategoryInUse(ctx context.Context, id string) (bool, error)

	CreateTransaction(ctx context.Context, t *models.Transaction) error
	ListTransactions(ctx context.Context, f TransactionFilter) ([]models.Transaction, error)

	CreateDeposit(ctx context.Context, d *models.Deposit) error
	GetDepositForUpdate(ctx context.Context, id string) (models.Deposit, error)
	UpdateDeposit(ctx context.Context, d models.Deposit) error
	ListDeposits(ctx context.Context, f ReviewFilter) ([]models.Deposit, error)

	CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error
	GetWithdrawalForUpdate(ctx context.Context, id string) (models.Withdrawal, error)
	UpdateWithdrawal(ctx context.Context, w models.Withdrawal) error
	ListWithdrawals(ctx context.Context, f ReviewFilter) ([]models.Withdrawal, error)

	GetSettings(ctx context.Context) (models.Settings, error)
	SaveSettings(ctx context.Context, s models.Settings) error

	// Subscribe reports whether a new subscription was created.
	Subscribe(ctx context.Context, s *models.NewsletterSubscription) (bool, error)
	Unsubscribe(ctx context.Context, email string) error
	ListSubscriptions(ctx context.Context) ([]models.NewsletterSubscription, error)

	Stats(ctx context.Context) (models.MarketStats, error)
}

// Store is a Queries handle that can also open transactions.
type Store interface {
	Queries
	// WithTx runs fn in a serializable transaction. The transaction is
	// committed when fn returns nil and rolled back otherwise.
	WithTx(ctx context.Context, fn func(tx Queries) error) error
	Ping(ctx context.Context) error
	Close() error
}
