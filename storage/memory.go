package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ferreirogomes/nftmarket/models"
)

// MemoryStore is an in-process Store. Transactions are serialised and run
// against a staged copy of the data that replaces the live copy only on
// commit, so a failing transaction leaves nothing behind.
type MemoryStore struct {
	memQueries

	mu    sync.RWMutex // guards state
	txMu  sync.Mutex   // serialises writers
	state *memState

	faultMu sync.Mutex
	faults  map[string]*fault
}

type fault struct {
	err       error
	remaining int
}

type memState struct {
	users         map[string]models.User
	nfts          map[string]models.NFT
	categories    map[string]models.Category
	transactions  []models.Transaction
	deposits      map[string]models.Deposit
	withdrawals   map[string]models.Withdrawal
	settings      models.Settings
	subscriptions map[string]models.NewsletterSubscription
}

// NewMemoryStore returns an empty store seeded with default settings.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		state: &memState{
			users:         map[string]models.User{},
			nfts:          map[string]models.NFT{},
			categories:    map[string]models.Category{},
			deposits:      map[string]models.Deposit{},
			withdrawals:   map[string]models.Withdrawal{},
			settings:      models.DefaultSettings(),
			subscriptions: map[string]models.NewsletterSubscription{},
		},
		faults: map[string]*fault{},
	}
	s.memQueries = memQueries{store: s}
	return s
}

func (st *memState) clone() *memState {
	out := &memState{
		users:         make(map[string]models.User, len(st.users)),
		nfts:          make(map[string]models.NFT, len(st.nfts)),
		categories:    make(map[string]models.Category, len(st.categories)),
		transactions:  append([]models.Transaction(nil), st.transactions...),
		deposits:      make(map[string]models.Deposit, len(st.deposits)),
		withdrawals:   make(map[string]models.Withdrawal, len(st.withdrawals)),
		settings:      cloneSettings(st.settings),
		subscriptions: make(map[string]models.NewsletterSubscription, len(st.subscriptions)),
	}
	for k, v := range st.users {
		v.Balances = v.Balances.Clone()
		out.users[k] = v
	}
	for k, v := range st.nfts {
		out.nfts[k] = v
	}
	for k, v := range st.categories {
		out.categories[k] = v
	}
	for k, v := range st.deposits {
		out.deposits[k] = v
	}
	for k, v := range st.withdrawals {
		out.withdrawals[k] = v
	}
	for k, v := range st.subscriptions {
		out.subscriptions[k] = v
	}
	return out
}

func cloneSettings(s models.Settings) models.Settings {
	out := models.Settings{
		ExchangeRates:      make(models.RateTable, len(s.ExchangeRates)),
		WithdrawalMinimums: s.WithdrawalMinimums.Clone(),
		DepositAddresses:   make(models.AddressBook, len(s.DepositAddresses)),
		UpdatedAt:          s.UpdatedAt,
	}
	for k, v := range s.ExchangeRates {
		out.ExchangeRates[k] = v
	}
	for k, v := range s.DepositAddresses {
		out.DepositAddresses[k] = v
	}
	return out
}

// InjectFault makes the next `times` calls of op fail with err. op is a
// Queries method name, or "Commit" to fail a transaction after its body
// ran. times <= 0 fails every call until ClearFaults.
func (s *MemoryStore) InjectFault(op string, err error, times int) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults[op] = &fault{err: err, remaining: times}
}

// ClearFaults removes every injected fault.
func (s *MemoryStore) ClearFaults() {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults = map[string]*fault{}
}

func (s *MemoryStore) fault(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	f, ok := s.faults[op]
	if !ok {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
		if f.remaining == 0 {
			delete(s.faults, op)
		}
	}
	return f.err
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	staged := s.state.clone()
	s.mu.RUnlock()

	if err := fn(memQueries{store: s, st: staged, tx: true}); err != nil {
		return err
	}
	if err := s.fault("Commit"); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = staged
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() error { return nil }

// memQueries runs against the live state, or against a staged copy when
// tx is set. The staged copy belongs to a single goroutine and the
// writer lock is already held for it.
type memQueries struct {
	store *MemoryStore
	st    *memState
	tx    bool
}

func (q memQueries) read(fn func(st *memState) error) error {
	if q.tx {
		return fn(q.st)
	}
	q.store.mu.RLock()
	defer q.store.mu.RUnlock()
	return fn(q.store.state)
}

func (q memQueries) write(op string, fn func(st *memState) error) error {
	if err := q.store.fault(op); err != nil {
		return err
	}
	if q.tx {
		return fn(q.st)
	}
	q.store.txMu.Lock()
	defer q.store.txMu.Unlock()
	q.store.mu.Lock()
	defer q.store.mu.Unlock()
	return fn(q.store.state)
}

func paginate[T any](items []T, p Page) []T {
	p = p.Normalize()
	if p.Offset >= len(items) {
		return []T{}
	}
	end := p.Offset + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[p.Offset:end]
}

// newestFirst orders by creation time descending, then id.
func newestFirst(a, b time.Time, idA, idB string) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return idA < idB
}

func (q memQueries) CreateUser(ctx context.Context, u *models.User) error {
	return q.write("CreateUser", func(st *memState) error {
		if _, ok := st.users[u.ID]; ok {
			return fmt.Errorf("%w: user %s", ErrDuplicate, u.ID)
		}
		for _, existing := range st.users {
			if strings.EqualFold(existing.Email, u.Email) {
				return fmt.Errorf("%w: email %s", ErrDuplicate, u.Email)
			}
		}
		stored := *u
		stored.Balances = u.Balances.Clone()
		st.users[u.ID] = stored
		return nil
	})
}

func (q memQueries) GetUser(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := q.read(func(st *memState) error {
		found, ok := st.users[id]
		if !ok {
			return ErrNotFound
		}
		u = found
		u.Balances = found.Balances.Clone()
		return nil
	})
	return u, err
}

func (q memQueries) GetUserForUpdate(ctx context.Context, id string) (models.User, error) {
	return q.GetUser(ctx, id)
}

func (q memQueries) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := q.read(func(st *memState) error {
		for _, found := range st.users {
			if strings.EqualFold(found.Email, email) {
				u = found
				u.Balances = found.Balances.Clone()
				return nil
			}
		}
		return ErrNotFound
	})
	return u, err
}

func (q memQueries) ListUsers(ctx context.Context, f UserFilter) ([]models.User, error) {
	var users []models.User
	err := q.read(func(st *memState) error {
		for _, u := range st.users {
			if f.Role != "" && u.Role != f.Role {
				continue
			}
			u.Balances = u.Balances.Clone()
			users = append(users, u)
		}
		return nil
	})
	sort.Slice(users, func(i, j int) bool {
		return newestFirst(users[i].CreatedAt, users[j].CreatedAt, users[i].ID, users[j].ID)
	})
	return paginate(users, f.Page), err
}

func (q memQueries) UpdateUser(ctx context.Context, u models.User) error {
	return q.write("UpdateUser", func(st *memState) error {
		existing, ok := st.users[u.ID]
		if !ok {
			return ErrNotFound
		}
		existing.Name = u.Name
		existing.Role = u.Role
		existing.WalletAddress = u.WalletAddress
		existing.UpdatedAt = u.UpdatedAt
		st.users[u.ID] = existing
		return nil
	})
}

func (q memQueries) UpdateUserBalances(ctx context.Context, id string, balances models.CurrencyAmounts) error {
	return q.write("UpdateUserBalances", func(st *memState) error {
		existing, ok := st.users[id]
		if !ok {
			return ErrNotFound
		}
		existing.Balances = balances.Clone()
		existing.UpdatedAt = time.Now().UTC()
		st.users[id] = existing
		return nil
	})
}

func (q memQueries) CreateNFT(ctx context.Context, n *models.NFT) error {
	return q.write("CreateNFT", func(st *memState) error {
		if _, ok := st.nfts[n.ID]; ok {
			return fmt.Errorf("%w: nft %s", ErrDuplicate, n.ID)
		}
		st.nfts[n.ID] = *n
		return nil
	})
}

func (q memQueries) GetNFT(ctx context.Context, id string) (models.NFT, error) {
	var n models.NFT
	err := q.read(func(st *memState) error {
		found, ok := st.nfts[id]
		if !ok {
			return ErrNotFound
		}
		n = found
		return nil
	})
	return n, err
}

func (q memQueries) GetNFTForUpdate(ctx context.Context, id string) (models.NFT, error) {
	return q.GetNFT(ctx, id)
}

func (q memQueries) ListNFTs(ctx context.Context, f NFTFilter) ([]models.NFT, error) {
	var nfts []models.NFT
	err := q.read(func(st *memState) error {
		for _, n := range st.nfts {
			switch {
			case f.Status != "" && n.Status != f.Status:
			case f.ActiveOnly && !n.IsActive:
			case f.OwnerID != "" && n.OwnerID != f.OwnerID:
			case f.CategoryID != "" && n.CategoryID != f.CategoryID:
			default:
				nfts = append(nfts, n)
			}
		}
		return nil
	})
	sort.Slice(nfts, func(i, j int) bool {
		return newestFirst(nfts[i].CreatedAt, nfts[j].CreatedAt, nfts[i].ID, nfts[j].ID)
	})
	return paginate(nfts, f.Page), err
}

func (q memQueries) UpdateNFT(ctx context.Context, n models.NFT) error {
	return q.write("UpdateNFT", func(st *memState) error {
		existing, ok := st.nfts[n.ID]
		if !ok {
			return ErrNotFound
		}
		existing.Name = n.Name
		existing.Description = n.Description
		existing.ImageURL = n.ImageURL
		existing.CategoryID = n.CategoryID
		existing.FloorPrice = n.FloorPrice
		existing.Status = n.Status
		existing.IsActive = n.IsActive
		existing.UpdatedAt = n.UpdatedAt
		st.nfts[n.ID] = existing
		return nil
	})
}

func (q memQueries) TransferNFT(ctx context.Context, id, from, to string) error {
	return q.write("TransferNFT", func(st *memState) error {
		n, ok := st.nfts[id]
		if !ok || n.OwnerID != from || !n.Purchasable() {
			return fmt.Errorf("%w: listing %s changed hands", ErrConflict, id)
		}
		n.OwnerID = to
		n.IsActive = false
		n.UpdatedAt = time.Now().UTC()
		st.nfts[id] = n
		return nil
	})
}

func (q memQueries) CreateCategory(ctx context.Context, c *models.Category) error {
	return q.write("CreateCategory", func(st *memState) error {
		for _, existing := range st.categories {
			if existing.ID == c.ID || strings.EqualFold(existing.Name, c.Name) || existing.Slug == c.Slug {
				return fmt.Errorf("%w: category %s", ErrDuplicate, c.Name)
			}
		}
		st.categories[c.ID] = *c
		return nil
	})
}

func (q memQueries) GetCategory(ctx context.Context, id string) (models.Category, error) {
	var c models.Category
	err := q.read(func(st *memState) error {
		found, ok := st.categories[id]
		if !ok {
			return ErrNotFound
		}
		c = found
		return nil
	})
	return c, err
}

func (q memQueries) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	err := q.read(func(st *memState) error {
		for _, c := range st.categories {
			categories = append(categories, c)
		}
		return nil
	})
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, err
}

func (q memQueries) UpdateCategory(ctx context.Context, c models.Category) error {
	return q.write("UpdateCategory", func(st *memState) error {
		if _, ok := st.categories[c.ID]; !ok {
			return ErrNotFound
		}
		for _, existing := range st.categories {
			if existing.ID != c.ID && (strings.EqualFold(existing.Name, c.Name) || existing.Slug == c.Slug) {
				return fmt.Errorf("%w: category %s", ErrDuplicate, c.Name)
			}
		}
		st.categories[c.ID] = c
		return nil
	})
}

func (q memQueries) DeleteCategory(ctx context.Context, id string) error {
	return q.write("DeleteCategory", func(st *memState) error {
		if _, ok := st.categories[id]; !ok {
			return ErrNotFound
		}
		delete(st.categories, id)
		return nil
	})
}

func (q memQueries) CategoryInUse(ctx context.Context, id string) (bool, error) {
	var inUse bool
	err := q.read(func(st *memState) error {
		for _, n := range st.nfts {
			if n.CategoryID == id {
				inUse = true
				break
			}
		}
		return nil
	})
	return inUse, err
}

func (q memQueries) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	return q.write("CreateTransaction", func(st *memState) error {
		for _, existing := range st.transactions {
			if existing.ID == t.ID {
				return fmt.Errorf("%w: transaction %s", ErrDuplicate, t.ID)
			}
		}
		st.transactions = append(st.transactions, *t)
		return nil
	})
}

func (q memQueries) ListTransactions(ctx context.Context, f TransactionFilter) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := q.read(func(st *memState) error {
		// newest first: walk the append-only log backwards
		for i := len(st.transactions) - 1; i >= 0; i-- {
			t := st.transactions[i]
			if f.UserID != "" && t.UserID != f.UserID {
				continue
			}
			if f.Kind != "" && t.Kind != f.Kind {
				continue
			}
			txs = append(txs, t)
		}
		return nil
	})
	return paginate(txs, f.Page), err
}

func (q memQueries) CreateDeposit(ctx context.Context, d *models.Deposit) error {
	return q.write("CreateDeposit", func(st *memState) error {
		if _, ok := st.deposits[d.ID]; ok {
			return fmt.Errorf("%w: deposit %s", ErrDuplicate, d.ID)
		}
		st.deposits[d.ID] = *d
		return nil
	})
}

func (q memQueries) GetDepositForUpdate(ctx context.Context, id string) (models.Deposit, error) {
	var d models.Deposit
	err := q.read(func(st *memState) error {
		found, ok := st.deposits[id]
		if !ok {
			return ErrNotFound
		}
		d = found
		return nil
	})
	return d, err
}

func (q memQueries) UpdateDeposit(ctx context.Context, d models.Deposit) error {
	return q.write("UpdateDeposit", func(st *memState) error {
		existing, ok := st.deposits[d.ID]
		if !ok {
			return ErrNotFound
		}
		existing.Status = d.Status
		existing.ReviewedBy = d.ReviewedBy
		existing.UpdatedAt = d.UpdatedAt
		st.deposits[d.ID] = existing
		return nil
	})
}

func (q memQueries) ListDeposits(ctx context.Context, f ReviewFilter) ([]models.Deposit, error) {
	var deposits []models.Deposit
	err := q.read(func(st *memState) error {
		for _, d := range st.deposits {
			if f.UserID != "" && d.UserID != f.UserID {
				continue
			}
			if f.Status != "" && d.Status != f.Status {
				continue
			}
			deposits = append(deposits, d)
		}
		return nil
	})
	sort.Slice(deposits, func(i, j int) bool {
		return newestFirst(deposits[i].CreatedAt, deposits[j].CreatedAt, deposits[i].ID, deposits[j].ID)
	})
	return paginate(deposits, f.Page), err
}

func (q memQueries) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	return q.write("CreateWithdrawal", func(st *memState) error {
		if _, ok := st.withdrawals[w.ID]; ok {
			return fmt.Errorf("%w: withdrawal %s", ErrDuplicate, w.ID)
		}
		st.withdrawals[w.ID] = *w
		return nil
	})
}

func (q memQueries) GetWithdrawalForUpdate(ctx context.Context, id string) (models.Withdrawal, error) {
	var w models.Withdrawal
	err := q.read(func(st *memState) error {
		found, ok := st.withdrawals[id]
		if !ok {
			return ErrNotFound
		}
		w = found
		return nil
	})
	return w, err
}

func (q memQueries) UpdateWithdrawal(ctx context.Context, w models.Withdrawal) error {
	return q.write("UpdateWithdrawal", func(st *memState) error {
		existing, ok := st.withdrawals[w.ID]
		if !ok {
			return ErrNotFound
		}
		existing.Status = w.Status
		existing.ReviewedBy = w.ReviewedBy
		existing.UpdatedAt = w.UpdatedAt
		st.withdrawals[w.ID] = existing
		return nil
	})
}

func (q memQueries) ListWithdrawals(ctx context.Context, f ReviewFilter) ([]models.Withdrawal, error) {
	var withdrawals []models.Withdrawal
	err := q.read(func(st *memState) error {
		for _, w := range st.withdrawals {
			if f.UserID != "" && w.UserID != f.UserID {
				continue
			}
			if f.Status != "" && w.Status != f.Status {
				continue
			}
			withdrawals = append(withdrawals, w)
		}
		return nil
	})
	sort.Slice(withdrawals, func(i, j int) bool {
		return newestFirst(withdrawals[i].CreatedAt, withdrawals[j].CreatedAt, withdrawals[i].ID, withdrawals[j].ID)
	})
	return paginate(withdrawals, f.Page), err
}

func (q memQueries) GetSettings(ctx context.Context) (models.Settings, error) {
	var s models.Settings
	err := q.read(func(st *memState) error {
		s = cloneSettings(st.settings)
		return nil
	})
	return s, err
}

func (q memQueries) SaveSettings(ctx context.Context, s models.Settings) error {
	return q.write("SaveSettings", func(st *memState) error {
		st.settings = cloneSettings(s)
		return nil
	})
}

func (q memQueries) Subscribe(ctx context.Context, s *models.NewsletterSubscription) (bool, error) {
	created := false
	err := q.write("Subscribe", func(st *memState) error {
		key := strings.ToLower(s.Email)
		if _, ok := st.subscriptions[key]; ok {
			return nil
		}
		st.subscriptions[key] = *s
		created = true
		return nil
	})
	return created, err
}

func (q memQueries) Unsubscribe(ctx context.Context, email string) error {
	return q.write("Unsubscribe", func(st *memState) error {
		key := strings.ToLower(email)
		if _, ok := st.subscriptions[key]; !ok {
			return ErrNotFound
		}
		delete(st.subscriptions, key)
		return nil
	})
}

func (q memQueries) ListSubscriptions(ctx context.Context) ([]models.NewsletterSubscription, error) {
	subs := []models.NewsletterSubscription{}
	err := q.read(func(st *memState) error {
		for _, s := range st.subscriptions {
			subs = append(subs, s)
		}
		return nil
	})
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.Before(subs[j].CreatedAt)
		}
		return subs[i].Email < subs[j].Email
	})
	return subs, err
}

func (q memQueries) Stats(ctx context.Context) (models.MarketStats, error) {
	stats := models.MarketStats{NFTsByStatus: map[models.NFTStatus]int{}}
	err := q.read(func(st *memState) error {
		stats.Users = len(st.users)
		for _, n := range st.nfts {
			stats.NFTsByStatus[n.Status]++
		}
		for _, d := range st.deposits {
			if d.Status == models.ReviewPending {
				stats.PendingDeposits++
			}
		}
		for _, w := range st.withdrawals {
			if w.Status == models.ReviewPending {
				stats.PendingWithdrawals++
			}
		}
		return nil
	})
	return stats, err
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
