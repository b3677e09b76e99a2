package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ferreirogomes/nftmarket/auth"
	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/notifications"
	"github.com/ferreirogomes/nftmarket/storage"
)

const minPasswordLength = 8

// Session is returned by a successful login.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

// ProfileUpdate carries the fields a user may change on their account.
// Nil fields are left unchanged.
type ProfileUpdate struct {
	Name          *string
	WalletAddress *string
}

type AccountService struct {
	store      storage.Store
	issuer     *auth.Issuer
	notifier   Notifier
	bcryptCost int
	log        logrus.FieldLogger
}

func NewAccountService(store storage.Store, issuer *auth.Issuer, notifier Notifier, bcryptCost int, log logrus.FieldLogger) *AccountService {
	return &AccountService{
		store:      store,
		issuer:     issuer,
		notifier:   notifier,
		bcryptCost: bcryptCost,
		log:        log.WithField("component", "accounts"),
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", validationf("invalid email %q", email)
	}
	return email, nil
}

// Register creates a regular account with empty balances.
func (s *AccountService) Register(ctx context.Context, name, email, password string) (models.User, error) {
	return s.create(ctx, name, email, password, models.RoleUser)
}

func (s *AccountService) create(ctx context.Context, name, email, password string, role models.Role) (models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.User{}, validationf("name is required")
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return models.User{}, err
	}
	if len(password) < minPasswordLength {
		return models.User{}, validationf("password must have at least %d characters", minPasswordLength)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return models.User{}, err
	}

	at := now()
	u := models.User{
		ID:           newID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Balances:     models.CurrencyAmounts{},
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	if err := s.store.CreateUser(ctx, &u); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return models.User{}, fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return models.User{}, fromStorage(err, "create user")
	}

	s.log.WithFields(logrus.Fields{"user_id": u.ID, "role": u.Role}).Info("account created")
	notify(ctx, s.notifier, s.log, notifications.Message{Kind: notifications.KindWelcome, To: recipient(u)})
	return u, nil
}

// Login checks credentials and issues a session token.
func (s *AccountService) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Session{}, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
		}
		return Session{}, fromStorage(err, "load user")
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		s.log.WithField("user_id", u.ID).Warn("failed login")
		return Session{}, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}

	token, expires, err := s.issuer.Issue(u)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expires, User: u}, nil
}

// Me returns the account behind a session, balances included.
func (s *AccountService) Me(ctx context.Context, userID string) (models.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	return u, fromStorage(err, "user "+userID)
}

func (s *AccountService) GetUser(ctx context.Context, userID string) (models.User, error) {
	return s.Me(ctx, userID)
}

func (s *AccountService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (models.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, fromStorage(err, "user "+userID)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return models.User{}, validationf("name must not be empty")
		}
		u.Name = name
	}
	if upd.WalletAddress != nil {
		u.WalletAddress = strings.TrimSpace(*upd.WalletAddress)
	}
	u.UpdatedAt = now()

	if err := s.store.UpdateUser(ctx, u); err != nil {
		return models.User{}, fromStorage(err, "update user")
	}
	return u, nil
}

func (s *AccountService) ListUsers(ctx context.Context, role models.Role, page storage.Page) ([]models.User, error) {
	if role != "" && !role.Valid() {
		return nil, validationf("unknown role %q", role)
	}
	users, err := s.store.ListUsers(ctx, storage.UserFilter{Role: role, Page: page})
	return users, fromStorage(err, "list users")
}

// SetRole changes a user's role. An admin cannot change their own role.
func (s *AccountService) SetRole(ctx context.Context, actorID, userID string, role models.Role) (models.User, error) {
	if !role.Valid() {
		return models.User{}, validationf("unknown role %q", role)
	}
	if actorID == userID {
		return models.User{}, fmt.Errorf("%w: cannot change your own role", ErrInvalidState)
	}

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, fromStorage(err, "user "+userID)
	}
	u.Role = role
	u.UpdatedAt = now()
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return models.User{}, fromStorage(err, "update role")
	}

	s.log.WithFields(logrus.Fields{"actor_id": actorID, "user_id": userID, "role": role}).Info("role changed")
	return u, nil
}

// EnsureAdmin makes sure an admin account exists for email, creating or
// promoting it. An empty email disables the bootstrap.
func (s *AccountService) EnsureAdmin(ctx context.Context, name, email, password string) error {
	if email == "" {
		return nil
	}
	u, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	switch {
	case err == nil:
		if u.IsAdmin() {
			return nil
		}
		u.Role = models.RoleAdmin
		u.UpdatedAt = now()
		if err := s.store.UpdateUser(ctx, u); err != nil {
			return fromStorage(err, "promote admin")
		}
		s.log.WithField("user_id", u.ID).Info("bootstrap admin promoted")
		return nil
	case errors.Is(err, storage.ErrNotFound):
		if name == "" {
			name = "Administrator"
		}
		if _, err := s.create(ctx, name, email, password, models.RoleAdmin); err != nil {
			return fmt.Errorf("create bootstrap admin: %w", err)
		}
		return nil
	default:
		return fromStorage(err, "look up bootstrap admin")
	}
}
