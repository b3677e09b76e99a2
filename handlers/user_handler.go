package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/services"
)

// UserHandler serves the caller's own account and the admin user views.
type UserHandler struct {
	accounts *services.AccountService
	catalog  *services.CatalogService
	ledger   *services.LedgerService
}

func NewUserHandler(accounts *services.AccountService, catalog *services.CatalogService, ledger *services.LedgerService) *UserHandler {
	return &UserHandler{accounts: accounts, catalog: catalog, ledger: ledger}
}

type profileRequest struct {
	Name          *string `json:"name" validate:"omitempty,min=1,max=100"`
	WalletAddress *string `json:"wallet_address" validate:"omitempty,max=128"`
}

type roleRequest struct {
	Role models.Role `json:"role" validate:"required,oneof=admin user"`
}

// Me returns the authenticated user with balances.
// GET /me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.Me(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateMe edits the caller's profile.
// PATCH /me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := h.accounts.UpdateProfile(r.Context(), currentUserID(r), services.ProfileUpdate{
		Name:          req.Name,
		WalletAddress: req.WalletAddress,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// MyNFTs lists everything the caller owns, listed or not.
// GET /me/nfts
func (h *UserHandler) MyNFTs(w http.ResponseWriter, r *http.Request) {
	nfts, err := h.catalog.ListOwned(r.Context(), currentUserID(r), pageFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nfts)
}

// MyTransactions is the caller's ledger, newest first.
// GET /me/transactions
func (h *UserHandler) MyTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.ledger.History(r.Context(), currentUserID(r), pageFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// List returns users, optionally filtered by ?role=.
// GET /admin/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.ListUsers(r.Context(), models.Role(r.URL.Query().Get("role")), pageFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// Get returns one user.
// GET /admin/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// SetRole promotes or demotes a user.
// PUT /admin/users/{id}/role
func (h *UserHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := h.accounts.SetRole(r.Context(), currentUserID(r), chi.URLParam(r, "id"), req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
