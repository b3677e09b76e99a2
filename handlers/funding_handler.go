package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/services"
	"github.com/ferreirogomes/nftmarket/storage"
)

// FundingHandler serves deposit and withdrawal requests and their review.
type FundingHandler struct {
	funding *services.FundingService
}

func NewFundingHandler(funding *services.FundingService) *FundingHandler {
	return &FundingHandler{funding: funding}
}

type depositRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" validate:"required,max=16"`
	TxReference string          `json:"tx_reference" validate:"required,max=256"`
}

type withdrawalRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" validate:"required,max=16"`
	Destination string          `json:"destination" validate:"required,max=256"`
}

func reviewFilter(r *http.Request) storage.ReviewFilter {
	q := r.URL.Query()
	return storage.ReviewFilter{
		UserID: q.Get("user_id"),
		Status: models.ReviewStatus(q.Get("status")),
		Page:   pageFrom(r),
	}
}

// POST /deposits
func (h *FundingHandler) RequestDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	dep, err := h.funding.RequestDeposit(r.Context(), currentUserID(r), req.Amount, models.ParseCurrency(req.Currency), req.TxReference)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dep)
}

// GET /deposits
func (h *FundingHandler) MyDeposits(w http.ResponseWriter, r *http.Request) {
	f := reviewFilter(r)
	f.UserID = currentUserID(r)
	deps, err := h.funding.ListDeposits(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deps)
}

// POST /withdrawals
func (h *FundingHandler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	wd, err := h.funding.RequestWithdrawal(r.Context(), currentUserID(r), req.Amount, models.ParseCurrency(req.Currency), req.Destination)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wd)
}

// GET /withdrawals
func (h *FundingHandler) MyWithdrawals(w http.ResponseWriter, r *http.Request) {
	f := reviewFilter(r)
	f.UserID = currentUserID(r)
	wds, err := h.funding.ListWithdrawals(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wds)
}

// GET /admin/deposits
func (h *FundingHandler) Deposits(w http.ResponseWriter, r *http.Request) {
	deps, err := h.funding.ListDeposits(r.Context(), reviewFilter(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deps)
}

// ReviewDeposit approves (crediting the user) or declines a deposit.
// POST /admin/deposits/{id}/review
func (h *FundingHandler) ReviewDeposit(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	dep, err := h.funding.ReviewDeposit(r.Context(), currentUserID(r), chi.URLParam(r, "id"), *req.Approve)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dep)
}

// GET /admin/withdrawals
func (h *FundingHandler) Withdrawals(w http.ResponseWriter, r *http.Request) {
	wds, err := h.funding.ListWithdrawals(r.Context(), reviewFilter(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wds)
}

// ReviewWithdrawal approves (debiting the user) or declines a withdrawal.
// POST /admin/withdrawals/{id}/review
func (h *FundingHandler) ReviewWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	wd, err := h.funding.ReviewWithdrawal(r.Context(), currentUserID(r), chi.URLParam(r, "id"), *req.Approve)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wd)
}
