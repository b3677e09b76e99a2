package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/services"
)

// NFTHandler serves the marketplace catalogue, listing management and
// purchases.
type NFTHandler struct {
	catalog    *services.CatalogService
	settlement *services.SettlementService
}

func NewNFTHandler(catalog *services.CatalogService, settlement *services.SettlementService) *NFTHandler {
	return &NFTHandler{catalog: catalog, settlement: settlement}
}

type mintRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=5000"`
	ImageURL    string          `json:"image_url" validate:"omitempty,url"`
	CategoryID  string          `json:"category_id"`
	FloorPrice  decimal.Decimal `json:"floor_price"`
}

type listingRequest struct {
	FloorPrice *decimal.Decimal `json:"floor_price"`
	Active     *bool            `json:"active" validate:"required"`
}

type purchaseRequest struct {
	Currency string `json:"currency" validate:"required,max=16"`
}

type reviewRequest struct {
	Approve *bool `json:"approve" validate:"required"`
}

type activeRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// Marketplace lists purchasable NFTs, optionally ?category=.
// GET /nfts
func (h *NFTHandler) Marketplace(w http.ResponseWriter, r *http.Request) {
	nfts, err := h.catalog.Marketplace(r.Context(), r.URL.Query().Get("category"), pageFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nfts)
}

// Get returns one NFT.
// GET /nfts/{id}
func (h *NFTHandler) Get(w http.ResponseWriter, r *http.Request) {
	nft, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nft)
}

// Mint submits a new NFT for review.
// POST /nfts
func (h *NFTHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	nft, err := h.catalog.Mint(r.Context(), currentUserID(r), services.MintInput{
		Name:        req.Name,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		CategoryID:  req.CategoryID,
		FloorPrice:  req.FloorPrice,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, nft)
}

// Relist changes price or visibility of an NFT the caller owns.
// PATCH /nfts/{id}/listing
func (h *NFTHandler) Relist(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	nft, err := h.catalog.Relist(r.Context(), currentUserID(r), chi.URLParam(r, "id"), req.FloorPrice, *req.Active)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nft)
}

// Purchase settles a purchase of the listing by the caller.
// POST /nfts/{id}/purchase
func (h *NFTHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.settlement.Purchase(r.Context(), currentUserID(r), chi.URLParam(r, "id"), models.ParseCurrency(req.Currency))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// AdminList lists NFTs in any state, optionally ?status=.
// GET /admin/nfts
func (h *NFTHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	nfts, err := h.catalog.ListByStatus(r.Context(), models.NFTStatus(r.URL.Query().Get("status")), pageFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nfts)
}

// Review approves or declines a pending NFT.
// POST /admin/nfts/{id}/review
func (h *NFTHandler) Review(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	nft, err := h.catalog.Review(r.Context(), currentUserID(r), chi.URLParam(r, "id"), *req.Approve)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nft)
}

// SetActive forces listing visibility.
// PUT /admin/nfts/{id}/active
func (h *NFTHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	nft, err := h.catalog.SetActive(r.Context(), chi.URLParam(r, "id"), *req.Active)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nft)
}
