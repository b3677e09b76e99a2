package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/services"
)

// AdminHandler serves the ledger and dashboard views.
type AdminHandler struct {
	admin  *services.AdminService
	ledger *services.LedgerService
}

func NewAdminHandler(admin *services.AdminService, ledger *services.LedgerService) *AdminHandler {
	return &AdminHandler{admin: admin, ledger: ledger}
}

// Stats returns the dashboard aggregates.
// GET /admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Transactions lists ledger entries, optionally ?kind=.
// GET /admin/transactions
func (h *AdminHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.ledger.List(r.Context(), models.TransactionKind(r.URL.Query().Get("kind")), pageFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// Export downloads the ledger as ?format=csv (default) or xlsx.
// GET /admin/transactions/export
func (h *AdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := services.ExportFormat(q.Get("format"))
	if format == "" {
		format = services.ExportCSV
	}

	// Buffered so a failed export still gets a proper error response.
	var buf bytes.Buffer
	if err := h.ledger.Export(r.Context(), &buf, format, models.TransactionKind(q.Get("kind"))); err != nil {
		writeError(w, r, err)
		return
	}

	name := fmt.Sprintf("transactions-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
