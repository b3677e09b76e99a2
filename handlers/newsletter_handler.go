package handlers

import (
	"net/http"

	"github.com/ferreirogomes/nftmarket/services"
)

type NewsletterHandler struct {
	newsletter *services.NewsletterService
}

func NewNewsletterHandler(newsletter *services.NewsletterService) *NewsletterHandler {
	return &NewsletterHandler{newsletter: newsletter}
}

type subscriptionRequest struct {
	Email string `json:"email" validate:"required"`
}

type broadcastRequest struct {
	Subject string `json:"subject" validate:"required,max=200"`
	Body    string `json:"body" validate:"required"`
}

// Subscribe answers 201 for a new address and 200 when already subscribed.
// POST /newsletter/subscribe
func (h *NewsletterHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.newsletter.Subscribe(r.Context(), req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]bool{"subscribed": true})
}

// POST /newsletter/unsubscribe
func (h *NewsletterHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.newsletter.Unsubscribe(r.Context(), req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /admin/newsletter/subscribers
func (h *NewsletterHandler) Subscribers(w http.ResponseWriter, r *http.Request) {
	subs, err := h.newsletter.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// Broadcast queues the newsletter for every subscriber.
// POST /admin/newsletter/broadcast
func (h *NewsletterHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.newsletter.Broadcast(r.Context(), req.Subject, req.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}
