package handler

import (
	"net/http"

	"venue-ledger-api/internal/models"
)

// ListNotifications handles GET /notifications
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	notes, err := h.service.ListNotifications(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, notes)
}

// CreateNotification handles POST /notifications. The caller's venue is used
// when none is given.
func (h *Handler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req models.CreateNotificationRequest
	if !h.decode(w, r, &req) {
		return
	}
	p := principal(r)
	if req.VenueID == nil && p.VenueID != "" {
		venueID := p.VenueID
		req.VenueID = &venueID
	}
	if req.VenueID != nil && !h.inVenue(w, r, *req.VenueID) {
		return
	}
	n, err := h.service.CreateNotification(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, n)
}

// MarkNotificationRead handles PUT /notifications/{id}/read
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.service.MarkNotificationRead(r.Context(), param(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, models.OKResponse{OK: true})
}
