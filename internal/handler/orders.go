package handler

import (
	"net/http"

	"venue-ledger-api/internal/models"
)

// CreateOrder handles POST /orders
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.inVenue(w, r, req.VenueID) {
		return
	}

	order, err := h.service.CreateOrder(r.Context(), principal(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, order)
}

// ListOrders handles GET /orders/{venue_id}
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	venueID := param(r, "id")
	if !h.inVenue(w, r, venueID) {
		return
	}
	orders, err := h.service.ListOrders(r.Context(), venueID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, orders)
}

// UndoOrder handles DELETE /orders/{id}
func (h *Handler) UndoOrder(w http.ResponseWriter, r *http.Request) {
	id := param(r, "id")
	// Missing orders fall through to the undo error.
	if order, err := h.service.GetOrder(r.Context(), id); err == nil && !h.inVenue(w, r, order.VenueID) {
		return
	}
	if err := h.service.UndoOrder(r.Context(), principal(r), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, models.OKResponse{OK: true})
}
