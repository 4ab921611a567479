package handler

import (
	"net/http"

	"venue-ledger-api/internal/models"
)

// ListInventory handles GET /inventory/{venue_id}
func (h *Handler) ListInventory(w http.ResponseWriter, r *http.Request) {
	venueID := param(r, "venue_id")
	if !h.inVenue(w, r, venueID) {
		return
	}
	items, err := h.service.ListInventory(r.Context(), venueID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, items)
}

// CreateInventoryItem handles POST /inventory/{venue_id}
func (h *Handler) CreateInventoryItem(w http.ResponseWriter, r *http.Request) {
	venueID := param(r, "venue_id")
	if !h.inVenue(w, r, venueID) {
		return
	}
	var req models.CreateInventoryItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.CreateInventoryItem(r.Context(), venueID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, item)
}

// UpdateInventoryItem handles PUT /inventory/{venue_id}/{id}
func (h *Handler) UpdateInventoryItem(w http.ResponseWriter, r *http.Request) {
	venueID := param(r, "venue_id")
	if !h.inVenue(w, r, venueID) {
		return
	}
	var req models.UpdateInventoryItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.UpdateInventoryItem(r.Context(), venueID, param(r, "id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, item)
}

// Restock handles POST /inventory/{venue_id}/{id}/restock
func (h *Handler) Restock(w http.ResponseWriter, r *http.Request) {
	venueID := param(r, "venue_id")
	if !h.inVenue(w, r, venueID) {
		return
	}
	var req models.RestockRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.Restock(r.Context(), principal(r), venueID, param(r, "id"), req.AddQty)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, item)
}

// Sell handles POST /inventory/{venue_id}/{id}/sell. Missing qty means 1.
func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	venueID := param(r, "venue_id")
	if !h.inVenue(w, r, venueID) {
		return
	}
	var req models.DecrementRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Qty == 0 {
		req.Qty = 1
	}
	item, err := h.service.Sell(r.Context(), principal(r), venueID, param(r, "id"), req.Qty)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, item)
}
