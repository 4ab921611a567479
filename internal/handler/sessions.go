package handler

import (
	"net/http"
	"strconv"

	"venue-ledger-api/internal/models"
)

// CheckIn handles POST /guest/checkin. It needs no principal: the door
// scans a wristband before the guest has an account.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req models.CheckInRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.CheckIn(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, res)
}

// CheckOut handles POST /guest/checkout
func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	closed, err := h.service.CheckOut(r.Context(), principal(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, closed)
}

// Me handles GET /me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Profile(r.Context(), principal(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, p)
}

// History handles GET /me/history?page=N. A missing page means 1.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "page must be a number")
			return
		}
		page = n
	}
	visits, err := h.service.VisitHistory(r.Context(), principal(r).UserID, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, visits)
}

// Headcount handles GET /headcount/{venue_id}
func (h *Handler) Headcount(w http.ResponseWriter, r *http.Request) {
	hc, err := h.service.Headcount(r.Context(), param(r, "venue_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, hc)
}
