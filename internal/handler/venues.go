package handler

import (
	"net/http"

	"venue-ledger-api/internal/models"
)

// ListVenues handles GET /venues
func (h *Handler) ListVenues(w http.ResponseWriter, r *http.Request) {
	venues, err := h.service.ListVenues(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, venues)
}

// CreateVenue handles POST /venues
func (h *Handler) CreateVenue(w http.ResponseWriter, r *http.Request) {
	var req models.CreateVenueRequest
	if !h.decode(w, r, &req) {
		return
	}
	v, err := h.service.CreateVenue(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, v)
}

// CreateUser handles POST /users. Venue admins may only add users to their venue.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	p := principal(r)
	if p.Role != models.RoleMainAdmin {
		if req.VenueID == nil {
			h.respondError(w, http.StatusForbidden, "venue_id is required")
			return
		}
		if !h.inVenue(w, r, *req.VenueID) {
			return
		}
		if req.Role == models.RoleMainAdmin {
			h.respondError(w, http.StatusForbidden, "only main admins may create main admins")
			return
		}
	}
	u, err := h.service.CreateUser(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, u)
}
