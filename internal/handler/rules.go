package handler

import (
	"net/http"

	"venue-ledger-api/internal/models"
)

// ListRules handles GET /rules/{venue_id}
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	venueID := param(r, "id")
	if !h.inVenue(w, r, venueID) {
		return
	}
	rules, err := h.service.ListRules(r.Context(), venueID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, rules)
}

// CreateRule handles POST /rules
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req models.RuleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.inVenue(w, r, req.VenueID) {
		return
	}
	rule, err := h.service.CreateRule(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, rule)
}

// UpdateRule handles PUT /rules/{id}
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	if !h.ownRule(w, r) {
		return
	}
	var req models.RuleRequest
	if !h.decode(w, r, &req) {
		return
	}
	rule, err := h.service.UpdateRule(r.Context(), param(r, "id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, rule)
}

// DeleteRule handles DELETE /rules/{id}
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if !h.ownRule(w, r) {
		return
	}
	if err := h.service.DeleteRule(r.Context(), param(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, models.OKResponse{OK: true})
}

// EvaluateRules handles POST /rules/evaluate and runs the matching rules now.
func (h *Handler) EvaluateRules(w http.ResponseWriter, r *http.Request) {
	var req models.EvaluateRulesRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.inVenue(w, r, req.VenueID) {
		return
	}
	n, err := h.service.EvaluateRules(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, models.EvaluateRulesResponse{Matched: n})
}

func (h *Handler) ownRule(w http.ResponseWriter, r *http.Request) bool {
	rule, err := h.service.GetRule(r.Context(), param(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return false
	}
	return h.inVenue(w, r, rule.VenueID)
}
