package handler

import (
	"net/http"

	"venue-ledger-api/internal/models"
)

// ListQuests handles GET /quests/{venue_id}
func (h *Handler) ListQuests(w http.ResponseWriter, r *http.Request) {
	quests, err := h.service.ListAvailableQuests(r.Context(), param(r, "id"), principal(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, quests)
}

// CompleteQuest handles POST /quests/{id}/complete for the calling user.
func (h *Handler) CompleteQuest(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.CompleteQuest(r.Context(), param(r, "id"), principal(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

// CreateQuest handles POST /quests
func (h *Handler) CreateQuest(w http.ResponseWriter, r *http.Request) {
	var req models.QuestRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.inVenue(w, r, req.VenueID) {
		return
	}
	q, err := h.service.CreateQuest(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, q)
}

// UpdateQuest handles PUT /quests/{id}
func (h *Handler) UpdateQuest(w http.ResponseWriter, r *http.Request) {
	id := param(r, "id")
	existing, err := h.service.GetQuest(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !h.inVenue(w, r, existing.VenueID) {
		return
	}
	var req models.QuestRequest
	if !h.decode(w, r, &req) {
		return
	}
	q, err := h.service.UpdateQuest(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, q)
}
