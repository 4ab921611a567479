package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"venue-ledger-api/internal/models"
	"venue-ledger-api/internal/validation"
)

// ListLogs handles GET /logs/{venue_id}?since=RFC3339&type=SELL&limit=200
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	f := models.LogFilter{VenueID: param(r, "venue_id")}
	if !h.inVenue(w, r, f.VenueID) {
		return
	}

	q := r.URL.Query()
	if since := validation.SanitizeString(q.Get("since")); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid 'since' parameter, must be RFC3339 format")
			return
		}
		f.Since = &t
	}
	if typ := validation.SanitizeString(q.Get("type")); typ != "" {
		lt := models.LogType(strings.ToUpper(typ))
		f.Type = &lt
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			h.respondError(w, http.StatusBadRequest, "invalid 'limit' parameter")
			return
		}
		f.Limit = n
	}

	logs, err := h.service.ListLogs(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, logs)
}

// CreateLog handles POST /logs. The caller's venue is used when none is given.
func (h *Handler) CreateLog(w http.ResponseWriter, r *http.Request) {
	var req models.CreateLogRequest
	if !h.decode(w, r, &req) {
		return
	}
	p := principal(r)
	if strings.TrimSpace(req.VenueID) == "" {
		req.VenueID = p.VenueID
	}
	if !h.inVenue(w, r, req.VenueID) {
		return
	}
	if err := h.service.CreateLog(r.Context(), p, req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, models.OKResponse{OK: true})
}
