package handler

import (
	"net/http"

	"venue-ledger-api/internal/models"
)

// TopUp handles POST /wallet/topup
func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	var req models.TopUpRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.TopUp(r.Context(), principal(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}
