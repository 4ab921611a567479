package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"venue-ledger-api/internal/common"
	"venue-ledger-api/internal/middleware"
	"venue-ledger-api/internal/models"
	"venue-ledger-api/internal/service"
	"venue-ledger-api/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	maxBodySize int64
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 1 << 20, // 1MiB default
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service) *Handler {
	return NewHandlerWithOptions(svc, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, opts NewHandlerOptions) *Handler {
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultHandlerOptions().MaxBodySize
	}
	return &Handler{
		service:     svc,
		maxBodySize: opts.MaxBodySize,
	}
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{Status: "ok", Database: "ok", Features: h.service.Features().Enabled()}
	if err := h.service.Health(r.Context()); err != nil {
		log.WithError(err).Warn("health check failed")
		resp.Status = "degraded"
		resp.Database = "unavailable"
		h.respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// decode reads a JSON body into dst. It answers 400 and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	// Limit request body size to prevent abuse
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			h.respondError(w, http.StatusBadRequest, "request body is required")
		case errors.As(err, &tooLarge):
			h.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		default:
			h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		}
		return false
	}
	return true
}

// param returns a sanitized URL parameter.
func param(r *http.Request, name string) string {
	return validation.SanitizeString(chi.URLParam(r, name))
}

// principal returns the caller resolved by the auth middleware.
func principal(r *http.Request) models.Principal {
	p, _ := middleware.PrincipalFrom(r.Context())
	return p
}

// inVenue answers 403 unless the caller may act on venueID. Main admins act
// everywhere and guests are not bound to a venue.
func (h *Handler) inVenue(w http.ResponseWriter, r *http.Request, venueID string) bool {
	p := principal(r)
	if p.Role == models.RoleMainAdmin || p.Role == models.RoleGuest || p.VenueID == venueID {
		return true
	}
	h.respondError(w, http.StatusForbidden, "principal is not assigned to this venue")
	return false
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrQuestCapped), errors.Is(err, common.ErrOnCooldown):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrConflict),
		errors.Is(err, common.ErrInsufficientStock),
		errors.Is(err, common.ErrInsufficientFunds):
		return http.StatusConflict
	case errors.Is(err, common.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, common.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. Unclassified errors are logged and
// reported without detail.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithFields(log.Fields{
			"path":       r.URL.Path,
			"request_id": chimw.GetReqID(r.Context()),
		}).Error("request failed")
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	h.respondError(w, status, msg)
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
