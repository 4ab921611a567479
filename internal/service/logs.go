package service

import (
	"context"
	"encoding/json"

	"venue-ledger-api/internal/common"
	"venue-ledger-api/internal/models"
	"venue-ledger-api/internal/validation"
)

// ListLogs returns a venue's audit log, newest first.
func (s *Service) ListLogs(ctx context.Context, f models.LogFilter) ([]models.LogEvent, error) {
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()
	return s.db.ListLogs(ctx, f)
}

// CreateLog records a staff entry such as an incident report. The reporting
// user is added to the payload.
func (s *Service) CreateLog(ctx context.Context, p models.Principal, req models.CreateLogRequest) error {
	if err := validation.ValidateLog(&req); err != nil {
		return err
	}
	payload := map[string]any{}
	if len(req.Payload) > 0 {
		var body any
		if err := json.Unmarshal(req.Payload, &body); err != nil {
			return common.Invalid("payload must be valid JSON")
		}
		if obj, ok := body.(map[string]any); ok {
			payload = obj
		} else {
			payload["data"] = body
		}
	}
	payload["staff_id"] = p.UserID
	payload["role"] = string(p.Role)

	ctx, cancel := s.db.Bound(ctx)
	defer cancel()
	venueID := req.VenueID
	return s.db.InsertLog(ctx, &venueID, req.Type, payload, s.now())
}
