package service

import (
	"context"

	"github.com/google/uuid"

	"venue-ledger-api/internal/common"
	"venue-ledger-api/internal/database"
	"venue-ledger-api/internal/models"
	"venue-ledger-api/internal/validation"
)

// ListRules returns a venue's automation rules.
func (s *Service) ListRules(ctx context.Context, venueID string) ([]models.AutomationRule, error) {
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()
	return s.db.ListRules(ctx, venueID)
}

// GetRule loads a rule.
func (s *Service) GetRule(ctx context.Context, id string) (*models.AutomationRule, error) {
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()
	return s.db.GetRule(ctx, id)
}

// CreateRule adds an automation rule, active unless stated otherwise.
func (s *Service) CreateRule(ctx context.Context, req models.RuleRequest) (*models.AutomationRule, error) {
	if err := validation.ValidateUUID(req.VenueID, "venue_id"); err != nil {
		return nil, err
	}
	r := &models.AutomationRule{
		ID:          uuid.NewString(),
		VenueID:     req.VenueID,
		TriggerType: models.TriggerInventory,
		Conditions:  models.RuleConditions{},
		Active:      true,
		CreatedAt:   s.now(),
	}
	applyRulePatch(r, req)
	if err := validation.ValidateRule(r); err != nil {
		return nil, err
	}

	err := s.db.WithTx(ctx, func(ctx context.Context, tx *database.Tx) error {
		if _, err := tx.GetVenue(ctx, r.VenueID); err != nil {
			return err
		}
		return tx.CreateRule(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateRule patches a rule.
func (s *Service) UpdateRule(ctx context.Context, id string, req models.RuleRequest) (*models.AutomationRule, error) {
	var r *models.AutomationRule
	err := s.db.WithTx(ctx, func(ctx context.Context, tx *database.Tx) error {
		var err error
		if r, err = tx.GetRule(ctx, id); err != nil {
			return err
		}
		applyRulePatch(r, req)
		if err := validation.ValidateRule(r); err != nil {
			return err
		}
		return tx.UpdateRule(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// DeleteRule removes a rule.
func (s *Service) DeleteRule(ctx context.Context, id string) error {
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()
	return s.db.DeleteRule(ctx, id)
}

// EvaluateRules runs a venue's rules synchronously and reports how many matched.
func (s *Service) EvaluateRules(ctx context.Context, req models.EvaluateRulesRequest) (int, error) {
	if err := validation.ValidateUUID(req.VenueID, "venue_id"); err != nil {
		return 0, err
	}
	if !req.TriggerType.Valid() {
		return 0, common.Invalid("trigger_type must be inventory or event")
	}
	return s.rules.Evaluate(ctx, req.VenueID, req.TriggerType, req.Context), nil
}

func applyRulePatch(r *models.AutomationRule, req models.RuleRequest) {
	if req.Name != nil {
		r.Name = *req.Name
	}
	if req.TriggerType != nil {
		r.TriggerType = *req.TriggerType
	}
	if req.Conditions != nil {
		r.Conditions = *req.Conditions
	}
	if req.Actions != nil {
		r.Actions = *req.Actions
	}
	if req.Active != nil {
		r.Active = *req.Active
	}
}
