package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"venue-ledger-api/internal/models"
)

const ruleColumns = `id, venue_id, name, trigger_type, conditions, actions, active, created_at`

// CreateRule inserts an automation rule.
func (q *Queries) CreateRule(ctx context.Context, r *models.AutomationRule) error {
	conds, acts, err := encodeRule(r)
	if err != nil {
		return err
	}
	_, err = q.exec(ctx,
		`INSERT INTO automation_rules (`+ruleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.VenueID, r.Name, string(r.TriggerType), conds, acts, boolInt(r.Active), formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

// UpdateRule overwrites every mutable column of r.
func (q *Queries) UpdateRule(ctx context.Context, r *models.AutomationRule) error {
	conds, acts, err := encodeRule(r)
	if err != nil {
		return err
	}
	res, err := q.exec(ctx,
		`UPDATE automation_rules SET name = ?, trigger_type = ?, conditions = ?, actions = ?, active = ?
		WHERE id = ?`,
		r.Name, string(r.TriggerType), conds, acts, boolInt(r.Active), r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return scanErr(sql.ErrNoRows, "rule")
	}
	return nil
}

// DeleteRule removes a rule.
func (q *Queries) DeleteRule(ctx context.Context, id string) error {
	res, err := q.exec(ctx, `DELETE FROM automation_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return scanErr(sql.ErrNoRows, "rule")
	}
	return nil
}

// GetRule loads a rule by id.
func (q *Queries) GetRule(ctx context.Context, id string) (*models.AutomationRule, error) {
	r, err := scanRule(q.queryRow(ctx, `SELECT `+ruleColumns+` FROM automation_rules WHERE id = ?`, id))
	if err != nil {
		return nil, scanErr(err, "rule")
	}
	return r, nil
}

// ListRules returns every rule at a venue.
func (q *Queries) ListRules(ctx context.Context, venueID string) ([]models.AutomationRule, error) {
	return q.listRules(ctx,
		`SELECT `+ruleColumns+` FROM automation_rules WHERE venue_id = ? ORDER BY created_at`, venueID)
}

// ListActiveRules returns the active rules at a venue for one trigger type.
func (q *Queries) ListActiveRules(ctx context.Context, venueID string, trigger models.TriggerType) ([]models.AutomationRule, error) {
	return q.listRules(ctx,
		`SELECT `+ruleColumns+` FROM automation_rules
		WHERE venue_id = ? AND trigger_type = ? AND active = 1 ORDER BY created_at`,
		venueID, string(trigger))
}

func (q *Queries) listRules(ctx context.Context, query string, args ...any) ([]models.AutomationRule, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	rules := []models.AutomationRule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *r)
	}
	return rules, classify(rows.Err())
}

func encodeRule(r *models.AutomationRule) (string, string, error) {
	conds, err := json.Marshal(r.Conditions)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode rule conditions: %w", err)
	}
	acts, err := json.Marshal(r.Actions)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode rule actions: %w", err)
	}
	return string(conds), string(acts), nil
}

func scanRule(s scanner) (*models.AutomationRule, error) {
	var (
		r         models.AutomationRule
		trigger   string
		conds     string
		acts      string
		active    int64
		createdAt string
	)
	if err := s.Scan(&r.ID, &r.VenueID, &r.Name, &trigger, &conds, &acts, &active, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(conds), &r.Conditions); err != nil {
		return nil, fmt.Errorf("decode rule conditions: %w", err)
	}
	if err := json.Unmarshal([]byte(acts), &r.Actions); err != nil {
		return nil, fmt.Errorf("decode rule actions: %w", err)
	}
	var err error
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse rule created_at: %w", err)
	}
	r.TriggerType = models.TriggerType(trigger)
	r.Active = active != 0
	return &r, nil
}
