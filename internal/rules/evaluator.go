// Package rules evaluates venue automation rules against trigger contexts.
package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"venue-ledger-api/internal/database"
	"venue-ledger-api/internal/events"
	"venue-ledger-api/internal/models"
	"venue-ledger-api/internal/tracing"
)

// Matches reports whether every condition of the rule holds for tc.
// A condition whose context field is absent does not block the match.
func Matches(conds models.RuleConditions, tc models.TriggerContext) bool {
	for _, c := range conds {
		switch c.Kind {
		case models.CondMinQty:
			if tc.Qty != nil && *tc.Qty > c.Value {
				return false
			}
		case models.CondMinOccupancy:
			if tc.Occupancy != nil && *tc.Occupancy < c.Value {
				return false
			}
		case models.CondMaxOccupancy:
			if tc.Occupancy != nil && *tc.Occupancy > c.Value {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Evaluator loads active rules and performs their actions.
type Evaluator struct {
	db  *database.DB
	now func() time.Time
}

func NewEvaluator(db *database.DB) *Evaluator {
	return &Evaluator{db: db, now: time.Now}
}

// Subscribe runs the evaluator for every rule trigger event.
func (e *Evaluator) Subscribe(m *events.Manager) {
	m.Subscribe(events.EventRuleTrigger, func(ctx context.Context, ev events.Event) error {
		data, ok := ev.Data.(events.RuleTriggerData)
		if !ok {
			return fmt.Errorf("unexpected rule trigger payload %T", ev.Data)
		}
		e.Evaluate(ctx, data.VenueID, data.Trigger, data.Context)
		return nil
	})
}

// Evaluate fires the matching rules and returns how many matched. Failures
// are logged and never returned.
func (e *Evaluator) Evaluate(ctx context.Context, venueID string, trigger models.TriggerType, tc models.TriggerContext) int {
	ctx, span := tracing.Start(ctx, "rules.Evaluate", tracing.VenueID(venueID), tracing.Trigger(string(trigger)))
	defer span.End()

	logger := log.WithFields(log.Fields{"venue_id": venueID, "trigger": string(trigger)})

	ctx, cancel := e.db.Bound(ctx)
	defer cancel()

	rules, err := e.db.ListActiveRules(ctx, venueID, trigger)
	if err != nil {
		logger.WithError(err).Warn("rule evaluation skipped")
		return 0
	}

	matched := 0
	for _, rule := range rules {
		if !Matches(rule.Conditions, tc) {
			continue
		}
		matched++
		for _, action := range rule.Actions {
			if err := e.perform(ctx, rule, action, tc); err != nil {
				logger.WithError(err).WithFields(log.Fields{
					"rule_id": rule.ID,
					"action":  string(action.Kind),
				}).Warn("rule action failed")
			}
		}
	}
	if matched > 0 {
		logger.WithField("matched", matched).Debug("rules fired")
	}
	return matched
}

func (e *Evaluator) perform(ctx context.Context, rule models.AutomationRule, action models.Action, tc models.TriggerContext) error {
	venueID := rule.VenueID
	switch action.Kind {
	case models.ActionNotify:
		msg := action.Message
		if msg == "" {
			msg = rule.Name
		}
		n := &models.Notification{
			ID:        uuid.NewString(),
			VenueID:   &venueID,
			Message:   msg,
			CreatedAt: e.now(),
		}
		if action.Role != "" {
			role := action.Role
			n.TargetRole = &role
		}
		return e.db.CreateNotification(ctx, n)
	case models.ActionLog:
		logType := action.LogType
		if logType == "" {
			logType = models.LogRuleTriggered
		}
		payload := tc.Payload()
		payload["rule_id"] = rule.ID
		payload["rule_name"] = rule.Name
		return e.db.InsertLog(ctx, &venueID, logType, payload, e.now())
	}
	return fmt.Errorf("unknown action %q", action.Kind)
}
