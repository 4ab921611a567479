package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// TriggerType selects which rules a trigger evaluates.
type TriggerType string

const (
	TriggerInventory TriggerType = "inventory"
	TriggerEvent     TriggerType = "event"
)

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	return t == TriggerInventory || t == TriggerEvent
}

// ConditionKind names one predicate over a TriggerContext.
type ConditionKind string

const (
	CondMinQty       ConditionKind = "min_qty"       // matches when qty <= value
	CondMinOccupancy ConditionKind = "min_occupancy" // matches when occupancy >= value
	CondMaxOccupancy ConditionKind = "max_occupancy" // matches when occupancy <= value
)

var conditionOrder = []ConditionKind{CondMinQty, CondMinOccupancy, CondMaxOccupancy}

// Condition is one integer threshold predicate.
type Condition struct {
	Kind  ConditionKind
	Value int64
}

// RuleConditions is stored and sent as an object, e.g. {"min_qty": 5}.
// All conditions must match for the rule to fire.
type RuleConditions []Condition

// Get returns the value for kind and whether it is present.
func (c RuleConditions) Get(kind ConditionKind) (int64, bool) {
	for _, cond := range c {
		if cond.Kind == kind {
			return cond.Value, true
		}
	}
	return 0, false
}

func (c RuleConditions) MarshalJSON() ([]byte, error) {
	obj := make(map[ConditionKind]int64, len(c))
	for _, cond := range c {
		obj[cond.Kind] = cond.Value
	}
	return json.Marshal(obj)
}

func (c *RuleConditions) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = nil
		return nil
	}
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("conditions must be an object of integer thresholds: %w", err)
	}
	out := make(RuleConditions, 0, len(raw))
	for _, kind := range conditionOrder {
		v, ok := raw[string(kind)]
		if !ok {
			continue
		}
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return fmt.Errorf("condition %s must be an integer", kind)
		}
		out = append(out, Condition{Kind: kind, Value: int64(v)})
		delete(raw, string(kind))
	}
	for k := range raw {
		return fmt.Errorf("unknown condition %q", k)
	}
	*c = out
	return nil
}

// ActionKind names a side effect a rule performs.
type ActionKind string

const (
	ActionNotify ActionKind = "notify"
	ActionLog    ActionKind = "log"
)

// Action is one side effect. Role and Message apply to notify, LogType to log.
// A notify action without a role is a venue broadcast.
type Action struct {
	Kind    ActionKind
	Role    Role
	Message string
	LogType LogType
}

// RuleActions is stored and sent as an object, e.g.
// {"notify": {"role": "BAR", "message": "restock"}, "log": {"type": "LOW_STOCK"}}.
type RuleActions []Action

type notifyAction struct {
	Role    Role   `json:"role,omitempty"`
	Message string `json:"message,omitempty"`
}

type logAction struct {
	Type LogType `json:"type,omitempty"`
}

type actionsWire struct {
	Notify *notifyAction `json:"notify,omitempty"`
	Log    *logAction    `json:"log,omitempty"`
}

func (a RuleActions) MarshalJSON() ([]byte, error) {
	var w actionsWire
	for _, act := range a {
		switch act.Kind {
		case ActionNotify:
			w.Notify = &notifyAction{Role: act.Role, Message: act.Message}
		case ActionLog:
			w.Log = &logAction{Type: act.LogType}
		}
	}
	return json.Marshal(w)
}

func (a *RuleActions) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var w actionsWire
	if err := dec.Decode(&w); err != nil {
		return fmt.Errorf("invalid actions: %w", err)
	}
	var out RuleActions
	if w.Notify != nil {
		if w.Notify.Role != "" && !w.Notify.Role.Valid() {
			return fmt.Errorf("notify action has unknown role %q", w.Notify.Role)
		}
		out = append(out, Action{Kind: ActionNotify, Role: w.Notify.Role, Message: w.Notify.Message})
	}
	if w.Log != nil {
		out = append(out, Action{Kind: ActionLog, LogType: w.Log.Type})
	}
	*a = out
	return nil
}

// TriggerContext is the data a rule is evaluated against. Absent fields
// leave the conditions that read them unchecked.
type TriggerContext struct {
	Item      string         `json:"item,omitempty"`
	Qty       *int64         `json:"qty,omitempty"`
	Occupancy *int64         `json:"occupancy,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Payload flattens the context into a log or notification payload.
func (t TriggerContext) Payload() map[string]any {
	out := make(map[string]any, len(t.Extra)+3)
	for k, v := range t.Extra {
		out[k] = v
	}
	if t.Item != "" {
		out["item"] = t.Item
	}
	if t.Qty != nil {
		out["qty"] = *t.Qty
	}
	if t.Occupancy != nil {
		out["occupancy"] = *t.Occupancy
	}
	return out
}
