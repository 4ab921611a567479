package models

import (
	"encoding/json"
	"time"
)

// CreateOrderRequest is the body of POST /orders. Any client-supplied total is ignored.
type CreateOrderRequest struct {
	VenueID        string        `json:"venue_id"`
	Items          []OrderItem   `json:"items"`
	PaymentMethod  PaymentMethod `json:"payment_method"`
	GuestSessionID *string       `json:"guest_session_id"`
	IdempotencyKey *string       `json:"idempotency_key"`
}

// TopUpRequest is the body of POST /wallet/topup. Target precedence is
// SessionID, then UIDTag, then UserID.
type TopUpRequest struct {
	UserID    *string `json:"user_id"`
	SessionID *string `json:"session_id"`
	UIDTag    *string `json:"uid_tag"`
	Amount    float64 `json:"amount"`
}

// TopUpResult reports the credited user and new balance.
type TopUpResult struct {
	UserID        string `json:"user_id"`
	SessionID     string `json:"session_id,omitempty"`
	Amount        int64  `json:"amount"`
	WalletBalance int64  `json:"wallet_balance"`
}

// CreateInventoryItemRequest is the body of POST /inventory/{venue_id}.
type CreateInventoryItemRequest struct {
	Name         string `json:"item"`
	Quantity     int64  `json:"qty"`
	LowThreshold *int64 `json:"low_threshold"`
}

// UpdateInventoryItemRequest patches an inventory line; nil fields keep their value.
type UpdateInventoryItemRequest struct {
	Name         *string `json:"item"`
	Quantity     *int64  `json:"qty"`
	LowThreshold *int64  `json:"low_threshold"`
}

// RestockRequest is the body of POST /inventory/{venue_id}/{id}/restock.
type RestockRequest struct {
	AddQty int64 `json:"add_qty"`
}

// DecrementRequest is the body of POST /inventory/{venue_id}/{id}/sell.
type DecrementRequest struct {
	Qty int64 `json:"qty"`
}

// QuestRequest creates a quest or, on update, patches the non-nil fields.
type QuestRequest struct {
	VenueID        string          `json:"venue_id"`
	Title          *string         `json:"title"`
	Description    *string         `json:"description"`
	Conditions     json.RawMessage `json:"conditions"`
	XPReward       *int64          `json:"xp_reward"`
	NCReward       *int64          `json:"nc_reward"`
	MinLevel       *int            `json:"min_level"`
	StartsAt       *time.Time      `json:"starts_at"`
	EndsAt         *time.Time      `json:"ends_at"`
	MaxCompletions *int64          `json:"max_completions"`
	CooldownHours  *int64          `json:"cooldown_hours"`
	Active         *bool           `json:"active"`
}

// QuestCompletionResult is returned by POST /quests/{id}/complete.
type QuestCompletionResult struct {
	CompletionID string `json:"completion_id"`
	XPAwarded    int64  `json:"xp_awarded"`
	NCAwarded    int64  `json:"nc_awarded"`
	XP           int64  `json:"xp"`
	Level        int    `json:"level"`
}

// RuleRequest creates a rule or, on update, patches the non-nil fields.
type RuleRequest struct {
	VenueID     string          `json:"venue_id"`
	Name        *string         `json:"name"`
	TriggerType *TriggerType    `json:"trigger_type"`
	Conditions  *RuleConditions `json:"conditions"`
	Actions     *RuleActions    `json:"actions"`
	Active      *bool           `json:"active"`
}

// EvaluateRulesRequest runs a venue's rules against an ad-hoc context.
type EvaluateRulesRequest struct {
	VenueID     string         `json:"venue_id"`
	TriggerType TriggerType    `json:"trigger_type"`
	Context     TriggerContext `json:"context"`
}

// CheckInRequest is the body of POST /guest/checkin.
type CheckInRequest struct {
	VenueID string  `json:"venue_id"`
	UIDTag  *string `json:"uid_tag"`
}

// CheckInResult describes the opened session and any check-in rewards.
type CheckInResult struct {
	Session   VenueSession `json:"session"`
	User      User         `json:"user"`
	XPAwarded int64        `json:"xp_awarded"`
	NCAwarded int64        `json:"nc_awarded"`
	Occupancy int64        `json:"occupancy"`
}

// Progress is XP earned inside the current level and XP to reach the next.
type Progress struct {
	Current int64 `json:"current"`
	Needed  int64 `json:"needed"`
}

// Profile is the body of GET /me.
type Profile struct {
	User             User               `json:"user"`
	Session          *VenueSession      `json:"session"`
	Progress         Progress           `json:"xp_progress"`
	Visits           []VenueSession     `json:"visits"`
	QuestCompletions []CompletionRecord `json:"quest_completions"`
}

// CompletionRecord is one entry of a user's quest history.
type CompletionRecord struct {
	QuestID     string    `json:"quest_id"`
	Title       string    `json:"title"`
	XPReward    int64     `json:"xp_reward"`
	NCReward    int64     `json:"nc_reward"`
	CompletedAt time.Time `json:"completed_at"`
}

// Headcount is the number of open sessions at a venue.
type Headcount struct {
	VenueID   string `json:"venue_id"`
	Occupancy int64  `json:"occupancy"`
	Capacity  *int64 `json:"capacity"`
}

// CreateUserRequest is the body of POST /users.
type CreateUserRequest struct {
	Role    Role    `json:"role"`
	VenueID *string `json:"venue_id"`
}

// CreateNotificationRequest is the body of POST /notifications.
type CreateNotificationRequest struct {
	VenueID      *string `json:"venue_id"`
	TargetRole   *Role   `json:"target_role"`
	TargetUserID *string `json:"target_user_id"`
	Message      string  `json:"message"`
}

// CreateLogRequest is the body of POST /logs. Staff use it for incident reports.
type CreateLogRequest struct {
	VenueID string          `json:"venue_id"`
	Type    LogType         `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// LogFilter narrows GET /logs/{venue_id}.
type LogFilter struct {
	VenueID string
	Since   *time.Time
	Type    *LogType
	Limit   int
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string   `json:"status"`
	Database string   `json:"database"`
	Features []string `json:"features,omitempty"`
}

// CreateVenueRequest is the body of POST /venues.
type CreateVenueRequest struct {
	Name     string `json:"name"`
	City     string `json:"city"`
	Pin      string `json:"pin"`
	Capacity *int64 `json:"capacity"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// OKResponse acknowledges a write with no other result.
type OKResponse struct {
	OK bool `json:"ok"`
}

// EvaluateRulesResponse reports how many rules matched.
type EvaluateRulesResponse struct {
	Matched int `json:"matched"`
}
