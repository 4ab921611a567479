package models

import (
	"encoding/json"
	"time"
)

// Role is a principal's role within a venue.
type Role string

const (
	RoleBar        Role = "BAR"
	RoleRunner     Role = "RUNNER"
	RoleSecurity   Role = "SECURITY"
	RoleDoor       Role = "DOOR"
	RoleGuest      Role = "GUEST"
	RoleVenueAdmin Role = "VENUE_ADMIN"
	RoleMainAdmin  Role = "MAIN_ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleBar, RoleRunner, RoleSecurity, RoleDoor, RoleGuest, RoleVenueAdmin, RoleMainAdmin:
		return true
	}
	return false
}

// IsAdmin reports whether r is VENUE_ADMIN or MAIN_ADMIN.
func (r Role) IsAdmin() bool {
	return r == RoleVenueAdmin || r == RoleMainAdmin
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID  string `json:"user_id"`
	Role    Role   `json:"role"`
	VenueID string `json:"venue_id,omitempty"`
}

// PaymentMethod is how an order was settled at the bar.
type PaymentMethod string

const (
	PaymentWallet PaymentMethod = "wallet"
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
)

// User is a guest or staff member with a NC wallet and XP progression.
type User struct {
	ID            string    `json:"id"`             // uuid
	Role          Role      `json:"role"`           // GUEST for self-created guests
	VenueID       *string   `json:"venue_id"`       // home venue, optional
	WalletBalance int64     `json:"wallet_balance"` // whole NC, may go negative
	XP            int64     `json:"xp"`             // lifetime XP, never decreases
	Level         int       `json:"level"`          // always LevelFromXp(XP)
	CreatedAt     time.Time `json:"created_at"`
}

// Venue is a physical location with its own staff, inventory and quests.
type Venue struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	City      string    `json:"city,omitempty"`
	Capacity  *int64    `json:"capacity"`
	CreatedAt time.Time `json:"created_at"`
}

// VenueSession is one guest visit. At most one per (user, venue) has EndedAt nil.
type VenueSession struct {
	ID                string     `json:"id"`
	VenueID           string     `json:"venue_id"`
	UserID            string     `json:"user_id"`
	UIDTag            *string    `json:"uid_tag"` // wristband or card tag
	StartedAt         time.Time  `json:"started_at"`
	EndedAt           *time.Time `json:"ended_at"`
	TotalSpend        int64      `json:"total_spend"`
	InteractionsCount int64      `json:"interactions_count"`
}

// Open reports whether the session has not been checked out.
func (s VenueSession) Open() bool {
	return s.EndedAt == nil
}

// InventoryItem is a stock line at one venue. Quantity may go negative under the allow policy.
type InventoryItem struct {
	ID           string    `json:"id"`
	VenueID      string    `json:"venue_id"`
	Name         string    `json:"item"`
	Quantity     int64     `json:"qty"`
	LowThreshold int64     `json:"low_threshold"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsLowStock reports qty <= low_threshold.
func (i InventoryItem) IsLowStock() bool {
	return i.Quantity <= i.LowThreshold
}

// OrderItem is one line of an order as captured at sale time.
type OrderItem struct {
	MenuItemID      string  `json:"menu_item_id,omitempty"`
	Name            string  `json:"name"`
	UnitPrice       int64   `json:"price"`
	Qty             int64   `json:"qty"`
	InventoryItemID *string `json:"inventory_item_id,omitempty"` // decremented when set
}

// LineTotal is price*qty.
func (i OrderItem) LineTotal() int64 {
	return i.UnitPrice * i.Qty
}

// Order is an immutable record of a checkout. Only undo removes it.
type Order struct {
	ID             string        `json:"id"`
	VenueID        string        `json:"venue_id"`
	StaffUserID    *string       `json:"staff_user_id"`
	GuestSessionID *string       `json:"guest_session_id"`
	Items          []OrderItem   `json:"items"`
	Total          int64         `json:"total"` // always sum of line totals
	PaymentMethod  PaymentMethod `json:"payment_method"`
	IdempotencyKey *string       `json:"idempotency_key"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Quest is a venue challenge that awards XP and NC on completion.
type Quest struct {
	ID             string          `json:"id"`
	VenueID        string          `json:"venue_id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Conditions     json.RawMessage `json:"conditions"` // opaque to the engine
	XPReward       int64           `json:"xp_reward"`
	NCReward       int64           `json:"nc_reward"`
	MinLevel       int             `json:"min_level"`
	StartsAt       *time.Time      `json:"starts_at"`
	EndsAt         *time.Time      `json:"ends_at"`
	MaxCompletions *int64          `json:"max_completions"` // nil means unlimited
	CooldownHours  *int64          `json:"cooldown_hours"`  // nil means none
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
}

// InWindow reports whether now lies in [StartsAt, EndsAt]; nil bounds are open.
func (q Quest) InWindow(now time.Time) bool {
	if q.StartsAt != nil && now.Before(*q.StartsAt) {
		return false
	}
	if q.EndsAt != nil && now.After(*q.EndsAt) {
		return false
	}
	return true
}

// QuestCompletion records one completion of a quest by a user.
type QuestCompletion struct {
	ID             string    `json:"id"`
	QuestID        string    `json:"quest_id"`
	UserID         string    `json:"user_id"`
	VenueSessionID *string   `json:"venue_session_id"`
	CompletedAt    time.Time `json:"completed_at"`
}

// AvailableQuest annotates a quest with the calling user's completion state.
type AvailableQuest struct {
	Quest
	UserCompletions int64 `json:"user_completions"`
	CanComplete     bool  `json:"can_complete"`
}

// AutomationRule fires actions when a trigger context matches its conditions.
type AutomationRule struct {
	ID          string         `json:"id"`
	VenueID     string         `json:"venue_id"`
	Name        string         `json:"name"`
	TriggerType TriggerType    `json:"trigger_type"`
	Conditions  RuleConditions `json:"conditions"`
	Actions     RuleActions    `json:"actions"`
	Active      bool           `json:"active"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Notification targets a user, a role at a venue, or a whole venue.
type Notification struct {
	ID           string    `json:"id"`
	VenueID      *string   `json:"venue_id"`
	TargetRole   *Role     `json:"target_role"`
	TargetUserID *string   `json:"target_user_id"`
	Message      string    `json:"message"`
	Read         bool      `json:"read"`
	CreatedAt    time.Time `json:"created_at"`
}

// LogType classifies an audit log entry.
type LogType string

const (
	LogSell          LogType = "SELL"
	LogLowStock      LogType = "LOW_STOCK"
	LogNegativeStock LogType = "NEGATIVE_STOCK"
	LogOverdraft     LogType = "OVERDRAFT"
	LogOrderUndo     LogType = "ORDER_UNDO"
	LogQuestComplete LogType = "QUEST_COMPLETE"
	LogTopUp         LogType = "TOPUP"
	LogCheckIn       LogType = "CHECK_IN"
	LogCheckOut      LogType = "CHECK_OUT"
	LogRestock       LogType = "RESTOCK"
	LogRuleTriggered LogType = "RULE_TRIGGERED"
)

// LogEvent is an append-only audit record.
type LogEvent struct {
	ID        int64           `json:"id"`
	VenueID   *string         `json:"venue_id"`
	Type      LogType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
