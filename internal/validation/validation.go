package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"venue-ledger-api/internal/common"
	"venue-ledger-api/internal/models"
)

const (
	maxItemsPerOrder  = 100
	maxNameLength     = 120
	maxMessageLength  = 1000
	maxIdempotencyKey = 200
	maxTopUpAmount    = 1_000_000
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Unwrap places validation failures in the InvalidRequest class.
func (e *ValidationError) Unwrap() error {
	return common.ErrInvalidRequest
}

func fieldError(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

func ValidateUUID(id, fieldName string) error {
	if id == "" {
		return fieldError(fieldName, "is required")
	}
	if _, err := uuid.Parse(SanitizeString(id)); err != nil {
		return fieldError(fieldName, "must be a valid UUID")
	}
	return nil
}

func validateOptionalUUID(id *string, fieldName string) error {
	if id == nil {
		return nil
	}
	return ValidateUUID(*id, fieldName)
}

func validateName(name, fieldName string) (string, error) {
	name = SanitizeString(name)
	if name == "" {
		return "", fieldError(fieldName, "is required")
	}
	if len(name) > maxNameLength {
		return "", fieldError(fieldName, fmt.Sprintf("cannot exceed %d characters", maxNameLength))
	}
	return name, nil
}

// NormalizeIdempotencyKey trims the key and maps blank to nil.
func NormalizeIdempotencyKey(key *string) (*string, error) {
	if key == nil {
		return nil, nil
	}
	k := SanitizeString(*key)
	if k == "" {
		return nil, nil
	}
	if len(k) > maxIdempotencyKey {
		return nil, fieldError("idempotency_key", fmt.Sprintf("cannot exceed %d characters", maxIdempotencyKey))
	}
	return &k, nil
}

// ValidateOrderRequest checks a checkout and returns its normalized items
// and server-side total. Missing qty means 1, missing price means 0.
func ValidateOrderRequest(req *models.CreateOrderRequest) ([]models.OrderItem, int64, error) {
	if err := ValidateUUID(req.VenueID, "venue_id"); err != nil {
		return nil, 0, err
	}
	if len(req.Items) == 0 {
		return nil, 0, fieldError("items", "at least one item is required")
	}
	if len(req.Items) > maxItemsPerOrder {
		return nil, 0, fieldError("items", fmt.Sprintf("cannot exceed %d items", maxItemsPerOrder))
	}
	if err := validateOptionalUUID(req.GuestSessionID, "guest_session_id"); err != nil {
		return nil, 0, err
	}

	switch req.PaymentMethod {
	case "":
		req.PaymentMethod = models.PaymentCash
	case models.PaymentCash, models.PaymentCard, models.PaymentWallet:
	default:
		return nil, 0, fieldError("payment_method", "must be wallet, cash or card")
	}

	items := make([]models.OrderItem, len(req.Items))
	var total int64
	for i, item := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		if item.Qty < 0 {
			return nil, 0, fieldError(field+".qty", "must be positive")
		}
		if item.Qty == 0 {
			item.Qty = 1
		}
		if item.UnitPrice < 0 {
			return nil, 0, fieldError(field+".price", "must be non-negative")
		}
		if item.UnitPrice > 0 && item.Qty > math.MaxInt64/item.UnitPrice {
			return nil, 0, fieldError(field, "line total overflows")
		}
		if err := validateOptionalUUID(item.InventoryItemID, field+".inventory_item_id"); err != nil {
			return nil, 0, err
		}
		item.Name = SanitizeString(item.Name)
		items[i] = item
		if total > math.MaxInt64-item.LineTotal() {
			return nil, 0, fieldError("items", "order total overflows")
		}
		total += item.LineTotal()
	}

	return items, total, nil
}

// ValidateAmount accepts positive whole NC amounts.
func ValidateAmount(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 || amount != math.Trunc(amount) {
		return 0, common.ErrInvalidAmount
	}
	if amount > maxTopUpAmount {
		return 0, fmt.Errorf("%w: cannot exceed %d", common.ErrInvalidAmount, maxTopUpAmount)
	}
	return int64(amount), nil
}

// ValidateTopUp checks amount and that at least one target is given.
func ValidateTopUp(req models.TopUpRequest) (int64, error) {
	amount, err := ValidateAmount(req.Amount)
	if err != nil {
		return 0, err
	}
	if blank(req.SessionID) && blank(req.UIDTag) && blank(req.UserID) {
		return 0, fieldError("target", "one of session_id, uid_tag or user_id is required")
	}
	if !blank(req.SessionID) {
		if err := ValidateUUID(*req.SessionID, "session_id"); err != nil {
			return 0, err
		}
	}
	if !blank(req.UserID) {
		if err := ValidateUUID(*req.UserID, "user_id"); err != nil {
			return 0, err
		}
	}
	return amount, nil
}

func blank(s *string) bool {
	return s == nil || SanitizeString(*s) == ""
}

// ValidateNewInventoryItem checks a new inventory line and applies the default threshold.
func ValidateNewInventoryItem(req *models.CreateInventoryItemRequest) error {
	name, err := validateName(req.Name, "item")
	if err != nil {
		return err
	}
	req.Name = name
	if req.Quantity < 0 {
		return fieldError("qty", "must be non-negative")
	}
	if req.LowThreshold == nil {
		def := int64(5)
		req.LowThreshold = &def
	}
	if *req.LowThreshold < 0 {
		return fieldError("low_threshold", "must be non-negative")
	}
	return nil
}

// ValidateInventoryPatch checks an inventory update.
func ValidateInventoryPatch(req *models.UpdateInventoryItemRequest) error {
	if req.Name != nil {
		name, err := validateName(*req.Name, "item")
		if err != nil {
			return err
		}
		req.Name = &name
	}
	if req.LowThreshold != nil && *req.LowThreshold < 0 {
		return fieldError("low_threshold", "must be non-negative")
	}
	return nil
}

// ValidateQuest checks a quest after defaults and patches have been applied.
func ValidateQuest(q *models.Quest) error {
	title, err := validateName(q.Title, "title")
	if err != nil {
		return err
	}
	q.Title = title
	q.Description = SanitizeString(q.Description)
	if len(q.Description) > maxMessageLength {
		return fieldError("description", fmt.Sprintf("cannot exceed %d characters", maxMessageLength))
	}
	if q.XPReward < 0 {
		return fieldError("xp_reward", "must be non-negative")
	}
	if q.NCReward < 0 {
		return fieldError("nc_reward", "must be non-negative")
	}
	if q.MinLevel < 0 {
		return fieldError("min_level", "must be non-negative")
	}
	if q.StartsAt != nil && q.EndsAt != nil && q.EndsAt.Before(*q.StartsAt) {
		return fieldError("ends_at", "must not be before starts_at")
	}
	// Zero caps and cooldowns mean none.
	if q.MaxCompletions != nil && *q.MaxCompletions <= 0 {
		q.MaxCompletions = nil
	}
	if q.CooldownHours != nil && *q.CooldownHours <= 0 {
		q.CooldownHours = nil
	}
	if len(q.Conditions) > 0 && !json.Valid(q.Conditions) {
		return fieldError("conditions", "must be valid JSON")
	}
	return nil
}

// ValidateRule checks a rule after defaults and patches have been applied.
func ValidateRule(r *models.AutomationRule) error {
	name, err := validateName(r.Name, "name")
	if err != nil {
		return err
	}
	r.Name = name
	if !r.TriggerType.Valid() {
		return fieldError("trigger_type", "must be inventory or event")
	}
	if len(r.Actions) == 0 {
		return fieldError("actions", "at least one action is required")
	}
	return nil
}

// ValidateNotification checks a manual notification.
func ValidateNotification(req *models.CreateNotificationRequest) error {
	req.Message = SanitizeString(req.Message)
	if req.Message == "" {
		return fieldError("message", "is required")
	}
	if len(req.Message) > maxMessageLength {
		return fieldError("message", fmt.Sprintf("cannot exceed %d characters", maxMessageLength))
	}
	if req.TargetRole != nil && !req.TargetRole.Valid() {
		return fieldError("target_role", "unknown role")
	}
	if req.TargetUserID == nil && req.VenueID == nil {
		return fieldError("venue_id", "required unless target_user_id is set")
	}
	return nil
}

// ValidateLog checks a staff-submitted log entry.
func ValidateLog(req *models.CreateLogRequest) error {
	if err := ValidateUUID(req.VenueID, "venue_id"); err != nil {
		return err
	}
	t := models.LogType(strings.ToUpper(SanitizeString(string(req.Type))))
	if t == "" {
		return fieldError("type", "is required")
	}
	req.Type = t
	if len(req.Payload) > 0 && !json.Valid(req.Payload) {
		return fieldError("payload", "must be valid JSON")
	}
	return nil
}
