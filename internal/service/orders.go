package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"venue-ledger-api/internal/common"
	"venue-ledger-api/internal/database"
	"venue-ledger-api/internal/features"
	"venue-ledger-api/internal/models"
	"venue-ledger-api/internal/tracing"
	"venue-ledger-api/internal/validation"
)

const orderListLimit = 50

// errDuplicateKey rolls back a checkout whose idempotency key is already taken.
var errDuplicateKey = errors.New("idempotency key already recorded")

// settlement collects what a committed checkout must report afterwards.
type settlement struct {
	lowStock  []models.InventoryItem
	negative  []models.InventoryItem
	guestID   string
	balance   int64
	overdraft bool
	xp        int64
	level     int
}

// CreateOrder runs a checkout. The order row, inventory decrements, session
// spend, wallet debit and XP award commit together or not at all. A repeated
// idempotency key returns the order recorded under it with no new effects.
func (s *Service) CreateOrder(ctx context.Context, staff models.Principal, req models.CreateOrderRequest) (_ *models.Order, err error) {
	ctx, span := tracing.Start(ctx, "service.CreateOrder", tracing.VenueID(req.VenueID))
	defer func() { tracing.End(span, err) }()

	key, err := validation.NormalizeIdempotencyKey(req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if key != nil {
		span.SetAttributes(attribute.String("order.idempotency_key", *key))
		if existing := s.lookupReplay(ctx, *key); existing != nil {
			span.SetAttributes(attribute.Bool("order.replayed", true))
			return sameVenue(existing, req.VenueID)
		}
	}

	items, total, err := validation.ValidateOrderRequest(&req)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:             uuid.NewString(),
		VenueID:        req.VenueID,
		GuestSessionID: req.GuestSessionID,
		Items:          items,
		Total:          total,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: key,
		CreatedAt:      s.now(),
	}
	if staff.UserID != "" {
		staffID := staff.UserID
		order.StaffUserID = &staffID
	}

	var fx settlement
	err = s.db.WithTx(ctx, func(ctx context.Context, tx *database.Tx) error {
		fx = settlement{}
		return s.settleOrder(ctx, tx, order, &fx)
	})
	if errors.Is(err, errDuplicateKey) {
		return s.replayFromStore(ctx, *key, req.VenueID)
	}
	if err != nil {
		return nil, abort("checkout", err)
	}

	span.SetAttributes(attribute.Int64("order.total", order.Total))
	s.afterOrder(ctx, order, &fx)
	return order, nil
}

func (s *Service) settleOrder(ctx context.Context, tx *database.Tx, order *models.Order, fx *settlement) error {
	var session *models.VenueSession
	if order.GuestSessionID != nil {
		sess, err := tx.GetSession(ctx, *order.GuestSessionID)
		if err != nil {
			return err
		}
		if sess.VenueID != order.VenueID {
			return common.Invalid("guest session belongs to another venue")
		}
		session = sess
	}

	if _, err := tx.GetVenue(ctx, order.VenueID); err != nil {
		return err
	}

	inserted, err := tx.InsertOrder(ctx, order)
	if err != nil {
		return err
	}
	if !inserted {
		return errDuplicateKey
	}

	for _, item := range order.Items {
		if item.InventoryItemID == nil {
			continue
		}
		inv, err := tx.AdjustStock(ctx, order.VenueID, *item.InventoryItemID, -item.Qty, order.CreatedAt)
		if err != nil {
			return err
		}
		if inv.Quantity < 0 {
			if s.policy.Stock == PolicyReject {
				return fmt.Errorf("%w: %s", common.ErrInsufficientStock, inv.Name)
			}
			fx.negative = append(fx.negative, *inv)
		}
		if inv.IsLowStock() {
			fx.lowStock = append(fx.lowStock, *inv)
		}
	}

	if session == nil {
		return nil
	}

	if _, err := tx.RecordSessionSpend(ctx, order.VenueID, session.ID, order.Total, 1); err != nil {
		return err
	}
	balance, err := debit(ctx, tx.Queries, session.UserID, order.Total)
	if err != nil {
		return err
	}
	if balance < 0 {
		if s.policy.Balance == PolicyReject {
			return common.ErrInsufficientFunds
		}
		fx.overdraft = true
	}
	fx.guestID = session.UserID
	fx.balance = balance
	fx.xp, fx.level, err = awardXP(ctx, tx.Queries, session.UserID, order.Total)
	return err
}

// afterOrder writes the audit trail and queues rule evaluation. Nothing here
// can fail the committed checkout.
func (s *Service) afterOrder(ctx context.Context, order *models.Order, fx *settlement) {
	venueID := order.VenueID
	s.audit(ctx, &venueID, models.LogSell, map[string]any{
		"order_id":       order.ID,
		"items":          order.Items,
		"total":          order.Total,
		"payment_method": order.PaymentMethod,
	})

	for _, inv := range fx.lowStock {
		s.audit(ctx, &venueID, models.LogLowStock, map[string]any{
			"item":          inv.Name,
			"qty":           inv.Quantity,
			"low_threshold": inv.LowThreshold,
		})
		qty := inv.Quantity
		s.triggerRules(ctx, venueID, models.TriggerInventory, models.TriggerContext{Item: inv.Name, Qty: &qty})
	}
	for _, inv := range fx.negative {
		s.audit(ctx, &venueID, models.LogNegativeStock, map[string]any{
			"order_id": order.ID,
			"item":     inv.Name,
			"qty":      inv.Quantity,
		})
	}
	if fx.overdraft {
		s.audit(ctx, &venueID, models.LogOverdraft, map[string]any{
			"order_id": order.ID,
			"user_id":  fx.guestID,
			"balance":  fx.balance,
		})
	}

	if s.features.IsEnabled(features.FeatureReplayCacheEnabled) {
		s.replay.Remember(ctx, order)
	}

	log.WithFields(log.Fields{
		"order_id": order.ID,
		"venue_id": venueID,
		"total":    order.Total,
		"items":    len(order.Items),
	}).Info("order committed")
}

func (s *Service) lookupReplay(ctx context.Context, key string) *models.Order {
	if !s.features.IsEnabled(features.FeatureReplayCacheEnabled) {
		return nil
	}
	return s.replay.Lookup(ctx, key)
}

// sameVenue returns a replayed order only to a retry for its own venue.
func sameVenue(existing *models.Order, venueID string) (*models.Order, error) {
	if existing.VenueID != venueID {
		return nil, fmt.Errorf("%w: idempotency key already used at another venue", common.ErrConflict)
	}
	return existing, nil
}

// replayFromStore answers a duplicate checkout from the committed row.
func (s *Service) replayFromStore(ctx context.Context, key, venueID string) (*models.Order, error) {
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()
	existing, err := s.db.GetOrderByIdempotencyKey(ctx, key)
	if err != nil {
		// The winning order was undone between our insert and this read.
		return nil, abort("checkout replay", err)
	}
	if s.features.IsEnabled(features.FeatureReplayCacheEnabled) {
		s.replay.Remember(ctx, existing)
	}
	log.WithFields(log.Fields{"order_id": existing.ID, "idempotency_key": key}).Info("checkout replayed")
	return sameVenue(existing, venueID)
}

// GetOrder loads one order.
func (s *Service) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()
	return s.db.GetOrder(ctx, id)
}

// ListOrders returns a venue's latest orders.
func (s *Service) ListOrders(ctx context.Context, venueID string) ([]models.Order, error) {
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()
	return s.db.ListOrders(ctx, venueID, orderListLimit)
}

// UndoOrder reverses a checkout younger than the undo window: stock is
// restored and the row deleted. Wallet and session spend are refunded only
// when the policy asks for it; XP is never taken back.
func (s *Service) UndoOrder(ctx context.Context, staff models.Principal, orderID string) (err error) {
	ctx, span := tracing.Start(ctx, "service.UndoOrder", tracing.OrderID(orderID))
	defer func() { tracing.End(span, err) }()

	var order *models.Order
	var refundedTo string
	err = s.db.WithTx(ctx, func(ctx context.Context, tx *database.Tx) error {
		refundedTo = ""
		o, err := tx.GetOrder(ctx, orderID)
		if errors.Is(err, common.ErrNotFound) {
			return common.Invalid("order not found")
		}
		if err != nil {
			return err
		}
		if s.now().Sub(o.CreatedAt) >= s.policy.UndoWindow {
			return common.ErrUndoExpired
		}
		deleted, err := tx.DeleteOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		if !deleted {
			return common.Invalid("order not found")
		}
		for _, item := range o.Items {
			if item.InventoryItemID == nil {
				continue
			}
			if _, err := tx.AdjustStock(ctx, o.VenueID, *item.InventoryItemID, item.Qty, s.now()); err != nil {
				return err
			}
		}
		if s.policy.RefundWalletOnUndo && o.GuestSessionID != nil {
			sess, err := tx.RecordSessionSpend(ctx, o.VenueID, *o.GuestSessionID, -o.Total, -1)
			if err != nil {
				return err
			}
			if o.Total > 0 {
				if _, err := credit(ctx, tx.Queries, sess.UserID, o.Total); err != nil {
					return err
				}
			}
			refundedTo = sess.UserID
		}
		order = o
		return nil
	})
	if err != nil {
		return abort("undo", err)
	}

	if order.IdempotencyKey != nil {
		s.replay.Forget(ctx, *order.IdempotencyKey)
	}
	payload := map[string]any{
		"order_id": order.ID,
		"items":    order.Items,
		"total":    order.Total,
		"staff_id": staff.UserID,
	}
	if refundedTo != "" {
		payload["refunded_user_id"] = refundedTo
	}
	venueID := order.VenueID
	s.audit(ctx, &venueID, models.LogOrderUndo, payload)
	log.WithField("order_id", order.ID).Info("order undone")
	return nil
}
