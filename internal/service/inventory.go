package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"venue-ledger-api/internal/common"
	"venue-ledger-api/internal/database"
	"venue-ledger-api/internal/models"
	"venue-ledger-api/internal/validation"
)

// Sell removes qty from an item without an order or wallet movement. The
// stock policy applies as in a checkout: reject rolls the decrement back,
// allow commits it and flags NEGATIVE_STOCK.
func (s *Service) Sell(ctx context.Context, staff models.Principal, venueID, itemID string, qty int64) (*models.InventoryItem, error) {
	if qty <= 0 {
		return nil, common.Invalid("qty must be positive")
	}
	var item *models.InventoryItem
	err := s.db.WithTx(ctx, func(ctx context.Context, tx *database.Tx) error {
		inv, err := tx.AdjustStock(ctx, venueID, itemID, -qty, s.now())
		if err != nil {
			return err
		}
		if inv.Quantity < 0 && s.policy.Stock == PolicyReject {
			return fmt.Errorf("%w: %s", common.ErrInsufficientStock, inv.Name)
		}
		item = inv
		return nil
	})
	if err != nil {
		return nil, abort("sell", err)
	}

	s.audit(ctx, &venueID, models.LogSell, map[string]any{
		"item":      item.Name,
		"item_id":   item.ID,
		"amount":    qty,
		"qty_after": item.Quantity,
		"staff_id":  staff.UserID,
	})
	if item.Quantity < 0 {
		s.audit(ctx, &venueID, models.LogNegativeStock, map[string]any{
			"item": item.Name,
			"qty":  item.Quantity,
		})
	}
	if item.IsLowStock() {
		s.lowStock(ctx, item)
	}
	return item, nil
}

// Increment atomically adds qty to an item.
func (s *Service) Increment(ctx context.Context, venueID, itemID string, qty int64) (*models.InventoryItem, error) {
	if qty <= 0 {
		return nil, common.Invalid("qty must be positive")
	}
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()
	return s.db.AdjustStock(ctx, venueID, itemID, qty, s.now())
}

// Restock adds stock and records who did it.
func (s *Service) Restock(ctx context.Context, staff models.Principal, venueID, itemID string, addQty int64) (*models.InventoryItem, error) {
	if addQty <= 0 {
		return nil, common.Invalid("add_qty must be positive")
	}
	item, err := s.Increment(ctx, venueID, itemID, addQty)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, &venueID, models.LogRestock, map[string]any{
		"item":     item.Name,
		"item_id":  item.ID,
		"added":    addQty,
		"qty":      item.Quantity,
		"staff_id": staff.UserID,
	})
	return item, nil
}

func (s *Service) lowStock(ctx context.Context, item *models.InventoryItem) {
	venueID := item.VenueID
	s.audit(ctx, &venueID, models.LogLowStock, map[string]any{
		"item":          item.Name,
		"qty":           item.Quantity,
		"low_threshold": item.LowThreshold,
	})
	qty := item.Quantity
	s.triggerRules(ctx, venueID, models.TriggerInventory, models.TriggerContext{Item: item.Name, Qty: &qty})
}

// ListInventory returns a venue's stock.
func (s *Service) ListInventory(ctx context.Context, venueID string) ([]models.InventoryItem, error) {
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()
	return s.db.ListInventory(ctx, venueID)
}

// CreateInventoryItem adds a stock line to a venue.
func (s *Service) CreateInventoryItem(ctx context.Context, venueID string, req models.CreateInventoryItemRequest) (*models.InventoryItem, error) {
	if err := validation.ValidateUUID(venueID, "venue_id"); err != nil {
		return nil, err
	}
	if err := validation.ValidateNewInventoryItem(&req); err != nil {
		return nil, err
	}
	item := &models.InventoryItem{
		ID:           uuid.NewString(),
		VenueID:      venueID,
		Name:         req.Name,
		Quantity:     req.Quantity,
		LowThreshold: *req.LowThreshold,
		UpdatedAt:    s.now(),
	}
	err := s.db.WithTx(ctx, func(ctx context.Context, tx *database.Tx) error {
		if _, err := tx.GetVenue(ctx, venueID); err != nil {
			return err
		}
		return tx.CreateInventoryItem(ctx, item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateInventoryItem patches a stock line. Setting qty directly is a stocktake.
func (s *Service) UpdateInventoryItem(ctx context.Context, venueID, itemID string, req models.UpdateInventoryItemRequest) (*models.InventoryItem, error) {
	if err := validation.ValidateInventoryPatch(&req); err != nil {
		return nil, err
	}
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()
	return s.db.UpdateInventoryItem(ctx, venueID, itemID, req, s.now())
}
