package database

import (
	"context"
	"fmt"
	"time"

	"venue-ledger-api/internal/models"
)

const inventoryColumns = `id, venue_id, item, qty, low_threshold, updated_at`

// CreateInventoryItem inserts an inventory line.
func (q *Queries) CreateInventoryItem(ctx context.Context, item *models.InventoryItem) error {
	_, err := q.exec(ctx,
		`INSERT INTO inventory (`+inventoryColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.VenueID, item.Name, item.Quantity, item.LowThreshold, formatTime(item.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert inventory item: %w", err)
	}
	return nil
}

// GetInventoryItem loads an item scoped to its venue.
func (q *Queries) GetInventoryItem(ctx context.Context, venueID, id string) (*models.InventoryItem, error) {
	row := q.queryRow(ctx,
		`SELECT `+inventoryColumns+` FROM inventory WHERE id = ? AND venue_id = ?`, id, venueID)
	item, err := scanInventoryItem(row)
	if err != nil {
		return nil, scanErr(err, "inventory item")
	}
	return item, nil
}

// ListInventory returns a venue's items by name.
func (q *Queries) ListInventory(ctx context.Context, venueID string) ([]models.InventoryItem, error) {
	rows, err := q.query(ctx,
		`SELECT `+inventoryColumns+` FROM inventory WHERE venue_id = ? ORDER BY item`, venueID)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}
	defer rows.Close()

	items := []models.InventoryItem{}
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inventory item: %w", err)
		}
		items = append(items, *item)
	}
	return items, classify(rows.Err())
}

// UpdateInventoryItem applies the non-nil fields of patch.
func (q *Queries) UpdateInventoryItem(ctx context.Context, venueID, id string, patch models.UpdateInventoryItemRequest, now time.Time) (*models.InventoryItem, error) {
	row := q.queryRow(ctx,
		`UPDATE inventory SET
			item = COALESCE(?, item),
			qty = COALESCE(?, qty),
			low_threshold = COALESCE(?, low_threshold),
			updated_at = ?
		WHERE id = ? AND venue_id = ?
		RETURNING `+inventoryColumns,
		patch.Name, patch.Quantity, patch.LowThreshold, formatTime(now), id, venueID,
	)
	item, err := scanInventoryItem(row)
	if err != nil {
		return nil, scanErr(err, "inventory item")
	}
	return item, nil
}

// AdjustStock atomically adds delta to qty. The venue must match.
// No floor is enforced here; callers apply the stock policy.
func (q *Queries) AdjustStock(ctx context.Context, venueID, id string, delta int64, now time.Time) (*models.InventoryItem, error) {
	row := q.queryRow(ctx,
		`UPDATE inventory SET qty = qty + ?, updated_at = ?
		WHERE id = ? AND venue_id = ?
		RETURNING `+inventoryColumns,
		delta, formatTime(now), id, venueID,
	)
	item, err := scanInventoryItem(row)
	if err != nil {
		return nil, scanErr(err, "inventory item")
	}
	return item, nil
}

func scanInventoryItem(s scanner) (*models.InventoryItem, error) {
	var (
		item      models.InventoryItem
		updatedAt string
	)
	if err := s.Scan(&item.ID, &item.VenueID, &item.Name, &item.Quantity, &item.LowThreshold, &updatedAt); err != nil {
		return nil, err
	}
	t, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse inventory updated_at: %w", err)
	}
	item.UpdatedAt = t
	return &item, nil
}
