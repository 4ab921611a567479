package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"venue-ledger-api/internal/models"
)

const orderColumns = `id, venue_id, staff_user_id, guest_session_id, items, total, payment_method, idempotency_key, created_at`

// InsertOrder inserts o and reports whether a row was written. A row already
// holding o.IdempotencyKey leaves the table unchanged and returns false.
func (q *Queries) InsertOrder(ctx context.Context, o *models.Order) (bool, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return false, fmt.Errorf("failed to encode order items: %w", err)
	}

	res, err := q.exec(ctx,
		`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING`,
		o.ID, o.VenueID, o.StaffUserID, o.GuestSessionID, string(items), o.Total,
		string(o.PaymentMethod), o.IdempotencyKey, formatTime(o.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert order: %w", classify(err))
	}
	return n == 1, nil
}

// GetOrder loads an order by id.
func (q *Queries) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	o, err := scanOrder(q.queryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if err != nil {
		return nil, scanErr(err, "order")
	}
	return o, nil
}

// GetOrderByIdempotencyKey loads the order recorded under key.
func (q *Queries) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	o, err := scanOrder(q.queryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE idempotency_key = ?`, key))
	if err != nil {
		return nil, scanErr(err, "order")
	}
	return o, nil
}

// ListOrders returns a venue's most recent orders first.
func (q *Queries) ListOrders(ctx context.Context, venueID string, limit int) ([]models.Order, error) {
	rows, err := q.query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE venue_id = ? ORDER BY created_at DESC LIMIT ?`,
		venueID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, classify(rows.Err())
}

// DeleteOrder removes an order and reports whether it existed.
func (q *Queries) DeleteOrder(ctx context.Context, id string) (bool, error) {
	res, err := q.exec(ctx, `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete order: %w", classify(err))
	}
	return n == 1, nil
}

func scanOrder(s scanner) (*models.Order, error) {
	var (
		o         models.Order
		staffID   sql.NullString
		sessionID sql.NullString
		items     string
		method    string
		key       sql.NullString
		createdAt string
	)
	if err := s.Scan(&o.ID, &o.VenueID, &staffID, &sessionID, &items, &o.Total, &method, &key, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
		return nil, fmt.Errorf("decode order items: %w", err)
	}
	var err error
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse order created_at: %w", err)
	}
	o.StaffUserID = nullString(staffID)
	o.GuestSessionID = nullString(sessionID)
	o.IdempotencyKey = nullString(key)
	o.PaymentMethod = models.PaymentMethod(method)
	return &o, nil
}
