package database

import (
	"context"
	"database/sql"
	"fmt"

	"venue-ledger-api/internal/models"
)

const userColumns = `id, role, venue_id, wallet_balance, xp, level, created_at`

// CreateUser inserts a user row.
func (q *Queries) CreateUser(ctx context.Context, u *models.User) error {
	_, err := q.exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, string(u.Role), u.VenueID, u.WalletBalance, u.XP, u.Level, formatTime(u.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUser loads a user by id.
func (q *Queries) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := q.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, scanErr(err, "user")
	}
	return u, nil
}

// AddXP atomically adds amount to the user's xp and returns the new total.
func (q *Queries) AddXP(ctx context.Context, userID string, amount int64) (int64, error) {
	var xp int64
	err := q.queryRow(ctx,
		`UPDATE users SET xp = xp + ? WHERE id = ? RETURNING xp`, amount, userID,
	).Scan(&xp)
	if err != nil {
		return 0, scanErr(err, "user")
	}
	return xp, nil
}

// SetLevel stores a level derived from xp.
func (q *Queries) SetLevel(ctx context.Context, userID string, level int) error {
	_, err := q.exec(ctx, `UPDATE users SET level = ? WHERE id = ?`, level, userID)
	if err != nil {
		return fmt.Errorf("failed to set level: %w", err)
	}
	return nil
}

// AdjustWallet atomically adds delta to the balance and returns the new balance.
func (q *Queries) AdjustWallet(ctx context.Context, userID string, delta int64) (int64, error) {
	var balance int64
	err := q.queryRow(ctx,
		`UPDATE users SET wallet_balance = wallet_balance + ? WHERE id = ? RETURNING wallet_balance`,
		delta, userID,
	).Scan(&balance)
	if err != nil {
		return 0, scanErr(err, "user")
	}
	return balance, nil
}

func scanUser(s scanner) (*models.User, error) {
	var (
		u         models.User
		role      string
		venueID   sql.NullString
		level     int64
		createdAt string
	)
	if err := s.Scan(&u.ID, &role, &venueID, &u.WalletBalance, &u.XP, &level, &createdAt); err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse user created_at: %w", err)
	}
	u.Role = models.Role(role)
	u.VenueID = nullString(venueID)
	u.Level = int(level)
	u.CreatedAt = t
	return &u, nil
}
