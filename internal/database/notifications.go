package database

import (
	"context"
	"database/sql"
	"fmt"

	"venue-ledger-api/internal/models"
)

const notificationColumns = `id, venue_id, target_role, target_user_id, message, read, created_at`

// CreateNotification inserts an unread notification.
func (q *Queries) CreateNotification(ctx context.Context, n *models.Notification) error {
	var role any
	if n.TargetRole != nil {
		role = string(*n.TargetRole)
	}
	_, err := q.exec(ctx,
		`INSERT INTO notifications (`+notificationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.VenueID, role, n.TargetUserID, n.Message, boolInt(n.Read), formatTime(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// ListNotificationsFor returns up to limit unread notifications addressed to
// the user, to the role at the venue, or to the whole venue. Newest first.
func (q *Queries) ListNotificationsFor(ctx context.Context, userID string, role models.Role, venueID string, limit int) ([]models.Notification, error) {
	rows, err := q.query(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		WHERE read = 0 AND (
			target_user_id = ?
			OR (target_role = ? AND venue_id = ?)
			OR (target_role IS NULL AND target_user_id IS NULL AND venue_id = ?)
		)
		ORDER BY created_at DESC LIMIT ?`,
		userID, string(role), venueID, venueID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		var (
			n         models.Notification
			venue     sql.NullString
			target    sql.NullString
			user      sql.NullString
			read      int64
			createdAt string
		)
		if err := rows.Scan(&n.ID, &venue, &target, &user, &n.Message, &read, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if n.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse notification created_at: %w", err)
		}
		n.VenueID = nullString(venue)
		n.TargetUserID = nullString(user)
		if target.Valid {
			r := models.Role(target.String)
			n.TargetRole = &r
		}
		n.Read = read != 0
		out = append(out, n)
	}
	return out, classify(rows.Err())
}

// MarkNotificationRead flags a notification as read.
func (q *Queries) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := q.exec(ctx, `UPDATE notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return scanErr(sql.ErrNoRows, "notification")
	}
	return nil
}
