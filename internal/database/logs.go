package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"venue-ledger-api/internal/models"
)

// InsertLog appends an audit entry. payload is JSON-encoded.
func (q *Queries) InsertLog(ctx context.Context, venueID *string, logType models.LogType, payload any, now time.Time) error {
	var body []byte
	switch p := payload.(type) {
	case nil:
		body = []byte("{}")
	case json.RawMessage:
		body = p
		if len(body) == 0 {
			body = []byte("{}")
		}
	default:
		var err error
		if body, err = json.Marshal(p); err != nil {
			return fmt.Errorf("failed to encode log payload: %w", err)
		}
	}
	_, err := q.exec(ctx,
		`INSERT INTO logs (venue_id, type, payload, created_at) VALUES (?, ?, ?, ?)`,
		venueID, string(logType), string(body), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert log: %w", err)
	}
	return nil
}

// ListLogs returns a venue's newest entries first.
func (q *Queries) ListLogs(ctx context.Context, f models.LogFilter) ([]models.LogEvent, error) {
	query := `SELECT id, venue_id, type, payload, created_at FROM logs WHERE venue_id = ?`
	args := []any{f.VenueID}
	if f.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, formatTime(*f.Since))
	}
	if f.Type != nil {
		query += ` AND type = ?`
		args = append(args, string(*f.Type))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	out := []models.LogEvent{}
	for rows.Next() {
		var (
			e         models.LogEvent
			venue     sql.NullString
			logType   string
			payload   string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &venue, &logType, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse log created_at: %w", err)
		}
		e.VenueID = nullString(venue)
		e.Type = models.LogType(logType)
		e.Payload = json.RawMessage(payload)
		out = append(out, e)
	}
	return out, classify(rows.Err())
}
