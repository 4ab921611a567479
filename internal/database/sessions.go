package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"venue-ledger-api/internal/models"
)

const sessionColumns = `id, venue_id, user_id, uid_tag, started_at, ended_at, total_spend, interactions_count`

// OpenSession inserts a new open session. A second open session for the
// same user and venue fails with ErrConflict.
func (q *Queries) OpenSession(ctx context.Context, s *models.VenueSession) error {
	_, err := q.exec(ctx,
		`INSERT INTO venue_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, NULL, ?, ?)`,
		s.ID, s.VenueID, s.UserID, s.UIDTag, formatTime(s.StartedAt), s.TotalSpend, s.InteractionsCount,
	)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	return nil
}

// CloseOpenSessions ends the user's open sessions, at one venue when venueID
// is set, and returns the sessions it closed.
func (q *Queries) CloseOpenSessions(ctx context.Context, userID string, venueID *string, endedAt time.Time) ([]models.VenueSession, error) {
	query := `UPDATE venue_sessions SET ended_at = ? WHERE user_id = ? AND ended_at IS NULL`
	args := []any{formatTime(endedAt), userID}
	if venueID != nil {
		query += ` AND venue_id = ?`
		args = append(args, *venueID)
	}
	rows, err := q.query(ctx, query+` RETURNING `+sessionColumns, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to close sessions: %w", err)
	}
	return collectSessions(rows)
}

// GetSession loads a session by id.
func (q *Queries) GetSession(ctx context.Context, id string) (*models.VenueSession, error) {
	row := q.queryRow(ctx, `SELECT `+sessionColumns+` FROM venue_sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err != nil {
		return nil, scanErr(err, "session")
	}
	return s, nil
}

// FindSessionByTag returns the most recent session carrying tag, open ones only when openOnly.
func (q *Queries) FindSessionByTag(ctx context.Context, tag string, openOnly bool) (*models.VenueSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM venue_sessions WHERE uid_tag = ?`
	if openOnly {
		query += ` AND ended_at IS NULL`
	}
	row := q.queryRow(ctx, query+` ORDER BY started_at DESC LIMIT 1`, tag)
	s, err := scanSession(row)
	if err != nil {
		return nil, scanErr(err, "session")
	}
	return s, nil
}

// FindOpenSession returns the user's most recent open session at any venue.
func (q *Queries) FindOpenSession(ctx context.Context, userID string) (*models.VenueSession, error) {
	row := q.queryRow(ctx,
		`SELECT `+sessionColumns+` FROM venue_sessions
		WHERE user_id = ? AND ended_at IS NULL ORDER BY started_at DESC LIMIT 1`, userID)
	s, err := scanSession(row)
	if err != nil {
		return nil, scanErr(err, "session")
	}
	return s, nil
}

// RecordSessionSpend atomically adds spend and interactions to a session at venueID.
func (q *Queries) RecordSessionSpend(ctx context.Context, venueID, id string, spend, interactions int64) (*models.VenueSession, error) {
	row := q.queryRow(ctx,
		`UPDATE venue_sessions
		SET total_spend = total_spend + ?, interactions_count = interactions_count + ?
		WHERE id = ? AND venue_id = ?
		RETURNING `+sessionColumns,
		spend, interactions, id, venueID,
	)
	s, err := scanSession(row)
	if err != nil {
		return nil, scanErr(err, "session")
	}
	return s, nil
}

// CountOpenSessions is the venue headcount.
func (q *Queries) CountOpenSessions(ctx context.Context, venueID string) (int64, error) {
	var n int64
	err := q.queryRow(ctx,
		`SELECT COUNT(*) FROM venue_sessions WHERE venue_id = ? AND ended_at IS NULL`, venueID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", classify(err))
	}
	return n, nil
}

func collectSessions(rows *sql.Rows) ([]models.VenueSession, error) {
	defer rows.Close()
	var out []models.VenueSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, *s)
	}
	return out, classify(rows.Err())
}

func scanSession(sc scanner) (*models.VenueSession, error) {
	var (
		s         models.VenueSession
		uidTag    sql.NullString
		startedAt string
		endedAt   sql.NullString
	)
	if err := sc.Scan(&s.ID, &s.VenueID, &s.UserID, &uidTag, &startedAt, &endedAt, &s.TotalSpend, &s.InteractionsCount); err != nil {
		return nil, err
	}
	var err error
	if s.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse session started_at: %w", err)
	}
	if s.EndedAt, err = parseNullTime(endedAt); err != nil {
		return nil, fmt.Errorf("parse session ended_at: %w", err)
	}
	s.UIDTag = nullString(uidTag)
	return &s, nil
}

// ListUserSessions returns a user's visits, newest first, skipping offset rows.
func (q *Queries) ListUserSessions(ctx context.Context, userID string, limit, offset int) ([]models.VenueSession, error) {
	rows, err := q.query(ctx,
		`SELECT `+sessionColumns+` FROM venue_sessions WHERE user_id = ?
		ORDER BY started_at DESC, id LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	return collectSessions(rows)
}
