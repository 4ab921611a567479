package database

import (
	"context"
	"database/sql"
	"fmt"

	"venue-ledger-api/internal/models"
)

const venueColumns = `id, name, city, capacity, created_at`

// CreateVenue inserts a venue. pin may be empty.
func (q *Queries) CreateVenue(ctx context.Context, v *models.Venue, pin string) error {
	var pinArg any
	if pin != "" {
		pinArg = pin
	}
	_, err := q.exec(ctx,
		`INSERT INTO venues (id, name, city, pin, capacity, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.Name, v.City, pinArg, v.Capacity, formatTime(v.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert venue: %w", err)
	}
	return nil
}

// GetVenue loads a venue by id.
func (q *Queries) GetVenue(ctx context.Context, id string) (*models.Venue, error) {
	v, err := scanVenue(q.queryRow(ctx, `SELECT `+venueColumns+` FROM venues WHERE id = ?`, id))
	if err != nil {
		return nil, scanErr(err, "venue")
	}
	return v, nil
}

// FindVenueByName returns the oldest venue called name.
func (q *Queries) FindVenueByName(ctx context.Context, name string) (*models.Venue, error) {
	v, err := scanVenue(q.queryRow(ctx,
		`SELECT `+venueColumns+` FROM venues WHERE name = ? ORDER BY created_at LIMIT 1`, name))
	if err != nil {
		return nil, scanErr(err, "venue")
	}
	return v, nil
}

// ListVenues returns every venue, newest first.
func (q *Queries) ListVenues(ctx context.Context) ([]models.Venue, error) {
	rows, err := q.query(ctx, `SELECT `+venueColumns+` FROM venues ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query venues: %w", err)
	}
	defer rows.Close()

	venues := []models.Venue{}
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan venue: %w", err)
		}
		venues = append(venues, *v)
	}
	return venues, classify(rows.Err())
}

func scanVenue(s scanner) (*models.Venue, error) {
	var (
		v         models.Venue
		capacity  sql.NullInt64
		createdAt string
	)
	if err := s.Scan(&v.ID, &v.Name, &v.City, &capacity, &createdAt); err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse venue created_at: %w", err)
	}
	v.CreatedAt = t
	v.Capacity = nullInt(capacity)
	return &v, nil
}
