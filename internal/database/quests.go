package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"venue-ledger-api/internal/models"
)

const questColumns = `id, venue_id, title, description, conditions, xp_reward, nc_reward, min_level,
	starts_at, ends_at, max_completions, cooldown_hours, active, created_at`

// CreateQuest inserts a quest.
func (q *Queries) CreateQuest(ctx context.Context, quest *models.Quest) error {
	_, err := q.exec(ctx,
		`INSERT INTO quests (`+questColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		quest.ID, quest.VenueID, quest.Title, quest.Description, conditionsText(quest.Conditions),
		quest.XPReward, quest.NCReward, quest.MinLevel, nullTime(quest.StartsAt), nullTime(quest.EndsAt),
		quest.MaxCompletions, quest.CooldownHours, boolInt(quest.Active), formatTime(quest.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert quest: %w", err)
	}
	return nil
}

// UpdateQuest overwrites every mutable column of quest.
func (q *Queries) UpdateQuest(ctx context.Context, quest *models.Quest) error {
	res, err := q.exec(ctx,
		`UPDATE quests SET title = ?, description = ?, conditions = ?, xp_reward = ?, nc_reward = ?,
			min_level = ?, starts_at = ?, ends_at = ?, max_completions = ?, cooldown_hours = ?, active = ?
		WHERE id = ?`,
		quest.Title, quest.Description, conditionsText(quest.Conditions), quest.XPReward, quest.NCReward,
		quest.MinLevel, nullTime(quest.StartsAt), nullTime(quest.EndsAt), quest.MaxCompletions,
		quest.CooldownHours, boolInt(quest.Active), quest.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update quest: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return scanErr(sql.ErrNoRows, "quest")
	}
	return nil
}

// GetQuest loads a quest by id.
func (q *Queries) GetQuest(ctx context.Context, id string) (*models.Quest, error) {
	quest, err := scanQuest(q.queryRow(ctx, `SELECT `+questColumns+` FROM quests WHERE id = ?`, id))
	if err != nil {
		return nil, scanErr(err, "quest")
	}
	return quest, nil
}

// ListAvailableQuests returns active quests at venueID whose window contains
// now and whose min_level is at most level.
func (q *Queries) ListAvailableQuests(ctx context.Context, venueID string, level int, now time.Time) ([]models.Quest, error) {
	ts := formatTime(now)
	rows, err := q.query(ctx,
		`SELECT `+questColumns+` FROM quests
		WHERE venue_id = ? AND active = 1 AND min_level <= ?
			AND (starts_at IS NULL OR starts_at <= ?)
			AND (ends_at IS NULL OR ends_at >= ?)
		ORDER BY created_at DESC`,
		venueID, level, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to query quests: %w", err)
	}
	defer rows.Close()

	quests := []models.Quest{}
	for rows.Next() {
		quest, err := scanQuest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quest: %w", err)
		}
		quests = append(quests, *quest)
	}
	return quests, classify(rows.Err())
}

// CountCompletions counts a user's completions of a quest.
func (q *Queries) CountCompletions(ctx context.Context, questID, userID string) (int64, error) {
	var n int64
	err := q.queryRow(ctx,
		`SELECT COUNT(*) FROM quest_completions WHERE quest_id = ? AND user_id = ?`, questID, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count completions: %w", classify(err))
	}
	return n, nil
}

// LastCompletion returns when the user last completed the quest, or nil.
func (q *Queries) LastCompletion(ctx context.Context, questID, userID string) (*time.Time, error) {
	var last sql.NullString
	err := q.queryRow(ctx,
		`SELECT MAX(completed_at) FROM quest_completions WHERE quest_id = ? AND user_id = ?`, questID, userID,
	).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to load last completion: %w", classify(err))
	}
	return parseNullTime(last)
}

// ListUserCompletions returns a user's latest completions with the quest's
// title and rewards.
func (q *Queries) ListUserCompletions(ctx context.Context, userID string, limit int) ([]models.CompletionRecord, error) {
	rows, err := q.query(ctx,
		`SELECT qc.quest_id, q.title, q.xp_reward, q.nc_reward, qc.completed_at
		FROM quest_completions qc JOIN quests q ON q.id = qc.quest_id
		WHERE qc.user_id = ? ORDER BY qc.completed_at DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer rows.Close()

	out := []models.CompletionRecord{}
	for rows.Next() {
		var (
			c           models.CompletionRecord
			completedAt string
		)
		if err := rows.Scan(&c.QuestID, &c.Title, &c.XPReward, &c.NCReward, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		if c.CompletedAt, err = parseTime(completedAt); err != nil {
			return nil, fmt.Errorf("parse completion completed_at: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertCompletion records a completion. When maxCompletions is set the row
// is written only while the user's count stays below it; the bool reports
// whether it was written.
func (q *Queries) InsertCompletion(ctx context.Context, c *models.QuestCompletion, maxCompletions *int64) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if maxCompletions == nil {
		res, err = q.exec(ctx,
			`INSERT INTO quest_completions (id, quest_id, user_id, venue_session_id, completed_at)
			VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.QuestID, c.UserID, c.VenueSessionID, formatTime(c.CompletedAt))
	} else {
		res, err = q.exec(ctx,
			`INSERT INTO quest_completions (id, quest_id, user_id, venue_session_id, completed_at)
			SELECT ?, ?, ?, ?, ?
			WHERE (SELECT COUNT(*) FROM quest_completions WHERE quest_id = ? AND user_id = ?) < ?`,
			c.ID, c.QuestID, c.UserID, c.VenueSessionID, formatTime(c.CompletedAt),
			c.QuestID, c.UserID, *maxCompletions)
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert completion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert completion: %w", classify(err))
	}
	return n == 1, nil
}

func conditionsText(raw []byte) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func scanQuest(s scanner) (*models.Quest, error) {
	var (
		quest      models.Quest
		conditions string
		minLevel   int64
		startsAt   sql.NullString
		endsAt     sql.NullString
		maxComp    sql.NullInt64
		cooldown   sql.NullInt64
		active     int64
		createdAt  string
	)
	if err := s.Scan(&quest.ID, &quest.VenueID, &quest.Title, &quest.Description, &conditions,
		&quest.XPReward, &quest.NCReward, &minLevel, &startsAt, &endsAt, &maxComp, &cooldown,
		&active, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if quest.StartsAt, err = parseNullTime(startsAt); err != nil {
		return nil, fmt.Errorf("parse quest starts_at: %w", err)
	}
	if quest.EndsAt, err = parseNullTime(endsAt); err != nil {
		return nil, fmt.Errorf("parse quest ends_at: %w", err)
	}
	if quest.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse quest created_at: %w", err)
	}
	quest.Conditions = []byte(conditions)
	quest.MinLevel = int(minLevel)
	quest.MaxCompletions = nullInt(maxComp)
	quest.CooldownHours = nullInt(cooldown)
	quest.Active = active != 0
	return &quest, nil
}
