package database

import (
	"context"
	"fmt"
	"strings"
)

// schemaQueries is idempotent and runs on every open. Types are limited to
// TEXT and BIGINT so the same statements work on SQLite and Postgres.
var schemaQueries = []string{
	`CREATE TABLE IF NOT EXISTS venues (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		city TEXT NOT NULL DEFAULT '',
		pin TEXT,
		capacity BIGINT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		venue_id TEXT REFERENCES venues(id),
		wallet_balance BIGINT NOT NULL DEFAULT 0,
		xp BIGINT NOT NULL DEFAULT 0,
		level BIGINT NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS inventory (
		id TEXT PRIMARY KEY,
		venue_id TEXT NOT NULL REFERENCES venues(id),
		item TEXT NOT NULL,
		qty BIGINT NOT NULL DEFAULT 0,
		low_threshold BIGINT NOT NULL DEFAULT 5,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_venue ON inventory(venue_id)`,
	`CREATE TABLE IF NOT EXISTS venue_sessions (
		id TEXT PRIMARY KEY,
		venue_id TEXT NOT NULL REFERENCES venues(id),
		user_id TEXT NOT NULL REFERENCES users(id),
		uid_tag TEXT,
		started_at TEXT NOT NULL,
		ended_at TEXT,
		total_spend BIGINT NOT NULL DEFAULT 0,
		interactions_count BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_open
		ON venue_sessions(user_id, venue_id) WHERE ended_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_uid_tag ON venue_sessions(uid_tag, started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_venue_open ON venue_sessions(venue_id, ended_at)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		venue_id TEXT NOT NULL REFERENCES venues(id),
		staff_user_id TEXT,
		guest_session_id TEXT REFERENCES venue_sessions(id),
		items TEXT NOT NULL,
		total BIGINT NOT NULL,
		payment_method TEXT NOT NULL,
		idempotency_key TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_idempotency_key
		ON orders(idempotency_key) WHERE idempotency_key IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_orders_venue_created ON orders(venue_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS quests (
		id TEXT PRIMARY KEY,
		venue_id TEXT NOT NULL REFERENCES venues(id),
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		conditions TEXT NOT NULL DEFAULT '{}',
		xp_reward BIGINT NOT NULL DEFAULT 0,
		nc_reward BIGINT NOT NULL DEFAULT 0,
		min_level BIGINT NOT NULL DEFAULT 0,
		starts_at TEXT,
		ends_at TEXT,
		max_completions BIGINT,
		cooldown_hours BIGINT,
		active BIGINT NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_quests_venue ON quests(venue_id, active)`,
	`CREATE TABLE IF NOT EXISTS quest_completions (
		id TEXT PRIMARY KEY,
		quest_id TEXT NOT NULL REFERENCES quests(id),
		user_id TEXT NOT NULL REFERENCES users(id),
		venue_session_id TEXT,
		completed_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_completions_quest_user ON quest_completions(quest_id, user_id, completed_at)`,
	`CREATE TABLE IF NOT EXISTS automation_rules (
		id TEXT PRIMARY KEY,
		venue_id TEXT NOT NULL REFERENCES venues(id),
		name TEXT NOT NULL,
		trigger_type TEXT NOT NULL,
		conditions TEXT NOT NULL DEFAULT '{}',
		actions TEXT NOT NULL DEFAULT '{}',
		active BIGINT NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rules_venue_trigger ON automation_rules(venue_id, trigger_type, active)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		venue_id TEXT,
		target_role TEXT,
		target_user_id TEXT,
		message TEXT NOT NULL,
		read BIGINT NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_venue ON notifications(venue_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(target_user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS logs (
		id {serial},
		venue_id TEXT,
		type TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_venue_type ON logs(venue_id, type, id)`,
}

// initSchema creates the necessary tables if they don't exist.
func (db *DB) initSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 4*db.timeout)
	defer cancel()

	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.Queries.postgres {
		serial = "BIGSERIAL PRIMARY KEY"
	}

	for _, query := range schemaQueries {
		query = strings.ReplaceAll(query, "{serial}", serial)
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", classify(err))
		}
	}

	return nil
}
