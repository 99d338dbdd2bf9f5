package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema bootstrap. Row-level security policies restricting which external
// callers may touch each table are managed in database migrations alongside
// these tables; they are defense in depth on top of the gateway's own
// identity checks, not a replacement for them.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		username TEXT PRIMARY KEY,
		external_id TEXT UNIQUE,
		session_id TEXT,
		xp BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS profiles_username_lower_idx
		ON profiles (LOWER(username))`,
	`CREATE TABLE IF NOT EXISTS run_tokens (
		token TEXT PRIMARY KEY,
		bound_username TEXT NOT NULL,
		mode TEXT NOT NULL,
		issued_at TIMESTAMPTZ NOT NULL,
		consumed BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS rate_buckets (
		bucket TEXT NOT NULL,
		identity TEXT NOT NULL,
		window_start TIMESTAMPTZ NOT NULL,
		hit_count INT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (bucket, identity, window_start)
	)`,
	`CREATE TABLE IF NOT EXISTS quests (
		username TEXT PRIMARY KEY,
		daily_progress INT NOT NULL DEFAULT 0,
		daily_target INT NOT NULL DEFAULT 0,
		daily_period TEXT,
		weekly_progress INT NOT NULL DEFAULT 0,
		weekly_target INT NOT NULL DEFAULT 0,
		weekly_period TEXT,
		daily_key TEXT,
		daily_current INT NOT NULL DEFAULT 0,
		daily_best INT NOT NULL DEFAULT 0,
		weekly_key TEXT,
		weekly_current INT NOT NULL DEFAULT 0,
		weekly_best INT NOT NULL DEFAULT 0,
		xp BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS calibrations (
		username TEXT PRIMARY KEY,
		profile JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		token TEXT NOT NULL,
		signs_landed INT NOT NULL,
		duration_ms BIGINT NOT NULL,
		envelope JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
