package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/mudra/internal/domain/calibrate"

	"github.com/lib/pq"
)

// PostgresStore implements Store on a relational database. Each method is
// one transaction; the gateway's rate-limit increment and domain mutation
// for a call therefore commit or fail together.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a store over an existing connection pool and
// ensures the schema exists.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := ensureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// GetProfile returns the profile for username, case-insensitive.
func (s *PostgresStore) GetProfile(ctx context.Context, username string) (Profile, error) {
	var p Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT username, COALESCE(external_id, ''), COALESCE(session_id, ''), xp, created_at, updated_at
		FROM profiles
		WHERE LOWER(username) = LOWER($1)
	`, username).Scan(&p.Username, &p.ExternalID, &p.SessionID, &p.XP, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// GetProfileByExternalID returns the profile owning externalID.
func (s *PostgresStore) GetProfileByExternalID(ctx context.Context, externalID string) (Profile, error) {
	var p Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT username, COALESCE(external_id, ''), COALESCE(session_id, ''), xp, created_at, updated_at
		FROM profiles
		WHERE external_id = $1
	`, externalID).Scan(&p.Username, &p.ExternalID, &p.SessionID, &p.XP, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile by external id: %w", err)
	}
	return p, nil
}

// CreateProfile inserts a new profile.
func (s *PostgresStore) CreateProfile(ctx context.Context, p Profile) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (username, external_id, session_id, xp, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $5)
	`, p.Username, p.ExternalID, p.SessionID, p.XP, now)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// UpdateBinding persists an identity binding for username.
func (s *PostgresStore) UpdateBinding(ctx context.Context, username, externalID, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET external_id = NULLIF($2, ''),
			session_id = NULLIF($3, ''),
			updated_at = $4
		WHERE LOWER(username) = LOWER($1)
	`, username, externalID, sessionID, time.Now().UTC())
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update binding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update binding: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertToken records a freshly issued run token.
func (s *PostgresStore) InsertToken(ctx context.Context, t RunToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_tokens (token, bound_username, mode, issued_at, consumed)
		VALUES ($1, $2, $3, $4, FALSE)
	`, t.Token, t.BoundUsername, t.Mode, t.IssuedAt.UTC())
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// ConsumeToken marks a token used exactly once.
func (s *PostgresStore) ConsumeToken(ctx context.Context, token string) (RunToken, error) {
	var t RunToken
	err := s.db.QueryRowContext(ctx, `
		UPDATE run_tokens
		SET consumed = TRUE
		WHERE token = $1 AND NOT consumed
		RETURNING token, bound_username, mode, issued_at, consumed
	`, token).Scan(&t.Token, &t.BoundUsername, &t.Mode, &t.IssuedAt, &t.Consumed)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish replay from unknown token.
		var exists bool
		if probeErr := s.db.QueryRowContext(ctx,
			`SELECT TRUE FROM run_tokens WHERE token = $1`, token,
		).Scan(&exists); probeErr == nil {
			return RunToken{}, ErrTokenUsed
		}
		return RunToken{}, ErrNotFound
	}
	if err != nil {
		return RunToken{}, fmt.Errorf("consume token: %w", err)
	}
	return t, nil
}

// IncrBucket collapses concurrent increments for one window onto a single
// row via an atomic upsert, and returns the new count.
func (s *PostgresStore) IncrBucket(ctx context.Context, bucket, identity string, windowStart time.Time) (int, error) {
	var hits int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO rate_buckets (bucket, identity, window_start, hit_count, updated_at)
		VALUES ($1, $2, $3, 1, NOW())
		ON CONFLICT (bucket, identity, window_start)
		DO UPDATE SET hit_count = rate_buckets.hit_count + 1, updated_at = NOW()
		RETURNING hit_count
	`, bucket, identity, windowStart.UTC()).Scan(&hits)
	if err != nil {
		return 0, fmt.Errorf("incr bucket: %w", err)
	}
	return hits, nil
}

// PruneBuckets drops rate rows whose window started before olderThan.
func (s *PostgresStore) PruneBuckets(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM rate_buckets WHERE window_start < $1
	`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune buckets: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune buckets: %w", err)
	}
	return int(n), nil
}

// ApplyQuest runs fn against the locked quest row inside one transaction,
// so streak reconciliation and the XP grant commit together.
func (s *PostgresStore) ApplyQuest(ctx context.Context, username string, fn func(*QuestDoc) error) (QuestDoc, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return QuestDoc{}, fmt.Errorf("apply quest: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	doc := QuestDoc{Username: username}
	err = tx.QueryRowContext(ctx, `
		SELECT username, daily_progress, daily_target, COALESCE(daily_period, ''),
			weekly_progress, weekly_target, COALESCE(weekly_period, ''),
			COALESCE(daily_key, ''), daily_current, daily_best,
			COALESCE(weekly_key, ''), weekly_current, weekly_best,
			xp, updated_at
		FROM quests
		WHERE LOWER(username) = LOWER($1)
		FOR UPDATE
	`, username).Scan(
		&doc.Username, &doc.DailyProgress, &doc.DailyTarget, &doc.DailyPeriod,
		&doc.WeeklyProgress, &doc.WeeklyTarget, &doc.WeeklyPeriod,
		&doc.DailyKey, &doc.DailyCurrent, &doc.DailyBest,
		&doc.WeeklyKey, &doc.WeeklyCurrent, &doc.WeeklyBest,
		&doc.XP, &doc.UpdatedAt,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return QuestDoc{}, fmt.Errorf("apply quest: %w", err)
	}

	if err := fn(&doc); err != nil {
		return QuestDoc{}, err
	}
	doc.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO quests (username, daily_progress, daily_target, daily_period,
			weekly_progress, weekly_target, weekly_period,
			daily_key, daily_current, daily_best, weekly_key, weekly_current, weekly_best, xp, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''),
			NULLIF($8, ''), $9, $10, NULLIF($11, ''), $12, $13, $14, $15)
		ON CONFLICT (username)
		DO UPDATE SET daily_progress = $2, daily_target = $3, daily_period = NULLIF($4, ''),
			weekly_progress = $5, weekly_target = $6, weekly_period = NULLIF($7, ''),
			daily_key = NULLIF($8, ''), daily_current = $9, daily_best = $10,
			weekly_key = NULLIF($11, ''), weekly_current = $12, weekly_best = $13,
			xp = $14, updated_at = $15
	`, doc.Username, doc.DailyProgress, doc.DailyTarget, doc.DailyPeriod,
		doc.WeeklyProgress, doc.WeeklyTarget, doc.WeeklyPeriod,
		doc.DailyKey, doc.DailyCurrent, doc.DailyBest,
		doc.WeeklyKey, doc.WeeklyCurrent, doc.WeeklyBest,
		doc.XP, doc.UpdatedAt)
	if err != nil {
		return QuestDoc{}, fmt.Errorf("apply quest: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return QuestDoc{}, fmt.Errorf("apply quest: %w", err)
	}
	return doc, nil
}

// SaveCalibration upserts a calibration profile keyed by username.
func (s *PostgresStore) SaveCalibration(ctx context.Context, username string, p calibrate.Profile) error {
	raw, err := json.Marshal(p.Clamped())
	if err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO calibrations (username, profile, updated_at)
		VALUES (LOWER($1), $2, NOW())
		ON CONFLICT (username) DO UPDATE SET profile = $2, updated_at = NOW()
	`, username, raw)
	if err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}
	return nil
}

// GetCalibration returns the stored calibration profile, clamped on read.
func (s *PostgresStore) GetCalibration(ctx context.Context, username string) (calibrate.Profile, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT profile FROM calibrations WHERE username = LOWER($1)
	`, username).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return calibrate.Profile{}, ErrNotFound
	}
	if err != nil {
		return calibrate.Profile{}, fmt.Errorf("get calibration: %w", err)
	}
	var p calibrate.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return calibrate.Profile{}, fmt.Errorf("get calibration: %w", err)
	}
	return p.Clamped(), nil
}

// RecordSubmission stores a completed rank run.
func (s *PostgresStore) RecordSubmission(ctx context.Context, sub Submission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions (id, username, token, signs_landed, duration_ms, envelope, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sub.ID, sub.Username, sub.Token, sub.SignsLanded, sub.DurationMS, sub.Envelope, sub.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	return nil
}

// isUniqueViolation detects the Postgres unique_violation class.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" || strings.HasPrefix(string(pqErr.Code), "23")
	}
	return false
}
