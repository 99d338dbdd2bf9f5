// Package repository defines the relational store behind the gateway and
// its errors. Two implementations exist: an in-memory store used by tests
// and DSN-less deployments, and a Postgres store for production.
package repository

import (
	"context"
	"time"

	"github.com/okian/mudra/internal/domain/calibrate"
)

// Profile is a player record with its identity binding. Once SessionID is
// set it is never silently rebound to a different profile; the gateway
// enforces the first-write rules, the store only persists them.
type Profile struct {
	Username   string
	ExternalID string
	SessionID  string
	XP         int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RunToken is a single-use, identity-bound run credential.
type RunToken struct {
	Token         string
	BoundUsername string
	Mode          string
	IssuedAt      time.Time
	Consumed      bool
}

// QuestDoc is the authoritative per-player quest document. Streak counters
// live here so reconciliation and the XP grant share one atomic update.
type QuestDoc struct {
	Username       string
	DailyProgress  int
	DailyTarget    int
	DailyPeriod    string // period key the daily progress counter belongs to
	WeeklyProgress int
	WeeklyTarget   int
	WeeklyPeriod   string

	DailyKey      string
	DailyCurrent  int
	DailyBest     int
	WeeklyKey     string
	WeeklyCurrent int
	WeeklyBest    int

	XP        int64
	UpdatedAt time.Time
}

// Submission is a recorded rank-run result kept for plausibility review.
type Submission struct {
	ID          string
	Username    string
	Token       string
	SignsLanded int
	DurationMS  int64
	Envelope    []byte // proof envelope JSON, advisory only
	CreatedAt   time.Time
}

// Store provides atomic access to gateway state. Every method is one
// atomic operation against the backing storage.
type Store interface {
	// GetProfile returns the profile for username (case-insensitive).
	// Returns ErrNotFound when the profile does not exist.
	GetProfile(ctx context.Context, username string) (Profile, error)

	// GetProfileByExternalID returns the profile owning an external id.
	GetProfileByExternalID(ctx context.Context, externalID string) (Profile, error)

	// CreateProfile inserts a new profile. Returns ErrConflict when the
	// username or external id is already taken.
	CreateProfile(ctx context.Context, p Profile) error

	// UpdateBinding persists an identity binding for username.
	UpdateBinding(ctx context.Context, username, externalID, sessionID string) error

	// InsertToken records a freshly issued run token.
	InsertToken(ctx context.Context, t RunToken) error

	// ConsumeToken marks a token used, exactly once. Returns ErrNotFound
	// for an unknown token and ErrTokenUsed for a replay.
	ConsumeToken(ctx context.Context, token string) (RunToken, error)

	// IncrBucket atomically increments the (bucket, identity, window)
	// counter, inserting the row when absent, and returns the new count.
	// The count for a given key only ever increases.
	IncrBucket(ctx context.Context, bucket, identity string, windowStart time.Time) (int, error)

	// PruneBuckets drops rate rows older than the retention horizon and
	// returns how many were removed.
	PruneBuckets(ctx context.Context, olderThan time.Time) (int, error)

	// ApplyQuest loads username's quest document, applies fn, and writes
	// the result back, all within one atomic operation. A missing
	// document starts from a zero QuestDoc for the username.
	ApplyQuest(ctx context.Context, username string, fn func(*QuestDoc) error) (QuestDoc, error)

	// SaveCalibration persists a calibration profile keyed by username.
	SaveCalibration(ctx context.Context, username string, p calibrate.Profile) error

	// GetCalibration returns the stored calibration profile.
	GetCalibration(ctx context.Context, username string) (calibrate.Profile, error)

	// RecordSubmission stores a completed rank run for review.
	RecordSubmission(ctx context.Context, s Submission) error
}
