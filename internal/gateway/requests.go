package gateway

import (
	"time"

	"github.com/okian/mudra/internal/domain/calibrate"
	"github.com/okian/mudra/internal/domain/run"
)

// Identity is the client-claimed identity pair checked by the bound call
// family against the stored profile.
type Identity struct {
	Username   string `json:"username"`
	ExternalID string `json:"external_id"`
}

// VerifiedSession is the server-derived identity used by the bound+auth
// call family. It comes from the caller's verified session and an
// externally-synced provider id; client claims never feed it.
type VerifiedSession struct {
	SessionID  string
	ProviderID string
}

// IssueTokenRequest starts a rank run.
type IssueTokenRequest struct {
	Identity Identity
	Mode     string
}

// IssueTokenResponse carries the single-use run token.
type IssueTokenResponse struct {
	Result
	Token    string    `json:"token,omitempty"`
	IssuedAt time.Time `json:"issued_at,omitempty"`
}

// SubmitRunRequest submits a completed rank run with its proof envelope.
type SubmitRunRequest struct {
	Identity    Identity
	Token       string
	SignsLanded int
	DurationMS  int64
	Envelope    run.Envelope
}

// SubmitRunResponse reports the reconciled reward state.
type SubmitRunResponse struct {
	Result
	XPGranted    int64  `json:"xp_granted,omitempty"`
	BonusPercent int    `json:"bonus_percent,omitempty"`
	DailyStreak  int    `json:"daily_streak,omitempty"`
	WeeklyStreak int    `json:"weekly_streak,omitempty"`
	TotalXP      int64  `json:"total_xp,omitempty"`
	SubmissionID string `json:"submission_id,omitempty"`
}

// QuestRequest reads quest state through the bound+auth family. Username is
// the client's claim and is validated against the session-derived identity,
// never trusted on its own.
type QuestRequest struct {
	Session  VerifiedSession
	Username string
}

// QuestProgressRequest advances quest progress counters.
type QuestProgressRequest struct {
	Session     VerifiedSession
	Username    string
	DailyDelta  int
	WeeklyDelta int
}

// QuestResponse is the reconciled quest view.
type QuestResponse struct {
	Result
	DailyProgress  int   `json:"daily_progress"`
	DailyTarget    int   `json:"daily_target"`
	WeeklyProgress int   `json:"weekly_progress"`
	WeeklyTarget   int   `json:"weekly_target"`
	DailyStreak    int   `json:"daily_streak"`
	DailyBest      int   `json:"daily_best"`
	WeeklyStreak   int   `json:"weekly_streak"`
	WeeklyBest     int   `json:"weekly_best"`
	BonusPercent   int   `json:"bonus_percent"`
	XP             int64 `json:"xp"`
}

// CalibrationRequest persists a finalized calibration profile.
type CalibrationRequest struct {
	Identity Identity
	Profile  calibrate.Profile
}
