// Package gateway is the trust boundary between clients and stored player
// state. Every call validates the caller's identity against the stored
// profile before touching anything, debits a fixed-window rate budget, and
// reports its outcome as a structured Result with a machine-readable reason
// code. Anything ambiguous rejects; the gateway never guesses.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/okian/mudra/internal/adapters/repository"
	"github.com/okian/mudra/internal/domain/calibrate"
	"github.com/okian/mudra/internal/domain/streak"
	"github.com/okian/mudra/pkg/logger"
	"github.com/okian/mudra/pkg/metrics"

	"github.com/google/uuid"
)

// Rate-limit bucket names, one per operation family.
const (
	bucketToken       = "token"
	bucketSubmit      = "submit"
	bucketQuest       = "quest"
	bucketCalibration = "calibration"
)

// Gateway validates identity, enforces rate budgets, and applies reward
// state through the store's atomic operations.
type Gateway struct {
	store    repository.Store
	log      logger.Logger
	now      func() time.Time
	newToken func() string

	rateLimit  int
	rateWindow time.Duration

	dailyTarget  int
	weeklyTarget int
	baseRunXP    int64
	questXP      int64
}

// New builds a gateway over the given store.
func New(store repository.Store, opts ...Option) *Gateway {
	g := &Gateway{
		store:        store,
		log:          nopLogger{},
		now:          time.Now,
		newToken:     defaultTokenFactory,
		rateLimit:    defaultRateLimit,
		rateWindow:   defaultRateWindow,
		dailyTarget:  defaultDailyTarget,
		weeklyTarget: defaultWeeklyTarget,
		baseRunXP:    defaultBaseRunXP,
		questXP:      defaultQuestXP,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IssueRunToken mints a single-use run token bound to the caller's profile.
func (g *Gateway) IssueRunToken(ctx context.Context, req IssueTokenRequest) (resp IssueTokenResponse) {
	defer g.seal(ctx, "issue_token", &resp.Result)

	profile, res := g.bound(ctx, req.Identity, bucketToken)
	if !res.OK {
		resp.Result = res
		return resp
	}

	mode := req.Mode
	if mode == "" {
		mode = "rank"
	}
	tok := repository.RunToken{
		Token:         g.newToken(),
		BoundUsername: profile.Username,
		Mode:          mode,
		IssuedAt:      g.now().UTC(),
	}
	if err := g.store.InsertToken(ctx, tok); err != nil {
		resp.Result = g.storeFailure(ctx, "insert token", err)
		return resp
	}

	resp.Result = ok()
	resp.Token = tok.Token
	resp.IssuedAt = tok.IssuedAt
	return resp
}

// SubmitRun consumes the run token, records the submission, and applies the
// streak reconciliation and XP grant in one atomic quest update.
func (g *Gateway) SubmitRun(ctx context.Context, req SubmitRunRequest) (resp SubmitRunResponse) {
	defer g.seal(ctx, "submit_run", &resp.Result)

	profile, res := g.bound(ctx, req.Identity, bucketSubmit)
	if !res.OK {
		resp.Result = res
		return resp
	}

	if req.Token == "" {
		resp.Result = reject(ReasonTokenMissing, "run token is required")
		return resp
	}
	tok, err := g.store.ConsumeToken(ctx, req.Token)
	switch {
	case errors.Is(err, repository.ErrTokenUsed):
		resp.Result = reject(ReasonTokenAlreadyUsed, "run token was already consumed")
		return resp
	case errors.Is(err, repository.ErrNotFound):
		resp.Result = reject(ReasonTokenMissing, "run token is unknown")
		return resp
	case err != nil:
		resp.Result = g.storeFailure(ctx, "consume token", err)
		return resp
	}
	if !strings.EqualFold(tok.BoundUsername, profile.Username) {
		g.log.Warn(ctx, "token bound to another profile",
			logger.String("token_username", tok.BoundUsername),
			logger.String("caller", profile.Username))
		resp.Result = reject(ReasonTokenUsernameMismatch, "run token belongs to a different profile")
		return resp
	}

	now := g.now().UTC()
	var (
		granted int64
		outcome streak.Outcome
	)
	doc, err := g.store.ApplyQuest(ctx, profile.Username, func(d *repository.QuestDoc) error {
		g.rollPeriods(d, now)
		d.DailyProgress++
		d.WeeklyProgress++
		outcome = reconcileDoc(d, now)
		granted = g.baseRunXP * int64(100+outcome.BonusPercent) / 100
		d.XP += granted
		return nil
	})
	if err != nil {
		resp.Result = g.storeFailure(ctx, "apply quest", err)
		return resp
	}

	sub := repository.Submission{
		ID:          uuid.NewString(),
		Username:    profile.Username,
		Token:       tok.Token,
		SignsLanded: req.SignsLanded,
		DurationMS:  req.DurationMS,
		CreatedAt:   now,
	}
	if raw, merr := json.Marshal(req.Envelope); merr == nil {
		sub.Envelope = raw
	}
	if err := g.store.RecordSubmission(ctx, sub); err != nil {
		// The grant already committed; the forensic record is best-effort.
		g.log.Error(ctx, "record submission failed", logger.Error(err),
			logger.String("username", profile.Username))
	}

	metrics.RecordRunAccepted()
	metrics.RecordXPGranted(float64(granted))
	resp.Result = ok()
	resp.XPGranted = granted
	resp.BonusPercent = outcome.BonusPercent
	resp.DailyStreak = outcome.DailyCurrent
	resp.WeeklyStreak = outcome.WeeklyCurrent
	resp.TotalXP = doc.XP
	resp.SubmissionID = sub.ID
	return resp
}

// GetQuest returns the reconciled quest view for the session's profile.
// Reconciliation runs on the read path too, so a lapsed streak shows as
// lapsed the moment anyone looks.
func (g *Gateway) GetQuest(ctx context.Context, req QuestRequest) (resp QuestResponse) {
	defer g.seal(ctx, "get_quest", &resp.Result)

	profile, res := g.boundAuth(ctx, req.Session, req.Username, bucketQuest)
	if !res.OK {
		resp.Result = res
		return resp
	}

	now := g.now().UTC()
	doc, err := g.store.ApplyQuest(ctx, profile.Username, func(d *repository.QuestDoc) error {
		g.rollPeriods(d, now)
		reconcileDoc(d, now)
		return nil
	})
	if err != nil {
		resp.Result = g.storeFailure(ctx, "apply quest", err)
		return resp
	}

	fillQuestView(&resp, doc, now)
	resp.Result = ok()
	return resp
}

// UpdateQuestProgress advances quest counters and grants the quest reward
// when a period target is crossed, atomically with the streak update.
func (g *Gateway) UpdateQuestProgress(ctx context.Context, req QuestProgressRequest) (resp QuestResponse) {
	defer g.seal(ctx, "quest_progress", &resp.Result)

	profile, res := g.boundAuth(ctx, req.Session, req.Username, bucketQuest)
	if !res.OK {
		resp.Result = res
		return resp
	}

	now := g.now().UTC()
	doc, err := g.store.ApplyQuest(ctx, profile.Username, func(d *repository.QuestDoc) error {
		g.rollPeriods(d, now)
		dailyDoneBefore := questDone(d.DailyProgress, d.DailyTarget)
		weeklyDoneBefore := questDone(d.WeeklyProgress, d.WeeklyTarget)

		if req.DailyDelta > 0 {
			d.DailyProgress += req.DailyDelta
		}
		if req.WeeklyDelta > 0 {
			d.WeeklyProgress += req.WeeklyDelta
		}
		out := reconcileDoc(d, now)

		// The completion reward fires once per period, on the crossing call.
		if !dailyDoneBefore && questDone(d.DailyProgress, d.DailyTarget) {
			d.XP += g.questXP * int64(100+out.BonusPercent) / 100
		}
		if !weeklyDoneBefore && questDone(d.WeeklyProgress, d.WeeklyTarget) {
			d.XP += g.questXP * int64(100+out.BonusPercent) / 100
		}
		return nil
	})
	if err != nil {
		resp.Result = g.storeFailure(ctx, "apply quest", err)
		return resp
	}

	fillQuestView(&resp, doc, now)
	resp.Result = ok()
	return resp
}

// SaveCalibration persists a clamped calibration profile for the caller.
func (g *Gateway) SaveCalibration(ctx context.Context, req CalibrationRequest) (res Result) {
	defer g.seal(ctx, "save_calibration", &res)

	profile, r := g.bound(ctx, req.Identity, bucketCalibration)
	if !r.OK {
		return r
	}
	if err := g.store.SaveCalibration(ctx, profile.Username, req.Profile.Clamped()); err != nil {
		return g.storeFailure(ctx, "save calibration", err)
	}
	return ok()
}

// GetCalibration returns the caller's stored calibration profile, falling
// back to defaults when none was ever saved.
func (g *Gateway) GetCalibration(ctx context.Context, id Identity) (p calibrate.Profile, res Result) {
	defer g.seal(ctx, "get_calibration", &res)

	profile, r := g.bound(ctx, id, bucketCalibration)
	if !r.OK {
		return calibrate.Profile{}, r
	}
	stored, err := g.store.GetCalibration(ctx, profile.Username)
	if errors.Is(err, repository.ErrNotFound) {
		return calibrate.DefaultProfile(), ok()
	}
	if err != nil {
		return calibrate.Profile{}, g.storeFailure(ctx, "get calibration", err)
	}
	return stored, ok()
}

// bound is the claimed-identity call family. The caller presents a username
// plus external id and both must match the stored profile; an empty stored
// binding is backfilled on first use.
func (g *Gateway) bound(ctx context.Context, id Identity, bucket string) (repository.Profile, Result) {
	if id.Username == "" || id.ExternalID == "" {
		return repository.Profile{}, reject(ReasonMissingIdentity, "username and external id are required")
	}

	profile, err := g.store.GetProfile(ctx, id.Username)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Profile{}, reject(ReasonUnknownProfile, "no profile for username")
	}
	if err != nil {
		return repository.Profile{}, g.storeFailure(ctx, "get profile", err)
	}

	switch {
	case profile.ExternalID == "":
		// First write wins: bind the profile to this external id.
		if err := g.store.UpdateBinding(ctx, profile.Username, id.ExternalID, profile.SessionID); err != nil {
			return repository.Profile{}, g.storeFailure(ctx, "bind external id", err)
		}
		profile.ExternalID = id.ExternalID
	case profile.ExternalID != id.ExternalID:
		g.log.Warn(ctx, "external id does not match profile binding",
			logger.String("username", profile.Username))
		return repository.Profile{}, reject(ReasonIdentityMismatch, "external id does not match profile")
	}

	if res := g.debit(ctx, bucket, profile.Username); !res.OK {
		return repository.Profile{}, res
	}
	return profile, ok()
}

// boundAuth is the verified-session call family. Identity derives from the
// session's synced provider id, never from the client's claim; the claimed
// username is only cross-checked against the derived profile.
func (g *Gateway) boundAuth(ctx context.Context, sess VerifiedSession, claimedUsername, bucket string) (repository.Profile, Result) {
	if sess.ProviderID == "" || sess.SessionID == "" {
		return repository.Profile{}, reject(ReasonMissingIdentity, "verified session is required")
	}

	profile, err := g.store.GetProfileByExternalID(ctx, sess.ProviderID)
	switch {
	case err == nil:
		if claimedUsername != "" && !strings.EqualFold(claimedUsername, profile.Username) {
			return repository.Profile{}, reject(ReasonSessionIdentityMismatch, "session does not belong to the claimed profile")
		}
		if profile.SessionID == "" {
			if err := g.store.UpdateBinding(ctx, profile.Username, profile.ExternalID, sess.SessionID); err != nil {
				return repository.Profile{}, g.storeFailure(ctx, "bind session", err)
			}
			profile.SessionID = sess.SessionID
		} else if profile.SessionID != sess.SessionID {
			g.log.Warn(ctx, "session does not match profile binding",
				logger.String("username", profile.Username))
			return repository.Profile{}, reject(ReasonSessionIdentityMismatch, "session does not match profile binding")
		}

	case errors.Is(err, repository.ErrNotFound):
		if claimedUsername == "" {
			return repository.Profile{}, reject(ReasonUnknownProfile, "no profile for session")
		}
		profile, err = g.store.GetProfile(ctx, claimedUsername)
		if errors.Is(err, repository.ErrNotFound) {
			return repository.Profile{}, reject(ReasonUnknownProfile, "no profile for username")
		}
		if err != nil {
			return repository.Profile{}, g.storeFailure(ctx, "get profile", err)
		}
		// The claimed profile is already bound elsewhere; never rebind.
		if profile.ExternalID != "" || profile.SessionID != "" {
			return repository.Profile{}, reject(ReasonSessionIdentityMismatch, "profile is bound to a different session")
		}
		if err := g.store.UpdateBinding(ctx, profile.Username, sess.ProviderID, sess.SessionID); err != nil {
			return repository.Profile{}, g.storeFailure(ctx, "bind session", err)
		}
		profile.ExternalID = sess.ProviderID
		profile.SessionID = sess.SessionID

	default:
		return repository.Profile{}, g.storeFailure(ctx, "get profile by external id", err)
	}

	if res := g.debit(ctx, bucket, profile.Username); !res.OK {
		return repository.Profile{}, res
	}
	return profile, ok()
}

// debit charges one call against the identity's fixed-window budget. The
// window start is floor-aligned so every replica lands on the same row.
func (g *Gateway) debit(ctx context.Context, bucket, identity string) Result {
	now := g.now().UTC()
	windowStart := now.Truncate(g.rateWindow)
	n, err := g.store.IncrBucket(ctx, bucket, strings.ToLower(identity), windowStart)
	if err != nil {
		return g.storeFailure(ctx, "incr bucket", err)
	}
	if n > g.rateLimit {
		retry := int(math.Ceil(windowStart.Add(g.rateWindow).Sub(now).Seconds()))
		if retry < 1 {
			retry = 1
		}
		metrics.RecordRateLimited(bucket)
		res := reject(ReasonRateLimited, "rate budget exhausted for this window")
		res.RetrySeconds = retry
		return res
	}
	return ok()
}

// rollPeriods zeroes progress counters when the document's counters belong
// to an earlier period. Streak keys are untouched; reconciliation owns those.
func (g *Gateway) rollPeriods(d *repository.QuestDoc, now time.Time) {
	if d.DailyTarget == 0 {
		d.DailyTarget = g.dailyTarget
	}
	if d.WeeklyTarget == 0 {
		d.WeeklyTarget = g.weeklyTarget
	}
	if day := streak.DayKey(now); d.DailyPeriod != day {
		if d.DailyPeriod != "" {
			d.DailyProgress = 0
		}
		d.DailyPeriod = day
	}
	if week := streak.WeekKey(now); d.WeeklyPeriod != week {
		if d.WeeklyPeriod != "" {
			d.WeeklyProgress = 0
		}
		d.WeeklyPeriod = week
	}
}

// reconcileDoc runs streak reconciliation against the document in place and
// returns the outcome with the derived bonus.
func reconcileDoc(d *repository.QuestDoc, now time.Time) streak.Outcome {
	out := streak.Reconcile(streak.QuestState{
		DailyDone:     questDone(d.DailyProgress, d.DailyTarget),
		WeeklyDone:    questDone(d.WeeklyProgress, d.WeeklyTarget),
		DailyKey:      d.DailyKey,
		WeeklyKey:     d.WeeklyKey,
		DailyCurrent:  d.DailyCurrent,
		DailyBest:     d.DailyBest,
		WeeklyCurrent: d.WeeklyCurrent,
		WeeklyBest:    d.WeeklyBest,
	}, now)
	d.DailyKey = out.DailyKey
	d.DailyCurrent = out.DailyCurrent
	d.DailyBest = out.DailyBest
	d.WeeklyKey = out.WeeklyKey
	d.WeeklyCurrent = out.WeeklyCurrent
	d.WeeklyBest = out.WeeklyBest
	return out
}

func questDone(progress, target int) bool {
	return target > 0 && progress >= target
}

func fillQuestView(resp *QuestResponse, doc repository.QuestDoc, now time.Time) {
	resp.DailyProgress = doc.DailyProgress
	resp.DailyTarget = doc.DailyTarget
	resp.WeeklyProgress = doc.WeeklyProgress
	resp.WeeklyTarget = doc.WeeklyTarget
	resp.DailyStreak = doc.DailyCurrent
	resp.DailyBest = doc.DailyBest
	resp.WeeklyStreak = doc.WeeklyCurrent
	resp.WeeklyBest = doc.WeeklyBest
	resp.XP = doc.XP

	out := streak.Reconcile(streak.QuestState{
		DailyKey:      doc.DailyKey,
		WeeklyKey:     doc.WeeklyKey,
		DailyCurrent:  doc.DailyCurrent,
		DailyBest:     doc.DailyBest,
		WeeklyCurrent: doc.WeeklyCurrent,
		WeeklyBest:    doc.WeeklyBest,
	}, now)
	resp.BonusPercent = out.BonusPercent
}

// storeFailure converts a storage error into a fail-closed result.
func (g *Gateway) storeFailure(ctx context.Context, op string, err error) Result {
	g.log.Error(ctx, "store operation failed", logger.String("op", op), logger.Error(err))
	return reject(ReasonRPCException, "internal error")
}

// seal is deferred by every public operation: it converts panics into
// rpc_exception results and records the call outcome.
func (g *Gateway) seal(ctx context.Context, op string, res *Result) {
	if r := recover(); r != nil {
		g.log.Error(ctx, "gateway panic recovered",
			logger.String("op", op), logger.Any("panic", r))
		*res = reject(ReasonRPCException, "internal error")
	}
	metrics.RecordGatewayCall(op, string(res.Reason))
}
