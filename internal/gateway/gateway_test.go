package gateway

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/okian/mudra/internal/adapters/repository"
	. "github.com/smartystreets/goconvey/convey"
)

func newTestGateway(clock *time.Time, opts ...Option) (*Gateway, *repository.MemoryStore) {
	store := repository.NewMemoryStore()
	opts = append(opts, WithClock(func() time.Time { return *clock }))
	return New(store, opts...), store
}

func mustCreateProfile(store *repository.MemoryStore, username, externalID string) {
	if err := store.CreateProfile(context.Background(), repository.Profile{
		Username: username, ExternalID: externalID,
	}); err != nil {
		panic(err)
	}
}

func TestGatewayIdentityChecks(t *testing.T) {
	Convey("Given a gateway with one registered profile", t, func() {
		ctx := context.Background()
		clock := time.Date(2026, 3, 2, 12, 0, 30, 0, time.UTC)
		g, store := newTestGateway(&clock)
		mustCreateProfile(store, "alice", "ext-alice")

		Convey("When the claimed identity matches", func() {
			resp := g.IssueRunToken(ctx, IssueTokenRequest{
				Identity: Identity{Username: "Alice", ExternalID: "ext-alice"},
			})

			Convey("Then a token is issued", func() {
				So(resp.OK, ShouldBeTrue)
				So(resp.Reason, ShouldEqual, ReasonOK)
				So(resp.Token, ShouldNotBeEmpty)
			})
		})

		Convey("When the identity pair is incomplete", func() {
			resp := g.IssueRunToken(ctx, IssueTokenRequest{
				Identity: Identity{Username: "alice"},
			})

			Convey("Then it rejects with missing_identity", func() {
				So(resp.OK, ShouldBeFalse)
				So(resp.Reason, ShouldEqual, ReasonMissingIdentity)
			})
		})

		Convey("When the username has no profile", func() {
			resp := g.IssueRunToken(ctx, IssueTokenRequest{
				Identity: Identity{Username: "ghost", ExternalID: "ext-ghost"},
			})

			Convey("Then it rejects with unknown_profile", func() {
				So(resp.Reason, ShouldEqual, ReasonUnknownProfile)
			})
		})

		Convey("When the external id belongs to someone else", func() {
			resp := g.IssueRunToken(ctx, IssueTokenRequest{
				Identity: Identity{Username: "alice", ExternalID: "ext-bob"},
			})

			Convey("Then it rejects with identity_mismatch", func() {
				So(resp.Reason, ShouldEqual, ReasonIdentityMismatch)
			})
		})

		Convey("When the profile has no external binding yet", func() {
			mustCreateProfile(store, "carol", "")
			resp := g.IssueRunToken(ctx, IssueTokenRequest{
				Identity: Identity{Username: "carol", ExternalID: "ext-carol"},
			})

			Convey("Then the first write binds it and the call succeeds", func() {
				So(resp.OK, ShouldBeTrue)

				p, err := store.GetProfile(ctx, "carol")
				So(err, ShouldBeNil)
				So(p.ExternalID, ShouldEqual, "ext-carol")
			})
		})
	})
}

func TestGatewayRateLimit(t *testing.T) {
	Convey("Given a gateway with the default 60-per-minute budget", t, func() {
		ctx := context.Background()
		clock := time.Date(2026, 3, 2, 12, 0, 30, 0, time.UTC)
		g, store := newTestGateway(&clock)
		mustCreateProfile(store, "alice", "ext-alice")
		id := Identity{Username: "alice", ExternalID: "ext-alice"}

		Convey("When the budget is spent within one window", func() {
			for i := 0; i < 60; i++ {
				resp := g.IssueRunToken(ctx, IssueTokenRequest{Identity: id})
				So(resp.OK, ShouldBeTrue)
			}

			Convey("Then call 61 is rejected with a retry hint", func() {
				resp := g.IssueRunToken(ctx, IssueTokenRequest{Identity: id})
				So(resp.OK, ShouldBeFalse)
				So(resp.Reason, ShouldEqual, ReasonRateLimited)
				So(resp.RetrySeconds, ShouldEqual, 30)
			})

			Convey("And the next window starts fresh", func() {
				clock = clock.Add(time.Minute)
				resp := g.IssueRunToken(ctx, IssueTokenRequest{Identity: id})
				So(resp.OK, ShouldBeTrue)
			})
		})

		Convey("When a different operation family is used", func() {
			for i := 0; i < 60; i++ {
				g.IssueRunToken(ctx, IssueTokenRequest{Identity: id})
			}
			res := g.SaveCalibration(ctx, CalibrationRequest{Identity: id})

			Convey("Then its budget is independent", func() {
				So(res.OK, ShouldBeTrue)
			})
		})
	})
}

func TestGatewayTokens(t *testing.T) {
	Convey("Given two registered profiles", t, func() {
		ctx := context.Background()
		clock := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
		g, store := newTestGateway(&clock)
		mustCreateProfile(store, "alice", "ext-alice")
		mustCreateProfile(store, "bob", "ext-bob")
		alice := Identity{Username: "alice", ExternalID: "ext-alice"}
		bob := Identity{Username: "bob", ExternalID: "ext-bob"}

		issued := g.IssueRunToken(ctx, IssueTokenRequest{Identity: alice})
		So(issued.OK, ShouldBeTrue)

		Convey("When the bound player submits with the token", func() {
			resp := g.SubmitRun(ctx, SubmitRunRequest{Identity: alice, Token: issued.Token, SignsLanded: 5})

			Convey("Then the run is accepted and XP granted", func() {
				So(resp.OK, ShouldBeTrue)
				So(resp.XPGranted, ShouldEqual, 100)
				So(resp.DailyStreak, ShouldEqual, 1)
				So(resp.SubmissionID, ShouldNotBeEmpty)
			})

			Convey("And a replay of the same token is rejected", func() {
				again := g.SubmitRun(ctx, SubmitRunRequest{Identity: alice, Token: issued.Token})
				So(again.OK, ShouldBeFalse)
				So(again.Reason, ShouldEqual, ReasonTokenAlreadyUsed)
			})
		})

		Convey("When a different player submits with the token", func() {
			resp := g.SubmitRun(ctx, SubmitRunRequest{Identity: bob, Token: issued.Token})

			Convey("Then it rejects with token_username_mismatch", func() {
				So(resp.OK, ShouldBeFalse)
				So(resp.Reason, ShouldEqual, ReasonTokenUsernameMismatch)
			})

			Convey("And the token is burned: even the owner cannot reuse it", func() {
				owner := g.SubmitRun(ctx, SubmitRunRequest{Identity: alice, Token: issued.Token})
				So(owner.Reason, ShouldEqual, ReasonTokenAlreadyUsed)
			})
		})

		Convey("When the token is absent or unknown", func() {
			missing := g.SubmitRun(ctx, SubmitRunRequest{Identity: alice})
			unknown := g.SubmitRun(ctx, SubmitRunRequest{Identity: alice, Token: "nope"})

			Convey("Then both reject with token_missing", func() {
				So(missing.Reason, ShouldEqual, ReasonTokenMissing)
				So(unknown.Reason, ShouldEqual, ReasonTokenMissing)
			})
		})
	})
}

func TestGatewayStreakReconciliation(t *testing.T) {
	Convey("Given a player submitting runs across days", t, func() {
		ctx := context.Background()
		clock := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) // Monday
		g, store := newTestGateway(&clock)
		mustCreateProfile(store, "alice", "ext-alice")
		alice := Identity{Username: "alice", ExternalID: "ext-alice"}

		submit := func() SubmitRunResponse {
			issued := g.IssueRunToken(ctx, IssueTokenRequest{Identity: alice})
			So(issued.OK, ShouldBeTrue)
			return g.SubmitRun(ctx, SubmitRunRequest{Identity: alice, Token: issued.Token})
		}

		Convey("When runs land on three consecutive days", func() {
			day1 := submit()
			clock = clock.AddDate(0, 0, 1)
			day2 := submit()
			clock = clock.AddDate(0, 0, 1)
			day3 := submit()

			Convey("Then the daily streak advances each day", func() {
				So(day1.DailyStreak, ShouldEqual, 1)
				So(day2.DailyStreak, ShouldEqual, 2)
				So(day3.DailyStreak, ShouldEqual, 3)
			})

			Convey("And the three-day breakpoint raises the grant", func() {
				So(day1.XPGranted, ShouldEqual, 100)
				So(day2.XPGranted, ShouldEqual, 100)
				So(day3.BonusPercent, ShouldEqual, 5)
				So(day3.XPGranted, ShouldEqual, 105)
				So(day3.TotalXP, ShouldEqual, 305)
			})

			Convey("And a second run on the same day leaves the streak alone", func() {
				again := submit()
				So(again.DailyStreak, ShouldEqual, 3)
			})
		})

		Convey("When a day is skipped", func() {
			day1 := submit()
			So(day1.DailyStreak, ShouldEqual, 1)

			clock = clock.AddDate(0, 0, 2)
			later := submit()

			Convey("Then the streak restarts at 1", func() {
				So(later.DailyStreak, ShouldEqual, 1)
			})
		})
	})
}

func TestGatewaySessionBinding(t *testing.T) {
	Convey("Given a profile reachable through verified sessions", t, func() {
		ctx := context.Background()
		clock := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
		g, store := newTestGateway(&clock)
		mustCreateProfile(store, "alice", "prov-1")

		first := VerifiedSession{SessionID: "sess-1", ProviderID: "prov-1"}

		Convey("When the first session reads the quest", func() {
			resp := g.GetQuest(ctx, QuestRequest{Session: first, Username: "alice"})

			Convey("Then it succeeds and binds the session", func() {
				So(resp.OK, ShouldBeTrue)

				p, err := store.GetProfile(ctx, "alice")
				So(err, ShouldBeNil)
				So(p.SessionID, ShouldEqual, "sess-1")
			})

			Convey("And a different session on the same provider is rejected", func() {
				other := VerifiedSession{SessionID: "sess-2", ProviderID: "prov-1"}
				got := g.GetQuest(ctx, QuestRequest{Session: other, Username: "alice"})
				So(got.OK, ShouldBeFalse)
				So(got.Reason, ShouldEqual, ReasonSessionIdentityMismatch)
			})

			Convey("And a session on another provider claiming alice is rejected", func() {
				other := VerifiedSession{SessionID: "sess-9", ProviderID: "prov-9"}
				got := g.GetQuest(ctx, QuestRequest{Session: other, Username: "alice"})
				So(got.OK, ShouldBeFalse)
				So(got.Reason, ShouldEqual, ReasonSessionIdentityMismatch)
			})
		})

		Convey("When the session claims a username it does not own", func() {
			mustCreateProfile(store, "bob", "prov-2")
			resp := g.GetQuest(ctx, QuestRequest{Session: first, Username: "bob"})

			Convey("Then it rejects with session_identity_mismatch", func() {
				So(resp.Reason, ShouldEqual, ReasonSessionIdentityMismatch)
			})
		})

		Convey("When the session carries no provider id", func() {
			resp := g.GetQuest(ctx, QuestRequest{Session: VerifiedSession{SessionID: "sess-1"}})

			Convey("Then it rejects with missing_identity", func() {
				So(resp.Reason, ShouldEqual, ReasonMissingIdentity)
			})
		})
	})
}

func TestGatewayQuestProgress(t *testing.T) {
	Convey("Given a bound session with quest targets 2 daily and 3 weekly", t, func() {
		ctx := context.Background()
		clock := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		g, store := newTestGateway(&clock, WithQuestTargets(2, 3))
		mustCreateProfile(store, "alice", "prov-1")
		sess := VerifiedSession{SessionID: "sess-1", ProviderID: "prov-1"}

		Convey("When progress crosses the daily target", func() {
			mid := g.UpdateQuestProgress(ctx, QuestProgressRequest{Session: sess, DailyDelta: 1})
			done := g.UpdateQuestProgress(ctx, QuestProgressRequest{Session: sess, DailyDelta: 1})

			Convey("Then the completion reward fires exactly once", func() {
				So(mid.OK, ShouldBeTrue)
				So(mid.XP, ShouldEqual, 0)
				So(done.DailyProgress, ShouldEqual, 2)
				So(done.DailyStreak, ShouldEqual, 1)
				So(done.XP, ShouldEqual, 50)

				extra := g.UpdateQuestProgress(ctx, QuestProgressRequest{Session: sess, DailyDelta: 1})
				So(extra.XP, ShouldEqual, 50)
			})
		})

		Convey("When days pass with no completions", func() {
			g.UpdateQuestProgress(ctx, QuestProgressRequest{Session: sess, DailyDelta: 2})
			clock = clock.AddDate(0, 0, 3)

			resp := g.GetQuest(ctx, QuestRequest{Session: sess})

			Convey("Then the read path shows the lapsed streak", func() {
				So(resp.OK, ShouldBeTrue)
				So(resp.DailyStreak, ShouldEqual, 0)
				So(resp.DailyBest, ShouldEqual, 1)
				So(resp.DailyProgress, ShouldEqual, 0)
			})
		})
	})
}

// panicStore wraps a Store and panics on profile reads.
type panicStore struct {
	repository.Store
}

func (panicStore) GetProfile(context.Context, string) (repository.Profile, error) {
	panic("store exploded")
}

func TestGatewayPanicRecovery(t *testing.T) {
	Convey("Given a gateway over a store that panics", t, func() {
		ctx := context.Background()
		g := New(panicStore{Store: repository.NewMemoryStore()})

		Convey("When a call hits the panic", func() {
			resp := g.IssueRunToken(ctx, IssueTokenRequest{
				Identity: Identity{Username: "alice", ExternalID: "ext-alice"},
			})

			Convey("Then it is converted into rpc_exception", func() {
				So(resp.OK, ShouldBeFalse)
				So(resp.Reason, ShouldEqual, ReasonRPCException)
			})
		})
	})
}

func TestGatewayCalibration(t *testing.T) {
	Convey("Given a registered profile", t, func() {
		ctx := context.Background()
		clock := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
		g, store := newTestGateway(&clock)
		mustCreateProfile(store, "alice", "ext-alice")
		alice := Identity{Username: "alice", ExternalID: "ext-alice"}

		Convey("When no calibration was ever saved", func() {
			p, res := g.GetCalibration(ctx, alice)

			Convey("Then defaults come back", func() {
				So(res.OK, ShouldBeTrue)
				So(p.VoteMinConfidence, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When a wild profile is saved", func() {
			req := CalibrationRequest{Identity: alice}
			req.Profile.VoteMinConfidence = 9.5
			req.Profile.VoteRequiredHits = 99
			So(g.SaveCalibration(ctx, req).OK, ShouldBeTrue)

			p, res := g.GetCalibration(ctx, alice)

			Convey("Then it comes back clamped into safe ranges", func() {
				So(res.OK, ShouldBeTrue)
				So(p.VoteMinConfidence, ShouldBeLessThanOrEqualTo, 0.75)
				So(p.VoteRequiredHits, ShouldBeLessThanOrEqualTo, 6)
			})
		})
	})
}

func TestGatewayTokenFactory(t *testing.T) {
	Convey("Given a deterministic token factory", t, func() {
		ctx := context.Background()
		clock := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
		n := 0
		g, store := newTestGateway(&clock, WithTokenFactory(func() string {
			n++
			return fmt.Sprintf("tok-%d", n)
		}))
		mustCreateProfile(store, "alice", "ext-alice")

		Convey("When tokens are issued", func() {
			a := g.IssueRunToken(ctx, IssueTokenRequest{Identity: Identity{Username: "alice", ExternalID: "ext-alice"}})
			b := g.IssueRunToken(ctx, IssueTokenRequest{Identity: Identity{Username: "alice", ExternalID: "ext-alice"}})

			Convey("Then the factory drives the values", func() {
				So(a.Token, ShouldEqual, "tok-1")
				So(b.Token, ShouldEqual, "tok-2")
			})
		})
	})
}
