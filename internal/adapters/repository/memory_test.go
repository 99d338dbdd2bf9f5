package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/mudra/internal/adapters/repository"
	"github.com/okian/mudra/internal/domain/calibrate"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryStoreProfiles(t *testing.T) {
	Convey("Given an empty store", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()

		Convey("When a profile is created", func() {
			err := store.CreateProfile(ctx, repository.Profile{Username: "Alice", ExternalID: "ext-1"})
			So(err, ShouldBeNil)

			Convey("Then lookup is case-insensitive", func() {
				p, err := store.GetProfile(ctx, "ALICE")
				So(err, ShouldBeNil)
				So(p.Username, ShouldEqual, "Alice")
			})

			Convey("And the external id resolves back to it", func() {
				p, err := store.GetProfileByExternalID(ctx, "ext-1")
				So(err, ShouldBeNil)
				So(p.Username, ShouldEqual, "Alice")
			})

			Convey("And a duplicate username conflicts", func() {
				err := store.CreateProfile(ctx, repository.Profile{Username: "alice"})
				So(err, ShouldEqual, repository.ErrConflict)
			})

			Convey("And a duplicate external id conflicts", func() {
				err := store.CreateProfile(ctx, repository.Profile{Username: "bob", ExternalID: "ext-1"})
				So(err, ShouldEqual, repository.ErrConflict)
			})
		})

		Convey("When an unknown profile is fetched", func() {
			_, err := store.GetProfile(ctx, "ghost")

			Convey("Then it reports not found", func() {
				So(err, ShouldEqual, repository.ErrNotFound)
			})
		})
	})
}

func TestMemoryStoreTokens(t *testing.T) {
	Convey("Given a store with one issued token", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		tok := repository.RunToken{Token: "tok-1", BoundUsername: "alice", Mode: "rank", IssuedAt: time.Now()}
		So(store.InsertToken(ctx, tok), ShouldBeNil)

		Convey("When the token is consumed", func() {
			got, err := store.ConsumeToken(ctx, "tok-1")

			Convey("Then it returns the bound identity", func() {
				So(err, ShouldBeNil)
				So(got.BoundUsername, ShouldEqual, "alice")
				So(got.Consumed, ShouldBeTrue)
			})

			Convey("And a second consume is a replay", func() {
				_, err := store.ConsumeToken(ctx, "tok-1")
				So(err, ShouldEqual, repository.ErrTokenUsed)
			})
		})

		Convey("When an unknown token is consumed", func() {
			_, err := store.ConsumeToken(ctx, "nope")

			Convey("Then it reports not found", func() {
				So(err, ShouldEqual, repository.ErrNotFound)
			})
		})
	})
}

func TestMemoryStoreBuckets(t *testing.T) {
	Convey("Given a rate bucket window", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		window := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

		Convey("When the same key increments repeatedly", func() {
			var last int
			for i := 0; i < 5; i++ {
				n, err := store.IncrBucket(ctx, "submit", "alice", window)
				So(err, ShouldBeNil)
				last = n
			}

			Convey("Then the count only increases", func() {
				So(last, ShouldEqual, 5)
			})

			Convey("And a different window starts fresh", func() {
				n, err := store.IncrBucket(ctx, "submit", "alice", window.Add(time.Minute))
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})

		Convey("When old windows are pruned", func() {
			_, _ = store.IncrBucket(ctx, "submit", "alice", window)
			_, _ = store.IncrBucket(ctx, "submit", "alice", window.Add(time.Hour))

			removed, err := store.PruneBuckets(ctx, window.Add(30*time.Minute))

			Convey("Then only rows past the horizon go", func() {
				So(err, ShouldBeNil)
				So(removed, ShouldEqual, 1)
			})
		})
	})
}

func TestMemoryStoreQuestAndCalibration(t *testing.T) {
	Convey("Given a store", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()

		Convey("When a quest update runs atomically", func() {
			doc, err := store.ApplyQuest(ctx, "alice", func(d *repository.QuestDoc) error {
				d.DailyProgress++
				d.XP += 100
				return nil
			})

			Convey("Then the document reflects the mutation", func() {
				So(err, ShouldBeNil)
				So(doc.DailyProgress, ShouldEqual, 1)
				So(doc.XP, ShouldEqual, 100)
			})

			Convey("And a second update sees the first", func() {
				doc2, err := store.ApplyQuest(ctx, "alice", func(d *repository.QuestDoc) error {
					d.XP += 50
					return nil
				})
				So(err, ShouldBeNil)
				So(doc2.XP, ShouldEqual, 150)
			})
		})

		Convey("When a calibration profile round-trips", func() {
			p := calibrate.DefaultProfile()
			p.Samples = 42
			So(store.SaveCalibration(ctx, "Alice", p), ShouldBeNil)

			got, err := store.GetCalibration(ctx, "alice")

			Convey("Then it persists keyed by identity", func() {
				So(err, ShouldBeNil)
				So(got.Samples, ShouldEqual, 42)
			})
		})
	})
}
