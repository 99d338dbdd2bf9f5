package run_test

import (
	"testing"
	"time"

	"github.com/okian/mudra/internal/domain/classify"
	"github.com/okian/mudra/internal/domain/run"
	"github.com/okian/mudra/internal/domain/vote"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func sequence() []run.Sign {
	return []run.Sign{
		{Label: "tiger", CastDuration: time.Second},
		{Label: "snake", CastDuration: time.Second},
		{Label: "dragon", CastDuration: 2 * time.Second},
	}
}

func stable(label string) vote.Stable {
	return vote.Stable{Label: label, Confidence: 0.8, Hits: 3}
}

func idleRaw() classify.Result {
	return classify.Result{Label: classify.Idle}
}

func TestMachineRankFlow(t *testing.T) {
	Convey("Given a rank machine that finished loading", t, func() {
		sched := run.NewManualScheduler(t0)
		m := run.NewMachine(sched, run.ModeRank, sequence(),
			run.WithSignCooldown(500*time.Millisecond),
			run.WithCountdownTicks(3),
			run.WithTickInterval(time.Second),
		)
		m.SetupComplete()

		Convey("Then rank mode waits in ready instead of auto-starting", func() {
			So(m.Phase(), ShouldEqual, run.PhaseReady)
		})

		Convey("When the run starts", func() {
			m.Start()

			Convey("Then the countdown runs one proof event per tick", func() {
				So(m.Phase(), ShouldEqual, run.PhaseCountdown)
				sched.Advance(3 * time.Second)
				So(m.Phase(), ShouldEqual, run.PhaseActive)

				ticks := 0
				for _, ev := range m.Proof().Events() {
					if ev.Type == run.EventCountdown {
						ticks++
					}
				}
				So(ticks, ShouldEqual, 3)
			})

			Convey("And the full sequence leads through casting to completed", func() {
				sched.Advance(3 * time.Second)

				m.Observe(stable("tiger"), idleRaw())
				sched.Advance(600 * time.Millisecond)
				m.Observe(stable("snake"), idleRaw())
				sched.Advance(600 * time.Millisecond)
				m.Observe(stable("dragon"), idleRaw())

				So(m.Phase(), ShouldEqual, run.PhaseCasting)
				So(m.SignsLanded(), ShouldEqual, 3)

				// Cast duration comes from the final sign.
				sched.Advance(1900 * time.Millisecond)
				So(m.Phase(), ShouldEqual, run.PhaseCasting)
				sched.Advance(200 * time.Millisecond)
				So(m.Phase(), ShouldEqual, run.PhaseCompleted)
			})
		})
	})
}

func TestMachineSignAcceptance(t *testing.T) {
	Convey("Given an active rank run", t, func() {
		sched := run.NewManualScheduler(t0)
		m := run.NewMachine(sched, run.ModeRank, sequence(),
			run.WithSignCooldown(500*time.Millisecond),
			run.WithAssistConfidence(0.92),
		)
		m.SetupComplete()
		m.Start()
		sched.Advance(3 * time.Second)
		So(m.Phase(), ShouldEqual, run.PhaseActive)

		Convey("When the wrong sign is shown", func() {
			m.Observe(stable("snake"), idleRaw())

			Convey("Then the step does not advance", func() {
				So(m.StepIndex(), ShouldEqual, 0)
			})
		})

		Convey("When the right sign repeats inside the cooldown", func() {
			m.Observe(stable("tiger"), idleRaw())
			sched.Advance(100 * time.Millisecond)
			m.Observe(stable("snake"), idleRaw())

			Convey("Then the second accept is suppressed", func() {
				So(m.StepIndex(), ShouldEqual, 1)
				So(m.SignsLanded(), ShouldEqual, 1)
			})
		})

		Convey("When the raw label is extremely confident but not yet stable", func() {
			m.Observe(vote.Stable{Label: classify.Idle},
				classify.Result{Label: "tiger", Confidence: 0.95})

			Convey("Then the assist policy accepts it", func() {
				So(m.StepIndex(), ShouldEqual, 1)
			})
		})

		Convey("When the raw label confidence is below the assist bar", func() {
			m.Observe(vote.Stable{Label: classify.Idle},
				classify.Result{Label: "tiger", Confidence: 0.8})

			Convey("Then nothing advances", func() {
				So(m.StepIndex(), ShouldEqual, 0)
			})
		})
	})
}

func TestMachinePracticeLoop(t *testing.T) {
	Convey("Given a practice machine", t, func() {
		sched := run.NewManualScheduler(t0)
		seq := []run.Sign{{Label: "tiger", CastDuration: time.Second}}
		m := run.NewMachine(sched, run.ModePractice, seq,
			run.WithSignCooldown(500*time.Millisecond))

		Convey("When setup completes", func() {
			m.SetupComplete()

			Convey("Then the run auto-starts", func() {
				So(m.Phase(), ShouldEqual, run.PhaseActive)
			})

			Convey("And finishing the sequence loops into a fresh run", func() {
				m.Observe(stable("tiger"), idleRaw())
				So(m.Phase(), ShouldEqual, run.PhaseCasting)
				sched.Advance(time.Second)
				So(m.Phase(), ShouldEqual, run.PhaseActive)
				So(m.StepIndex(), ShouldEqual, 0)
				So(m.SignsLanded(), ShouldEqual, 0)
			})
		})
	})
}

func TestMachineReset(t *testing.T) {
	Convey("Given a rank run mid-cast", t, func() {
		sched := run.NewManualScheduler(t0)
		seq := []run.Sign{{Label: "tiger", CastDuration: 5 * time.Second}}
		m := run.NewMachine(sched, run.ModeRank, seq)
		m.SetupComplete()
		m.Start()
		sched.Advance(3 * time.Second)
		m.Observe(stable("tiger"), idleRaw())
		So(m.Phase(), ShouldEqual, run.PhaseCasting)

		Convey("When reset", func() {
			m.Reset()

			Convey("Then the machine returns to ready with no proof state", func() {
				So(m.Phase(), ShouldEqual, run.PhaseReady)
				So(m.Proof(), ShouldBeNil)
			})

			Convey("And the stale cast timer never fires into the new state", func() {
				sched.Advance(10 * time.Second)
				So(m.Phase(), ShouldEqual, run.PhaseReady)
			})
		})
	})
}

func TestMachineErrorAndStall(t *testing.T) {
	Convey("Given a loading machine", t, func() {
		sched := run.NewManualScheduler(t0)
		m := run.NewMachine(sched, run.ModeRank, sequence())

		Convey("When setup fails", func() {
			m.SetupFailed()

			Convey("Then the machine lands in error", func() {
				So(m.Phase(), ShouldEqual, run.PhaseError)
			})
		})
	})

	Convey("Given an active run with a live camera clock", t, func() {
		sched := run.NewManualScheduler(t0)
		m := run.NewMachine(sched, run.ModePractice, sequence(),
			run.WithStallTimeout(2*time.Second))
		m.SetupComplete()
		m.VideoTick(t0)

		Convey("When the clock keeps advancing", func() {
			m.CheckStall(t0.Add(time.Second))

			Convey("Then detection stays healthy", func() {
				So(m.Degraded(), ShouldBeFalse)
			})
		})

		Convey("When the clock stalls past the timeout", func() {
			m.CheckStall(t0.Add(3 * time.Second))

			Convey("Then the machine degrades without corrupting the run", func() {
				So(m.Degraded(), ShouldBeTrue)
				So(m.Phase(), ShouldEqual, run.PhaseActive)
			})

			Convey("And a fresh tick recovers", func() {
				m.VideoTick(t0.Add(4 * time.Second))
				So(m.Degraded(), ShouldBeFalse)
			})
		})
	})
}

func TestProofLogOverflow(t *testing.T) {
	Convey("Given a proof log", t, func() {
		log := run.NewProofLog(t0)

		Convey("When events exceed the cap", func() {
			for i := 0; i < 600; i++ {
				log.Append(t0.Add(time.Duration(i)*time.Millisecond), run.ProofEvent{Type: run.EventSign})
			}

			Convey("Then a single overflow marker terminates the log", func() {
				So(log.Overflowed(), ShouldBeTrue)
				events := log.Events()
				So(len(events), ShouldEqual, 513)
				So(events[len(events)-1].Type, ShouldEqual, run.EventOverflow)
				for _, ev := range events[:len(events)-1] {
					So(ev.Type, ShouldEqual, run.EventSign)
				}
			})
		})
	})
}

func TestEnvelope(t *testing.T) {
	Convey("Given a completed rank run", t, func() {
		sched := run.NewManualScheduler(t0)
		seq := []run.Sign{{Label: "tiger", CastDuration: time.Second}}
		m := run.NewMachine(sched, run.ModeRank, seq)
		m.SetupComplete()
		m.Start()
		sched.Advance(3 * time.Second)
		m.Observe(stable("tiger"), idleRaw())
		sched.Advance(time.Second)
		So(m.Phase(), ShouldEqual, run.PhaseCompleted)

		Convey("When the envelope is built", func() {
			env, ok := m.BuildEnvelope(run.EnvelopeContext{
				Token:          "tok-1",
				TokenSource:    "run_start",
				VoteHits:       3,
				VoteConfidence: 0.45,
				StrictTwoHand:  true,
				Camera:         "integrated",
				Resolution:     "1280x720",
			})

			Convey("Then it snapshots the run context", func() {
				So(ok, ShouldBeTrue)
				So(env.Token, ShouldEqual, "tok-1")
				So(env.Overflowed, ShouldBeFalse)
				So(env.CooldownMS, ShouldEqual, 500)
				So(env.StrictTwoHand, ShouldBeTrue)
				So(env.EnvelopeID, ShouldNotBeEmpty)
				So(len(env.Events), ShouldBeGreaterThanOrEqualTo, 5)
			})
		})
	})

	Convey("Given a machine with no run yet", t, func() {
		m := run.NewMachine(run.NewManualScheduler(t0), run.ModeRank, sequence())

		Convey("When the envelope is requested", func() {
			_, ok := m.BuildEnvelope(run.EnvelopeContext{})

			Convey("Then it reports absence instead of fabricating one", func() {
				So(ok, ShouldBeFalse)
			})
		})
	})
}
