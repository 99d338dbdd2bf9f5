package simulate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/mudra/internal/domain/feature"
	"github.com/okian/mudra/internal/domain/landmark"
	"github.com/okian/mudra/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestReferenceSet(t *testing.T) {
	Convey("Given the synthetic reference table", t, func() {
		refs, err := loadReferenceSet("")

		Convey("Then it parses with one row per label", func() {
			So(err, ShouldBeNil)
			So(refs.Rows(), ShouldHaveLength, len(signLabels))
			So(refs.Labels(), ShouldHaveLength, len(signLabels))
			for _, row := range refs.Rows() {
				So(row.Values, ShouldHaveLength, feature.VectorLen)
			}
		})

		Convey("And the same label always renders the same pose", func() {
			a := basePose("tiger")
			b := basePose("tiger")
			So(a[0], ShouldResemble, b[0])
			So(a[1], ShouldResemble, b[1])
		})

		Convey("And different labels render different poses", func() {
			a := basePose("tiger")
			b := basePose("snake")
			So(a[0], ShouldNotResemble, b[0])
		})
	})
}

func TestReferenceSetFromFile(t *testing.T) {
	Convey("Given a dataset CSV on disk", t, func() {
		csvText, err := referenceCSV()
		So(err, ShouldBeNil)
		path := filepath.Join(t.TempDir(), "gestures.csv")
		So(os.WriteFile(path, []byte(csvText), 0o600), ShouldBeNil)

		Convey("When the configured path loads it", func() {
			refs, err := loadReferenceSet(path)

			Convey("Then the file-backed table matches the synthetic one", func() {
				So(err, ShouldBeNil)
				So(refs.Rows(), ShouldHaveLength, len(signLabels))
			})
		})

		Convey("When the path does not exist", func() {
			_, err := loadReferenceSet(filepath.Join(t.TempDir(), "missing.csv"))

			Convey("Then loading fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestFrameRendering(t *testing.T) {
	Convey("Given a rendered reference frame", t, func() {
		frame := referenceFrame("dragon")

		Convey("Then both hands are valid and opposite-handed", func() {
			So(frame.Hands, ShouldHaveLength, landmark.MaxHands)
			So(frame.Hands[0].Valid(), ShouldBeTrue)
			So(frame.Hands[1].Valid(), ShouldBeTrue)
			So(frame.Hands[0].Handedness, ShouldEqual, landmark.HandednessLeft)
			So(frame.Hands[1].Handedness, ShouldEqual, landmark.HandednessRight)
		})
	})
}

func TestSequenceFor(t *testing.T) {
	Convey("Given rotated sequences", t, func() {
		first := sequenceFor(3, 0)
		second := sequenceFor(3, 1)

		Convey("Then each run gets the requested length", func() {
			So(first, ShouldHaveLength, 3)
			So(second, ShouldHaveLength, 3)
		})

		Convey("And the rotation shifts the opening sign", func() {
			So(second[0].Label, ShouldEqual, first[1].Label)
		})
	})
}

func TestSimulationRun(t *testing.T) {
	Convey("Given a small deterministic simulation", t, func() {
		So(logger.Init(), ShouldBeNil)
		cfg := Config{Players: 1, Runs: 2, Signs: 3, Seed: 7}

		stats, err := Run(context.Background(), cfg)

		Convey("Then every run completes and is accepted", func() {
			So(err, ShouldBeNil)
			So(stats.RunsAttempted, ShouldEqual, 2)
			So(stats.RunsCompleted, ShouldEqual, 2)
			So(stats.RunsStalled, ShouldEqual, 0)
			So(stats.RunsAccepted, ShouldEqual, 2)
			So(stats.SignsLanded, ShouldEqual, 6)
			So(stats.Rejections, ShouldBeEmpty)
		})

		Convey("And the player ran on their own calibration profile", func() {
			So(err, ShouldBeNil)
			So(stats.PlayersCalibrated, ShouldEqual, 1)
		})

		Convey("And dark frames were held back by the lighting gate", func() {
			So(err, ShouldBeNil)
			So(stats.FramesGated, ShouldBeGreaterThan, 0)
		})

		Convey("And XP reflects two base run grants on a fresh streak", func() {
			So(err, ShouldBeNil)
			So(stats.XPGranted, ShouldEqual, 200)
		})

		Convey("And the pipeline saw frames including occluded ones", func() {
			So(err, ShouldBeNil)
			So(stats.FramesProcessed, ShouldBeGreaterThan, 0)
			So(stats.FramesOccluded, ShouldBeGreaterThan, 0)
		})
	})
}
