package feature_test

import (
	"testing"
	"time"

	"github.com/okian/mudra/internal/domain/feature"
	"github.com/okian/mudra/internal/domain/landmark"
	. "github.com/smartystreets/goconvey/convey"
)

// synthHand builds a hand centered at (cx, cy) with a unit-ish palm span.
func synthHand(cx, cy float64, handedness landmark.Handedness) landmark.Hand {
	h := landmark.Hand{Handedness: handedness, Score: 0.9}
	h.Landmarks = make([]landmark.Point, landmark.JointCount)
	for i := range h.Landmarks {
		// Spread the joints a little so the palm span is non-degenerate.
		h.Landmarks[i] = landmark.Point{
			X: cx + float64(i)*0.004,
			Y: cy + float64(i%5)*0.01,
			Z: 0.01 * float64(i%3),
		}
	}
	return h
}

func frameOf(hands ...landmark.Hand) landmark.Frame {
	return landmark.Frame{Hands: hands, At: time.Now()}
}

func TestExtractorVectorLength(t *testing.T) {
	Convey("Given a fresh extractor", t, func() {
		ex := feature.New()

		Convey("When the frame has no hands", func() {
			vec, counts := ex.Extract(frameOf())

			Convey("Then the vector is full-length and zero", func() {
				So(len(vec), ShouldEqual, feature.VectorLen)
				So(counts.Detected, ShouldEqual, 0)
				for _, v := range vec {
					So(v, ShouldEqual, 0)
				}
			})
		})

		Convey("When the frame has one hand", func() {
			vec, counts := ex.Extract(frameOf(synthHand(0.3, 0.5, landmark.HandednessLeft)))

			Convey("Then the vector is still full-length", func() {
				So(len(vec), ShouldEqual, feature.VectorLen)
				So(counts.Detected, ShouldEqual, 1)
				So(counts.Tracked, ShouldEqual, 1)
			})

			Convey("And the other slot stays zero-filled", func() {
				for _, v := range vec.HandSub(1) {
					So(v, ShouldEqual, 0)
				}
			})
		})

		Convey("When the frame has two hands", func() {
			vec, counts := ex.Extract(frameOf(
				synthHand(0.25, 0.5, landmark.HandednessLeft),
				synthHand(0.75, 0.5, landmark.HandednessRight),
			))

			Convey("Then both slots are populated", func() {
				So(len(vec), ShouldEqual, feature.VectorLen)
				So(counts.Detected, ShouldEqual, 2)
				So(counts.Tracked, ShouldEqual, 2)
				So(nonZero(vec.HandSub(0)), ShouldBeTrue)
				So(nonZero(vec.HandSub(1)), ShouldBeTrue)
			})
		})
	})
}

func TestExtractorTranslationScaleInvariance(t *testing.T) {
	Convey("Given two frames with the same pose at different positions and scales", t, func() {
		base := synthHand(0.2, 0.2, landmark.HandednessLeft)

		shifted := base
		shifted.Landmarks = make([]landmark.Point, len(base.Landmarks))
		for i, p := range base.Landmarks {
			shifted.Landmarks[i] = landmark.Point{
				X: (p.X-0.2)*2 + 0.6,
				Y: (p.Y-0.2)*2 + 0.6,
				Z: p.Z * 2,
			}
		}

		Convey("When both are extracted", func() {
			vecA, _ := feature.New().Extract(frameOf(base))
			vecB, _ := feature.New().Extract(frameOf(shifted))

			Convey("Then the normalized sub-vectors match", func() {
				subA, subB := vecA.HandSub(0), vecB.HandSub(0)
				for i := range subA {
					So(subB[i], ShouldAlmostEqual, subA[i], 1e-9)
				}
			})
		})
	})
}

func TestExtractorOcclusionDecay(t *testing.T) {
	Convey("Given an extractor tracking one hand", t, func() {
		ex := feature.New(
			feature.WithDecayFactor(0.5),
			feature.WithHoldFrames(2),
			feature.WithMaxMissingFrames(4),
		)
		hand := synthHand(0.4, 0.4, landmark.HandednessLeft)
		vec0, _ := ex.Extract(frameOf(hand))

		Convey("When the hand drops out for one frame", func() {
			vec1, counts := ex.Extract(frameOf())

			Convey("Then the slot coasts on a decayed vector", func() {
				So(counts.Occluded, ShouldEqual, 1)
				So(counts.Tracked, ShouldEqual, 1)
				sub0, sub1 := vec0.HandSub(0), vec1.HandSub(0)
				for i := range sub0 {
					So(sub1[i], ShouldAlmostEqual, sub0[i]*0.5, 1e-9)
				}
			})
		})

		Convey("When the dropout exceeds the hold budget", func() {
			ex.Extract(frameOf())
			ex.Extract(frameOf())
			vec3, counts := ex.Extract(frameOf())

			Convey("Then the sub-vector is zero-filled but the slot survives", func() {
				So(counts.Tracked, ShouldEqual, 0)
				So(nonZero(vec3.HandSub(0)), ShouldBeFalse)
			})
		})

		Convey("When the dropout exceeds the missing budget and the hand returns", func() {
			for i := 0; i < 5; i++ {
				ex.Extract(frameOf())
			}
			vec, counts := ex.Extract(frameOf(hand))

			Convey("Then tracking restarts cleanly", func() {
				So(counts.Detected, ShouldEqual, 1)
				So(counts.Tracked, ShouldEqual, 1)
				So(nonZero(vec.HandSub(0)), ShouldBeTrue)
			})
		})
	})
}

func TestExtractorSlotStability(t *testing.T) {
	Convey("Given two tracked hands", t, func() {
		ex := feature.New()
		left := synthHand(0.25, 0.5, landmark.HandednessLeft)
		right := synthHand(0.75, 0.5, landmark.HandednessRight)
		ex.Extract(frameOf(left, right))

		Convey("When the next frame reports them in swapped order", func() {
			vec, _ := ex.Extract(frameOf(right, left))

			Convey("Then slots stay with their nearest previous centers", func() {
				// Slot 0 still holds the left hand: its normalized
				// sub-vector should match a fresh left-only extraction.
				ref, _ := feature.New().Extract(frameOf(left))
				sub, refSub := vec.HandSub(0), ref.HandSub(0)
				for i := range sub {
					So(sub[i], ShouldAlmostEqual, refSub[i], 1e-9)
				}
			})
		})
	})
}

func nonZero(sub []float64) bool {
	for _, v := range sub {
		if v != 0 {
			return true
		}
	}
	return false
}
