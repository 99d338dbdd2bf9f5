package simulate

import (
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/okian/mudra/internal/domain/landmark"
)

// basePose deterministically derives a two-hand joint layout for a label.
// The same label always yields the same pose, so reference vectors and
// simulated frames agree up to jitter.
func basePose(label string) [landmark.MaxHands][]landmark.Point {
	h := fnv.New64a()
	_, _ = h.Write([]byte(label))
	rng := rand.New(rand.NewSource(int64(h.Sum64()))) //nolint:gosec // simulation noise only

	var hands [landmark.MaxHands][]landmark.Point
	wristX := [landmark.MaxHands]float64{0.32, 0.68}
	for slot := 0; slot < landmark.MaxHands; slot++ {
		joints := make([]landmark.Point, landmark.JointCount)
		wrist := landmark.Point{X: wristX[slot], Y: 0.62, Z: 0}
		joints[landmark.WristJoint] = wrist
		for j := 1; j < landmark.JointCount; j++ {
			joints[j] = landmark.Point{
				X: wrist.X + (rng.Float64()-0.5)*0.24,
				Y: wrist.Y - rng.Float64()*0.28,
				Z: (rng.Float64() - 0.5) * 0.08,
			}
		}
		// Pin the palm-span reference so scale normalization is stable.
		joints[landmark.MiddleMCPJoint] = landmark.Point{
			X: wrist.X + 0.01, Y: wrist.Y - 0.11, Z: 0,
		}
		hands[slot] = joints
	}
	return hands
}

// referenceFrame renders the jitter-free frame used for reference rows.
func referenceFrame(label string) landmark.Frame {
	base := basePose(label)
	frame := landmark.Frame{}
	handedness := [landmark.MaxHands]landmark.Handedness{
		landmark.HandednessLeft, landmark.HandednessRight,
	}
	for slot := 0; slot < landmark.MaxHands; slot++ {
		joints := make([]landmark.Point, landmark.JointCount)
		copy(joints, base[slot])
		frame.Hands = append(frame.Hands, landmark.Hand{
			Landmarks:  joints,
			Handedness: handedness[slot],
			Score:      handScore,
		})
	}
	return frame
}

// frameFor renders one detector frame for a label with per-frame jitter.
// occludeSlot drops that hand from the frame; pass -1 for both visible.
func frameFor(label string, rng *rand.Rand, at time.Time, occludeSlot int) landmark.Frame {
	base := basePose(label)
	frame := landmark.Frame{At: at}
	handedness := [landmark.MaxHands]landmark.Handedness{
		landmark.HandednessLeft, landmark.HandednessRight,
	}
	for slot := 0; slot < landmark.MaxHands; slot++ {
		if slot == occludeSlot {
			continue
		}
		joints := make([]landmark.Point, landmark.JointCount)
		for j, p := range base[slot] {
			joints[j] = landmark.Point{
				X: p.X + (rng.Float64()-0.5)*poseJitter,
				Y: p.Y + (rng.Float64()-0.5)*poseJitter,
				Z: p.Z + (rng.Float64()-0.5)*poseJitter,
			}
		}
		frame.Hands = append(frame.Hands, landmark.Hand{
			Landmarks:  joints,
			Handedness: handedness[slot],
			Score:      handScore,
		})
	}
	return frame
}
