// Package feature turns raw per-frame hand landmarks into fixed-length
// feature vectors, keeping the two hand slots temporally coherent across
// brief detection dropouts.
package feature

import (
	"math"

	"github.com/okian/mudra/internal/domain/landmark"
)

// Vector layout constants.
const (
	// HandLen is the per-hand feature length: 21 joints x 3 coordinates.
	HandLen = landmark.JointCount * 3

	// VectorLen is the total feature length regardless of visible hands.
	VectorLen = HandLen * landmark.MaxHands
)

// Vector is the fixed-length feature layout consumed by the classifier.
// Slot 0 occupies [0, HandLen), slot 1 occupies [HandLen, VectorLen).
type Vector [VectorLen]float64

// HandSub returns the sub-vector for the given slot.
func (v *Vector) HandSub(slot int) []float64 {
	return v[slot*HandLen : (slot+1)*HandLen]
}

// Counts summarizes hand visibility for the current frame.
type Counts struct {
	// Detected is the number of valid hands in the raw frame.
	Detected int
	// Tracked is the number of slots currently holding a live vector,
	// including decayed ones inside the hold budget.
	Tracked int
	// Occluded is the number of slots coasting on a decayed vector.
	Occluded int
}

// slot is the per-tracked-hand memory.
type slot struct {
	active     bool
	center     landmark.Point
	sub        [HandLen]float64
	handedness landmark.Handedness
	missing    int
}

func (s *slot) reset() {
	*s = slot{}
}

// Extractor assigns detections to stable slots and emits feature vectors.
// It is not safe for concurrent use; the pipeline is single-threaded.
type Extractor struct {
	slots       [landmark.MaxHands]slot
	depthWeight float64
	decay       float64
	holdFrames  int
	maxMissing  int
}

// New creates an Extractor with default tracking parameters.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		depthWeight: defaultDepthWeight,
		decay:       defaultDecayFactor,
		holdFrames:  defaultHoldFrames,
		maxMissing:  defaultMaxMissingFrames,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract consumes one detector frame and returns the feature vector plus
// visibility counts. The vector length is constant for 0, 1 or 2 hands.
func (e *Extractor) Extract(frame landmark.Frame) (Vector, Counts) {
	hands := validHands(frame)

	assigned := e.assign(hands)

	var out Vector
	counts := Counts{Detected: len(hands)}

	for i := range e.slots {
		s := &e.slots[i]
		if h, ok := assigned[i]; ok {
			normalizeHand(h, s.sub[:])
			s.active = true
			s.center = h.Center()
			s.handedness = h.Handedness
			s.missing = 0
			counts.Tracked++
			copy(out.HandSub(i), s.sub[:])
			continue
		}
		if !s.active {
			continue
		}
		s.missing++
		if s.missing > e.maxMissing {
			s.reset()
			continue
		}
		if s.missing <= e.holdFrames {
			// Coast on the last known sub-vector at decayed magnitude.
			for j := range s.sub {
				s.sub[j] *= e.decay
			}
			copy(out.HandSub(i), s.sub[:])
			counts.Tracked++
			counts.Occluded++
		}
		// Beyond the hold budget the sub-vector stays zero-filled while
		// the slot itself survives until maxMissing.
	}

	return out, counts
}

// Reset clears all slot memory, e.g. when a new run starts.
func (e *Extractor) Reset() {
	for i := range e.slots {
		e.slots[i].reset()
	}
}

// assign maps detections onto slots: nearest previous-center first, then
// handedness label, then left-to-right order into empty slots.
func (e *Extractor) assign(hands []landmark.Hand) map[int]landmark.Hand {
	assigned := make(map[int]landmark.Hand, len(hands))
	usedHand := make([]bool, len(hands))
	usedSlot := [landmark.MaxHands]bool{}

	// Pass 1: nearest previous center for active slots.
	type pair struct {
		slot, hand int
		dist       float64
	}
	var pairs []pair
	for si := range e.slots {
		if !e.slots[si].active {
			continue
		}
		for hi, h := range hands {
			pairs = append(pairs, pair{si, hi, e.centerDistance(e.slots[si].center, h.Center())})
		}
	}
	for {
		best := -1
		for i, p := range pairs {
			if usedSlot[p.slot] || usedHand[p.hand] {
				continue
			}
			if best < 0 || p.dist < pairs[best].dist {
				best = i
				continue
			}
			if p.dist == pairs[best].dist &&
				preferHand(e.slots[p.slot], hands[p.hand], hands[pairs[best].hand]) {
				best = i
			}
		}
		if best < 0 {
			break
		}
		p := pairs[best]
		assigned[p.slot] = hands[p.hand]
		usedSlot[p.slot] = true
		usedHand[p.hand] = true
	}

	// Pass 2: handedness label into empty slots (left -> slot 0).
	for hi, h := range hands {
		if usedHand[hi] || h.Handedness == landmark.HandednessUnknown {
			continue
		}
		want := 0
		if h.Handedness == landmark.HandednessRight {
			want = 1
		}
		if !usedSlot[want] {
			assigned[want] = h
			usedSlot[want] = true
			usedHand[hi] = true
		}
	}

	// Pass 3: remaining detections fill empty slots left-to-right by x.
	for {
		hi := -1
		for i, h := range hands {
			if usedHand[i] {
				continue
			}
			if hi < 0 || h.Center().X < hands[hi].Center().X {
				hi = i
			}
		}
		if hi < 0 {
			break
		}
		placed := false
		for si := range usedSlot {
			if !usedSlot[si] {
				assigned[si] = hands[hi]
				usedSlot[si] = true
				placed = true
				break
			}
		}
		usedHand[hi] = true
		if !placed {
			break
		}
	}

	return assigned
}

// centerDistance is Euclidean in the image plane plus a damped depth term.
func (e *Extractor) centerDistance(a, b landmark.Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := (a.Z - b.Z) * e.depthWeight
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// preferHand breaks distance ties: a handedness match wins, then the
// leftmost detection.
func preferHand(s slot, candidate, current landmark.Hand) bool {
	if candidate.Handedness == s.handedness && current.Handedness != s.handedness {
		return true
	}
	if candidate.Handedness != s.handedness && current.Handedness == s.handedness {
		return false
	}
	return candidate.Center().X < current.Center().X
}

func validHands(frame landmark.Frame) []landmark.Hand {
	hands := make([]landmark.Hand, 0, landmark.MaxHands)
	for _, h := range frame.Hands {
		if h.Valid() {
			hands = append(hands, h)
		}
		if len(hands) == landmark.MaxHands {
			break
		}
	}
	return hands
}

// normalizeHand writes the translation/scale-invariant sub-vector for one
// hand: landmarks relative to the wrist, scaled by the wrist->middle-MCP
// span. A degenerate span falls back to the bounding-box diagonal.
func normalizeHand(h landmark.Hand, dst []float64) {
	anchor := h.Landmarks[landmark.WristJoint]
	span := pointDistance(anchor, h.Landmarks[landmark.MiddleMCPJoint])
	if span < minPalmSpan {
		span = bboxDiagonal(h.Landmarks)
	}
	if span < minPalmSpan {
		span = minPalmSpan
	}
	for i, p := range h.Landmarks {
		dst[i*3] = (p.X - anchor.X) / span
		dst[i*3+1] = (p.Y - anchor.Y) / span
		dst[i*3+2] = (p.Z - anchor.Z) / span
	}
}

func pointDistance(a, b landmark.Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func bboxDiagonal(pts []landmark.Point) float64 {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	dx := maxX - minX
	dy := maxY - minY
	return math.Sqrt(dx*dx + dy*dy)
}
