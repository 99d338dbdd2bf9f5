// Package classify maps feature vectors to sign labels with a k-nearest
// neighbor vote over a labeled reference set.
package classify

import (
	"math"
	"sort"

	"github.com/okian/mudra/internal/domain/feature"
)

// Idle is the sentinel label meaning "no known sign confidently matched".
const Idle = "idle"

// k is the neighbor count for the KNN vote.
const k = 3

// Result is a single classification outcome.
type Result struct {
	Label      string
	Confidence float64 // in [0,1]
	Distance   float64 // >= 0, Euclidean to the nearest neighbor
}

// IsIdle reports whether the result is the idle sentinel.
func (r Result) IsIdle() bool {
	return r.Label == Idle
}

// Classifier runs KNN over a reference set. Safe for concurrent reads once
// constructed; the reference set is immutable after load.
type Classifier struct {
	refs              *RefSet
	idleDistance      float64
	assistIdleDist    float64
	expectedMargin    float64
	minAssistHandConf float64
}

// New creates a Classifier over the given reference set.
func New(refs *RefSet, opts ...Option) *Classifier {
	c := &Classifier{
		refs:              refs,
		idleDistance:      defaultIdleDistance,
		assistIdleDist:    defaultAssistIdleDistance,
		expectedMargin:    defaultExpectedMargin,
		minAssistHandConf: defaultMinAssistHandConf,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify maps a full two-hand feature vector to a result. The label is
// idle when the best distance exceeds the idle threshold.
func (c *Classifier) Classify(vec feature.Vector) Result {
	return c.vote(vec[:], c.idleDistance)
}

// ClassifyAssisted handles the single-hand case: the visible hand's
// sub-vector is tried mirrored and duplicated into both slot positions and
// the best non-idle result wins. The expected sign is preferred when its
// margin over idle is large enough, so one-handed execution of a two-handed
// sign is not silently rejected.
//
// presentSlot is the slot holding the visible hand; handScore is the
// detector's confidence for it.
func (c *Classifier) ClassifyAssisted(vec feature.Vector, presentSlot int, handScore float64, expected string) Result {
	if handScore < c.minAssistHandConf {
		return Result{Label: Idle, Confidence: 0, Distance: math.Inf(1)}
	}

	sub := vec.HandSub(presentSlot)
	candidates := assistCandidates(sub, presentSlot)

	best := Result{Label: Idle, Confidence: 0, Distance: math.Inf(1)}
	var expectedBest *Result
	for _, cand := range candidates {
		r := c.vote(cand, c.assistIdleDist)
		if r.IsIdle() {
			continue
		}
		if r.Label == expected {
			if expectedBest == nil || r.Distance < expectedBest.Distance {
				rc := r
				expectedBest = &rc
			}
		}
		if r.Distance < best.Distance {
			best = r
		}
	}

	// Prefer the expected sign when it clears idle by a wide margin even
	// if some other label is marginally closer.
	if expectedBest != nil && c.assistIdleDist-expectedBest.Distance >= c.expectedMargin {
		return *expectedBest
	}
	return best
}

// vote runs the KNN vote against the loaded references, using only the
// vector positions where the candidate is non-zero-padded (references store
// full-length vectors; masking happens via the candidate layout itself).
func (c *Classifier) vote(vec []float64, idleThreshold float64) Result {
	rows := c.refs.Rows()
	if len(rows) == 0 {
		return Result{Label: Idle, Confidence: 0, Distance: math.Inf(1)}
	}

	type scored struct {
		label string
		dist  float64
	}
	nearest := make([]scored, 0, len(rows))
	for _, row := range rows {
		nearest = append(nearest, scored{row.Label, euclidean(vec, row.Values)})
	}
	sort.Slice(nearest, func(i, j int) bool { return nearest[i].dist < nearest[j].dist })

	n := k
	if n > len(nearest) {
		n = len(nearest)
	}
	counts := make(map[string]int, n)
	closest := make(map[string]float64, n)
	for _, s := range nearest[:n] {
		counts[s.label]++
		if d, ok := closest[s.label]; !ok || s.dist < d {
			closest[s.label] = s.dist
		}
	}

	winner := nearest[0].label
	for label, cnt := range counts {
		if cnt > counts[winner] || (cnt == counts[winner] && closest[label] < closest[winner]) {
			winner = label
		}
	}

	dist := closest[winner]
	if dist > idleThreshold {
		return Result{Label: Idle, Confidence: 0, Distance: dist}
	}
	return Result{
		Label:      winner,
		Confidence: confidenceFrom(dist, idleThreshold),
		Distance:   dist,
	}
}

// confidenceFrom maps a distance to [0,1] against the idle threshold.
func confidenceFrom(dist, idleThreshold float64) float64 {
	if idleThreshold <= 0 {
		return 0
	}
	conf := 1 - dist/idleThreshold
	return math.Max(0, math.Min(1, conf))
}

// assistCandidates builds full-length vectors from a single hand:
// duplicated into both slots, and mirrored into the opposite slot.
func assistCandidates(sub []float64, presentSlot int) [][]float64 {
	mirror := mirrorSub(sub)

	dup := make([]float64, feature.VectorLen)
	copy(dup[:feature.HandLen], sub)
	copy(dup[feature.HandLen:], sub)

	mirrored := make([]float64, feature.VectorLen)
	if presentSlot == 0 {
		copy(mirrored[:feature.HandLen], sub)
		copy(mirrored[feature.HandLen:], mirror)
	} else {
		copy(mirrored[:feature.HandLen], mirror)
		copy(mirrored[feature.HandLen:], sub)
	}

	return [][]float64{dup, mirrored}
}

// mirrorSub flips the x axis of a normalized hand sub-vector.
func mirrorSub(sub []float64) []float64 {
	out := make([]float64, len(sub))
	copy(out, sub)
	for i := 0; i < len(out); i += 3 {
		out[i] = -out[i]
	}
	return out
}

func euclidean(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
