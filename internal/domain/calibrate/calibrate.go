// Package calibrate runs the per-user calibration session and derives the
// lighting and vote thresholds consumed by the rest of the pipeline.
package calibrate

import (
	"context"
	"sort"
	"time"
)

// Persister stores a finalized profile keyed by the caller's identity. The
// gateway-side persistence is an external collaborator; failure to persist
// still completes the session locally.
type Persister interface {
	SaveProfile(ctx context.Context, username string, p Profile) error
}

// SampleInput is one frame's worth of calibration measurements.
type SampleInput struct {
	Brightness float64
	Contrast   float64
	Confidence float64
	NonIdle    bool
}

// Outcome reports how a session finalized.
type Outcome struct {
	Profile  Profile
	Accepted bool // false when persistence failed; the profile is still usable locally
	TimedOut bool // true when the hard timeout fired before minSamples
}

// Session accumulates samples for a fixed duration and derives a Profile.
// Not safe for concurrent use.
type Session struct {
	startedAt  time.Time
	duration   time.Duration
	minSamples int
	hardFactor float64

	brightness []float64
	contrast   []float64
	confidence []float64
}

// NewSession starts a calibration session at now.
func NewSession(now time.Time, opts ...SessionOption) *Session {
	s := &Session{
		startedAt:  now,
		duration:   defaultDuration,
		minSamples: defaultMinSamples,
		hardFactor: defaultHardTimeoutFactor,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add records one frame's measurements. Confidence is only sampled when a
// non-idle classification occurred on that frame.
func (s *Session) Add(in SampleInput) {
	s.brightness = append(s.brightness, in.Brightness)
	s.contrast = append(s.contrast, in.Contrast)
	if in.NonIdle {
		s.confidence = append(s.confidence, in.Confidence)
	}
}

// Samples returns the number of frames recorded so far.
func (s *Session) Samples() int {
	return len(s.brightness)
}

// Done reports whether the session may finalize at now: either the target
// duration elapsed with enough samples, or the hard timeout fired
// regardless of sample count. The hard timeout guarantees termination in a
// degenerate all-idle environment.
func (s *Session) Done(now time.Time) bool {
	elapsed := now.Sub(s.startedAt)
	if elapsed >= s.duration && len(s.brightness) >= s.minSamples {
		return true
	}
	return elapsed >= s.hardTimeout()
}

// Finalize derives the profile from the observed distributions. It never
// fails: an empty session yields the default profile with clamped bounds.
func (s *Session) Finalize(now time.Time) Outcome {
	out := Outcome{
		TimedOut: now.Sub(s.startedAt) >= s.hardTimeout() && len(s.brightness) < s.minSamples,
	}

	p := DefaultProfile()
	p.Samples = len(s.brightness)
	p.UpdatedAt = now

	if len(s.brightness) > 0 {
		// Lighting bounds hug the observed brightness band with head
		// room on both sides.
		p.LightingMin = percentile(s.brightness, 0.05) * 0.8
		p.LightingMax = percentile(s.brightness, 0.95)*1.1 + 0.02
		p.LightingMinContrast = percentile(s.contrast, 0.10) * 0.7
	}
	if len(s.confidence) > 0 {
		// The confidence floor sits below the user's typical match
		// quality; a clean environment earns a stricter filter.
		p.VoteMinConfidence = percentile(s.confidence, 0.25) * 0.85
		if percentile(s.confidence, 0.50) >= 0.75 {
			p.VoteRequiredHits = minRequiredHits
		}
	}

	out.Profile = p.Clamped()
	return out
}

// FinalizeAndPersist finalizes the session and hands the profile to the
// persistence collaborator. A persistence failure is reported through
// Accepted=false rather than an error; the session still completes.
func (s *Session) FinalizeAndPersist(ctx context.Context, now time.Time, username string, store Persister) Outcome {
	out := s.Finalize(now)
	if store == nil {
		return out
	}
	if err := store.SaveProfile(ctx, username, out.Profile); err == nil {
		out.Accepted = true
	}
	return out
}

func (s *Session) hardTimeout() time.Duration {
	return time.Duration(float64(s.duration) * s.hardFactor)
}

// percentile returns the q-th percentile (0..1) of values.
func percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}
