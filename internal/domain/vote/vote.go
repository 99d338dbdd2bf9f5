// Package vote stabilizes the noisy per-frame classification stream with a
// sliding window, hit-count threshold and occlusion grace.
package vote

import (
	"time"

	"github.com/okian/mudra/internal/domain/classify"
)

// Sample is one qualifying classification kept in the window.
type Sample struct {
	Label      string
	Confidence float64
	At         time.Time
}

// Stable is the filter's settled output.
type Stable struct {
	Label      string
	Confidence float64
	Hits       int
	At         time.Time
}

// IsIdle reports whether the stable output is the idle sentinel.
func (s Stable) IsIdle() bool {
	return s.Label == classify.Idle || s.Label == ""
}

// Filter turns per-frame classifications into a stable label. Not safe for
// concurrent use; the pipeline is single-threaded.
type Filter struct {
	window []Sample
	stable Stable

	requiredHits   int
	windowSize     int
	windowTTL      time.Duration
	minConfidence  float64
	occlusionGrace time.Duration
	occlusionDecay float64

	lastQualified time.Time
}

// New creates a Filter with default thresholds.
func New(opts ...Option) *Filter {
	f := &Filter{
		requiredHits:   defaultRequiredHits,
		windowSize:     defaultWindowSize,
		windowTTL:      defaultWindowTTL,
		minConfidence:  defaultMinConfidence,
		occlusionGrace: defaultOcclusionGrace,
		occlusionDecay: defaultOcclusionDecay,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Observe feeds one classification into the filter. allow gates whether the
// frame qualifies at all (lighting, hand count); a disallowed or
// non-qualifying frame inside the occlusion grace reuses the previous
// stable value at decayed confidence instead of resetting to idle.
func (f *Filter) Observe(res classify.Result, now time.Time, allow bool) Stable {
	qualifies := allow && !res.IsIdle() && res.Confidence >= f.minConfidence

	if !qualifies {
		return f.coast(now)
	}

	f.lastQualified = now
	f.push(Sample{Label: res.Label, Confidence: res.Confidence, At: now})
	f.evict(now)

	hits, avgConf := f.count(res.Label)
	if hits >= f.requiredHits {
		f.stable = Stable{Label: res.Label, Confidence: avgConf, Hits: hits, At: now}
	}
	return f.stable
}

// Current returns the settled output without feeding a frame.
func (f *Filter) Current() Stable {
	return f.stable
}

// Reset clears the window and the settled state.
func (f *Filter) Reset() {
	f.window = f.window[:0]
	f.stable = Stable{}
	f.lastQualified = time.Time{}
}

// coast handles a non-qualifying frame: within the occlusion grace the
// previous stable vote survives at decayed confidence, beyond it the state
// decays to idle. Window progress is kept either way so a one-frame dropout
// does not restart hit counting.
func (f *Filter) coast(now time.Time) Stable {
	if f.stable.IsIdle() {
		return f.stable
	}
	if !f.lastQualified.IsZero() && now.Sub(f.lastQualified) <= f.occlusionGrace {
		f.stable.Confidence *= f.occlusionDecay
		return f.stable
	}
	f.stable = Stable{Label: classify.Idle, At: now}
	return f.stable
}

func (f *Filter) push(s Sample) {
	f.window = append(f.window, s)
	if len(f.window) > f.windowSize {
		f.window = f.window[len(f.window)-f.windowSize:]
	}
}

// evict drops samples older than the window TTL.
func (f *Filter) evict(now time.Time) {
	cutoff := now.Add(-f.windowTTL)
	keep := f.window[:0]
	for _, s := range f.window {
		if s.At.After(cutoff) || s.At.Equal(cutoff) {
			keep = append(keep, s)
		}
	}
	f.window = keep
}

// count returns the hit count and mean confidence for label within the
// window. Only samples matching the label count as hits.
func (f *Filter) count(label string) (int, float64) {
	hits := 0
	var confSum float64
	for _, s := range f.window {
		if s.Label == label {
			hits++
			confSum += s.Confidence
		}
	}
	if hits == 0 {
		return 0, 0
	}
	return hits, confSum / float64(hits)
}
