package vote

import "time"

// Default filter thresholds. The calibration engine overrides requiredHits
// and minConfidence per user.
const (
	defaultRequiredHits   = 3
	defaultWindowSize     = 8
	defaultWindowTTL      = 700 * time.Millisecond
	defaultMinConfidence  = 0.45
	defaultOcclusionGrace = 180 * time.Millisecond
	defaultOcclusionDecay = 0.8
)

// Option applies a configuration option to the Filter.
type Option func(*Filter)

// WithRequiredHits sets how many qualifying hits settle a label.
func WithRequiredHits(n int) Option {
	return func(f *Filter) {
		if n > 0 {
			f.requiredHits = n
		}
	}
}

// WithWindowSize bounds the number of samples kept in the window.
func WithWindowSize(n int) Option {
	return func(f *Filter) {
		if n > 0 {
			f.windowSize = n
		}
	}
}

// WithWindowTTL sets the age beyond which samples stop counting.
func WithWindowTTL(d time.Duration) Option {
	return func(f *Filter) {
		if d > 0 {
			f.windowTTL = d
		}
	}
}

// WithMinConfidence sets the confidence floor for a qualifying sample.
func WithMinConfidence(c float64) Option {
	return func(f *Filter) {
		if c >= 0 && c <= 1 {
			f.minConfidence = c
		}
	}
}

// WithOcclusionGrace sets the period during which a non-qualifying frame
// reuses the previous stable vote instead of resetting it.
func WithOcclusionGrace(d time.Duration) Option {
	return func(f *Filter) {
		if d > 0 {
			f.occlusionGrace = d
		}
	}
}

// WithOcclusionDecay sets the confidence multiplier applied per coasted
// frame during the grace period.
func WithOcclusionDecay(factor float64) Option {
	return func(f *Filter) {
		if factor > 0 && factor < 1 {
			f.occlusionDecay = factor
		}
	}
}
