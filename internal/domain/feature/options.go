package feature

// Default tracking parameters. Tuned empirically against webcam capture at
// 30fps; all are configurable through options.
const (
	defaultDepthWeight      = 0.25
	defaultDecayFactor      = 0.85
	defaultHoldFrames       = 6
	defaultMaxMissingFrames = 10

	// minPalmSpan guards scale normalization against a collapsed hand.
	minPalmSpan = 1e-4
)

// Option applies a configuration option to the Extractor.
type Option func(*Extractor)

// WithDepthWeight sets the damping applied to the depth term during slot
// assignment. Depth from monocular detectors is noisy, so it contributes
// less than the image-plane distance.
func WithDepthWeight(w float64) Option {
	return func(e *Extractor) {
		if w >= 0 {
			e.depthWeight = w
		}
	}
}

// WithDecayFactor sets the per-frame multiplier applied to a slot's last
// known sub-vector while the hand is temporarily undetected.
func WithDecayFactor(f float64) Option {
	return func(e *Extractor) {
		if f > 0 && f < 1 {
			e.decay = f
		}
	}
}

// WithHoldFrames sets how many consecutive missing frames a slot coasts on
// its decayed vector before zero-filling.
func WithHoldFrames(n int) Option {
	return func(e *Extractor) {
		if n >= 0 {
			e.holdFrames = n
		}
	}
}

// WithMaxMissingFrames sets how many consecutive missing frames destroy the
// slot entirely.
func WithMaxMissingFrames(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxMissing = n
		}
	}
}
