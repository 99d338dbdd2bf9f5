package calibrate

import "time"

// Default session parameters.
const (
	defaultDuration          = 12 * time.Second
	defaultMinSamples        = 24
	defaultHardTimeoutFactor = 1.7
)

// SessionOption applies a configuration option to a Session.
type SessionOption func(*Session)

// WithDuration sets the target capture duration.
func WithDuration(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.duration = d
		}
	}
}

// WithMinSamples sets the minimum sample count for normal finalization.
func WithMinSamples(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.minSamples = n
		}
	}
}

// WithHardTimeoutFactor sets the multiple of the target duration after
// which the session finalizes regardless of sample count.
func WithHardTimeoutFactor(f float64) SessionOption {
	return func(s *Session) {
		if f > 1 {
			s.hardFactor = f
		}
	}
}
