package classify

// Default thresholds. The assist values are tuned empirically; the property
// tests pin their observable behavior rather than the exact numbers.
const (
	defaultIdleDistance       = 4.2
	defaultAssistIdleDistance = 3.4
	defaultExpectedMargin     = 0.6
	defaultMinAssistHandConf  = 0.5
)

// Option applies a configuration option to the Classifier.
type Option func(*Classifier)

// WithIdleDistance sets the idle threshold for full two-hand predictions.
func WithIdleDistance(d float64) Option {
	return func(c *Classifier) {
		if d > 0 {
			c.idleDistance = d
		}
	}
}

// WithAssistIdleDistance sets the idle threshold for single-hand assisted
// predictions. Assist matching is systematically noisier, so this threshold
// is tighter than the two-hand one.
func WithAssistIdleDistance(d float64) Option {
	return func(c *Classifier) {
		if d > 0 {
			c.assistIdleDist = d
		}
	}
}

// WithExpectedMargin sets how far under the idle threshold the expected
// sign must land for assist mode to prefer it over a closer rival label.
func WithExpectedMargin(m float64) Option {
	return func(c *Classifier) {
		if m >= 0 {
			c.expectedMargin = m
		}
	}
}

// WithMinAssistHandConfidence sets the minimum detector score the single
// visible hand needs before assist matching is attempted at all.
func WithMinAssistHandConfidence(conf float64) Option {
	return func(c *Classifier) {
		if conf >= 0 && conf <= 1 {
			c.minAssistHandConf = conf
		}
	}
}
