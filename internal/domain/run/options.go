package run

import "time"

// Default machine parameters.
const (
	defaultSignCooldown     = 500 * time.Millisecond
	defaultCountdownTicks   = 3
	defaultTickInterval     = time.Second
	defaultCastDuration     = 1200 * time.Millisecond
	defaultAssistConfidence = 0.92
	defaultStallTimeout     = 2 * time.Second
)

// MachineOption applies a configuration option to the Machine.
type MachineOption func(*Machine)

// WithSignCooldown sets the minimum interval between accepted signs.
func WithSignCooldown(d time.Duration) MachineOption {
	return func(m *Machine) {
		if d > 0 {
			m.cooldown = d
		}
	}
}

// WithCountdownTicks sets the rank-mode countdown length.
func WithCountdownTicks(n int) MachineOption {
	return func(m *Machine) {
		if n > 0 {
			m.countdownTicks = n
		}
	}
}

// WithTickInterval sets the countdown tick interval.
func WithTickInterval(d time.Duration) MachineOption {
	return func(m *Machine) {
		if d > 0 {
			m.tickInterval = d
		}
	}
}

// WithAssistConfidence sets the raw-label confidence above which a sign is
// accepted without waiting for vote stabilization.
func WithAssistConfidence(c float64) MachineOption {
	return func(m *Machine) {
		if c > 0 && c <= 1 {
			m.assistConfidence = c
		}
	}
}

// WithStallTimeout sets how long the camera clock may stand still before
// the machine flags degraded detection.
func WithStallTimeout(d time.Duration) MachineOption {
	return func(m *Machine) {
		if d > 0 {
			m.stallTimeout = d
		}
	}
}

// WithPhaseObserver registers a callback invoked on every phase change.
func WithPhaseObserver(fn func(Phase)) MachineOption {
	return func(m *Machine) {
		m.onPhase = fn
	}
}
