package run

import "time"

// Proof event types. The log is advisory context for server-side
// plausibility review, not a safety-critical record.
const (
	EventStart     = "start"
	EventCountdown = "countdown"
	EventSign      = "sign"
	EventCast      = "cast"
	EventComplete  = "complete"
	EventReset     = "reset"
	EventOverflow  = "overflow"
)

// defaultProofCap bounds the proof log. Once hit, a single terminal
// overflow marker is appended and further events are dropped.
const defaultProofCap = 512

// ProofEvent is one timestamped entry in the run's proof log.
type ProofEvent struct {
	RelTimeSeconds float64 `json:"t"`
	Type           string  `json:"type"`
	Sign           string  `json:"sign,omitempty"`
	Step           int     `json:"step,omitempty"`
	Tick           int     `json:"tick,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
}

// ProofLog is the bounded, append-only event record of a run.
type ProofLog struct {
	events     []ProofEvent
	cap        int
	overflowed bool
	origin     time.Time
}

// NewProofLog creates a log anchored at origin with the default cap.
func NewProofLog(origin time.Time) *ProofLog {
	return &ProofLog{cap: defaultProofCap, origin: origin}
}

// Append records an event at now. Past the cap it appends one overflow
// marker and silently drops everything after.
func (l *ProofLog) Append(now time.Time, ev ProofEvent) {
	if l.overflowed {
		return
	}
	ev.RelTimeSeconds = now.Sub(l.origin).Seconds()
	if len(l.events) >= l.cap {
		l.overflowed = true
		l.events = append(l.events, ProofEvent{
			RelTimeSeconds: ev.RelTimeSeconds,
			Type:           EventOverflow,
		})
		return
	}
	l.events = append(l.events, ev)
}

// Events returns the recorded events in order.
func (l *ProofLog) Events() []ProofEvent {
	return l.events
}

// Overflowed reports whether the cap was hit.
func (l *ProofLog) Overflowed() bool {
	return l.overflowed
}

// Len returns the number of recorded events including the overflow marker.
func (l *ProofLog) Len() int {
	return len(l.events)
}
