// Package run drives a player through an ordered sign sequence and emits
// the tamper-evident proof log submitted with competitive results.
package run

import (
	"time"

	"github.com/okian/mudra/internal/domain/classify"
	"github.com/okian/mudra/internal/domain/vote"
)

// Phase is the run lifecycle state.
type Phase string

// Run phases.
const (
	PhaseLoading   Phase = "loading"
	PhaseReady     Phase = "ready"
	PhaseCountdown Phase = "countdown"
	PhaseActive    Phase = "active"
	PhaseCasting   Phase = "casting"
	PhaseCompleted Phase = "completed"
	PhaseError     Phase = "error"
)

// Mode selects run semantics.
type Mode string

// Run modes. Rank runs count competitively and require an explicit start;
// practice and calibration auto-start and auto-loop.
const (
	ModeRank        Mode = "rank"
	ModePractice    Mode = "practice"
	ModeCalibration Mode = "calibration"
)

// Sign is one step of the expected sequence.
type Sign struct {
	Label        string
	CastDuration time.Duration
}

// Machine is the run state machine. It executes entirely on the scheduler's
// single logical thread; no internal locking.
type Machine struct {
	sched    Scheduler
	mode     Mode
	sequence []Sign

	phase       Phase
	stepIndex   int
	signsLanded int
	runStart    time.Time
	proof       *ProofLog

	cooldown         time.Duration
	countdownTicks   int
	tickInterval     time.Duration
	assistConfidence float64
	stallTimeout     time.Duration

	lastAccept    time.Time
	lastVideoTick time.Time
	degraded      bool

	// onPhase, when set, observes every phase transition. Used by the UI
	// collaborator; never drives machine logic.
	onPhase func(Phase)
}

// NewMachine creates a Machine in the loading phase.
func NewMachine(sched Scheduler, mode Mode, sequence []Sign, opts ...MachineOption) *Machine {
	m := &Machine{
		sched:            sched,
		mode:             mode,
		sequence:         sequence,
		phase:            PhaseLoading,
		cooldown:         defaultSignCooldown,
		countdownTicks:   defaultCountdownTicks,
		tickInterval:     defaultTickInterval,
		assistConfidence: defaultAssistConfidence,
		stallTimeout:     defaultStallTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.phase
}

// StepIndex returns the index of the next expected sign.
func (m *Machine) StepIndex() int {
	return m.stepIndex
}

// SignsLanded returns how many signs were accepted this run.
func (m *Machine) SignsLanded() int {
	return m.signsLanded
}

// RunStart returns when the active phase began.
func (m *Machine) RunStart() time.Time {
	return m.runStart
}

// Proof returns the current proof log; nil before the first run.
func (m *Machine) Proof() *ProofLog {
	return m.proof
}

// Degraded reports whether the camera clock stalled past the timeout.
func (m *Machine) Degraded() bool {
	return m.degraded
}

// ExpectedSign returns the next expected sign label, or "" past the end.
func (m *Machine) ExpectedSign() string {
	if m.stepIndex >= len(m.sequence) {
		return ""
	}
	return m.sequence[m.stepIndex].Label
}

// SetupComplete moves loading -> ready. In practice and calibration modes
// the run auto-starts.
func (m *Machine) SetupComplete() {
	if m.phase != PhaseLoading {
		return
	}
	m.setPhase(PhaseReady)
	if m.mode != ModeRank {
		m.beginRun()
	}
}

// SetupFailed moves loading/ready -> error on unrecoverable setup failure.
func (m *Machine) SetupFailed() {
	if m.phase != PhaseLoading && m.phase != PhaseReady {
		return
	}
	m.sched.CancelAll()
	m.setPhase(PhaseError)
}

// Start begins a rank run: ready -> countdown, one proof event per tick.
func (m *Machine) Start() {
	if m.phase != PhaseReady || m.mode != ModeRank {
		return
	}
	m.setPhase(PhaseCountdown)
	m.freshProof()
	m.countdown(m.countdownTicks)
}

func (m *Machine) countdown(remaining int) {
	if remaining <= 0 {
		m.beginActive()
		return
	}
	m.proof.Append(m.sched.Now(), ProofEvent{Type: EventCountdown, Tick: remaining})
	m.sched.After(m.tickInterval, func() {
		if m.phase != PhaseCountdown {
			return
		}
		m.countdown(remaining - 1)
	})
}

// beginRun starts a non-rank run immediately from ready.
func (m *Machine) beginRun() {
	m.freshProof()
	m.beginActive()
}

func (m *Machine) beginActive() {
	m.stepIndex = 0
	m.signsLanded = 0
	m.runStart = m.sched.Now()
	m.lastAccept = time.Time{}
	m.setPhase(PhaseActive)
	m.proof.Append(m.runStart, ProofEvent{Type: EventStart})
}

// Observe consumes one tick's stabilized vote plus the raw classification.
// The next expected sign is accepted when the stable label matches it, or,
// under the assist policy, when the raw label matches at very high
// confidence. A per-sign cooldown bounds the accept rate.
func (m *Machine) Observe(stable vote.Stable, raw classify.Result) {
	if m.phase != PhaseActive || m.stepIndex >= len(m.sequence) {
		return
	}
	now := m.sched.Now()
	expected := m.sequence[m.stepIndex].Label

	matched := stable.Label == expected ||
		(raw.Label == expected && raw.Confidence >= m.assistConfidence)
	if !matched {
		return
	}
	if !m.lastAccept.IsZero() && now.Sub(m.lastAccept) < m.cooldown {
		return
	}

	m.lastAccept = now
	m.signsLanded++
	m.proof.Append(now, ProofEvent{
		Type:       EventSign,
		Sign:       expected,
		Step:       m.stepIndex,
		Confidence: stable.Confidence,
	})
	m.stepIndex++

	if m.stepIndex >= len(m.sequence) {
		m.beginCasting(m.sequence[len(m.sequence)-1])
	}
}

// beginCasting plays the terminal effect for the matched sign's configured
// duration, then completes (rank) or loops into a fresh run (practice).
func (m *Machine) beginCasting(last Sign) {
	m.setPhase(PhaseCasting)
	m.proof.Append(m.sched.Now(), ProofEvent{Type: EventCast, Sign: last.Label})

	d := last.CastDuration
	if d <= 0 {
		d = defaultCastDuration
	}
	m.sched.After(d, func() {
		if m.phase != PhaseCasting {
			return
		}
		if m.mode == ModeRank {
			m.proof.Append(m.sched.Now(), ProofEvent{Type: EventComplete})
			m.setPhase(PhaseCompleted)
			return
		}
		m.beginActive()
	})
}

// Reset aborts the current run from active/casting/completed: all pending
// timers are cleared synchronously before any new state is visible.
func (m *Machine) Reset() {
	switch m.phase {
	case PhaseActive, PhaseCasting, PhaseCompleted, PhaseCountdown:
	default:
		return
	}
	m.sched.CancelAll()
	if m.proof != nil {
		m.proof.Append(m.sched.Now(), ProofEvent{Type: EventReset})
	}
	m.stepIndex = 0
	m.signsLanded = 0
	m.runStart = time.Time{}
	m.proof = nil
	m.lastAccept = time.Time{}
	m.setPhase(PhaseReady)
	if m.mode != ModeRank {
		m.beginRun()
	}
}

// VideoTick marks the camera clock advancing. A stall past the timeout
// flips the degraded flag; detection output is treated as "no hands" while
// degraded, and RunState itself is never corrupted.
func (m *Machine) VideoTick(at time.Time) {
	m.lastVideoTick = at
	m.degraded = false
}

// CheckStall evaluates the camera clock at now.
func (m *Machine) CheckStall(now time.Time) {
	if m.lastVideoTick.IsZero() {
		return
	}
	if now.Sub(m.lastVideoTick) > m.stallTimeout {
		m.degraded = true
	}
}

func (m *Machine) freshProof() {
	m.proof = NewProofLog(m.sched.Now())
}

func (m *Machine) setPhase(p Phase) {
	m.phase = p
	if m.onPhase != nil {
		m.onPhase(p)
	}
}
