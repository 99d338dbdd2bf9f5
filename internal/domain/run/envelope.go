package run

import (
	"time"

	"github.com/google/uuid"
)

// Envelope is the proof payload submitted with a completed rank run. It is
// advisory context for server-side plausibility checks; integrity rests on
// identity binding and token consumption, not on the envelope itself.
type Envelope struct {
	EnvelopeID     string       `json:"envelope_id"`
	Token          string       `json:"token"`
	TokenSource    string       `json:"token_source"`
	RunStart       time.Time    `json:"run_start"`
	Events         []ProofEvent `json:"events"`
	Overflowed     bool         `json:"overflowed"`
	CooldownMS     int64        `json:"cooldown_ms"`
	VoteHits       int          `json:"vote_required_hits"`
	VoteConfidence float64      `json:"vote_min_confidence"`
	StrictTwoHand  bool         `json:"strict_two_hand"`
	Camera         string       `json:"camera"`
	Resolution     string       `json:"resolution"`
}

// EnvelopeContext carries the session settings recorded alongside the run.
type EnvelopeContext struct {
	Token          string
	TokenSource    string
	VoteHits       int
	VoteConfidence float64
	StrictTwoHand  bool
	Camera         string
	Resolution     string
}

// BuildEnvelope snapshots the machine's finished run into an Envelope.
// Returns ok=false when no run has produced a proof log yet.
func (m *Machine) BuildEnvelope(ctx EnvelopeContext) (Envelope, bool) {
	if m.proof == nil {
		return Envelope{}, false
	}
	return Envelope{
		EnvelopeID:     uuid.NewString(),
		Token:          ctx.Token,
		TokenSource:    ctx.TokenSource,
		RunStart:       m.runStart,
		Events:         m.proof.Events(),
		Overflowed:     m.proof.Overflowed(),
		CooldownMS:     m.cooldown.Milliseconds(),
		VoteHits:       ctx.VoteHits,
		VoteConfidence: ctx.VoteConfidence,
		StrictTwoHand:  ctx.StrictTwoHand,
		Camera:         ctx.Camera,
		Resolution:     ctx.Resolution,
	}, true
}
