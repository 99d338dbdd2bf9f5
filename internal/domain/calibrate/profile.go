package calibrate

import (
	"time"

	"github.com/okian/mudra/internal/domain/vote"
)

// Safe ranges for profile thresholds. Applied on both write and read so a
// corrupted or ancient record can never disable gating entirely.
const (
	ProfileVersion = 2

	minLightingFloor = 0.02
	maxLightingFloor = 0.45
	minLightingCeil  = 0.55
	maxLightingCeil  = 0.98
	minContrast      = 0.01
	maxContrast      = 0.30

	minVoteConfidence = 0.30
	maxVoteConfidence = 0.75
	minRequiredHits   = 2
	maxRequiredHits   = 6
)

// Profile is the per-user calibration outcome consumed by the lighting gate
// and the vote filter.
type Profile struct {
	Version             int       `json:"version"`
	Samples             int       `json:"samples"`
	UpdatedAt           time.Time `json:"updated_at"`
	LightingMin         float64   `json:"lighting_min"`
	LightingMax         float64   `json:"lighting_max"`
	LightingMinContrast float64   `json:"lighting_min_contrast"`
	VoteMinConfidence   float64   `json:"vote_min_confidence"`
	VoteRequiredHits    int       `json:"vote_required_hits"`
}

// Clamped returns a copy with every threshold forced into its safe range.
// Reads go through this so stored records are never trusted as-is.
func (p Profile) Clamped() Profile {
	p.LightingMin = clampF(p.LightingMin, minLightingFloor, maxLightingFloor)
	p.LightingMax = clampF(p.LightingMax, minLightingCeil, maxLightingCeil)
	p.LightingMinContrast = clampF(p.LightingMinContrast, minContrast, maxContrast)
	p.VoteMinConfidence = clampF(p.VoteMinConfidence, minVoteConfidence, maxVoteConfidence)
	p.VoteRequiredHits = clampI(p.VoteRequiredHits, minRequiredHits, maxRequiredHits)
	return p
}

// DefaultProfile is used before any calibration session has run.
func DefaultProfile() Profile {
	return Profile{
		Version:             ProfileVersion,
		LightingMin:         0.12,
		LightingMax:         0.92,
		LightingMinContrast: 0.05,
		VoteMinConfidence:   0.45,
		VoteRequiredHits:    3,
	}.Clamped()
}

// FilterOptions maps the profile's vote thresholds onto filter options.
// Pipeline setup applies these when constructing the per-session filter, so
// a calibrated user runs with their own hit count and confidence floor.
func (p Profile) FilterOptions() []vote.Option {
	c := p.Clamped()
	return []vote.Option{
		vote.WithRequiredHits(c.VoteRequiredHits),
		vote.WithMinConfidence(c.VoteMinConfidence),
	}
}

// AllowsLighting reports whether a frame's brightness/contrast pass the
// profile's lighting gate.
func (p Profile) AllowsLighting(brightness, contrast float64) bool {
	c := p.Clamped()
	return brightness >= c.LightingMin &&
		brightness <= c.LightingMax &&
		contrast >= c.LightingMinContrast
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampI(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
