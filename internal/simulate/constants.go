package simulate

import "time"

// Simulation defaults.
const (
	defaultPlayers     = 4
	defaultRuns        = 8
	defaultSignsPerRun = 3

	// frameInterval approximates a ~10fps detector output stream.
	frameInterval = 100 * time.Millisecond

	// maxFramesPerSign bounds how long one sign may take before the run
	// is counted as stuck.
	maxFramesPerSign = 30

	// occlusionEvery drops one hand from every nth frame to exercise the
	// extractor's slot-decay path.
	occlusionEvery = 7

	handScore  = 0.97
	poseJitter = 0.004

	castDuration = 1200 * time.Millisecond

	// calibrationSamples feeds each player's calibration session before
	// their first run.
	calibrationSamples = 30

	// Lighting synthesis. Most frames sit inside the calibrated band; every
	// darkFrameEvery-th frame dips below it to exercise the lighting gate.
	baseBrightness = 0.55
	baseContrast   = 0.12
	lightingJitter = 0.05
	darkFrameEvery = 11
	darkBrightness = 0.03
)

// signLabels is the gesture vocabulary the simulator builds poses for.
var signLabels = []string{"tiger", "snake", "dragon", "bird", "boar"}
