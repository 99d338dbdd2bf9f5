// Package simulate drives the full recognition pipeline end to end with
// synthetic detector frames: each player calibrates first, then poses are
// rendered per label, extracted, classified, vote-smoothed under the
// calibrated thresholds and fed into run state machines, and the finished
// runs are submitted through an in-process gateway. It backs the load and
// plausibility tooling used when no camera is attached.
package simulate

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/okian/mudra/internal/adapters/repository"
	"github.com/okian/mudra/internal/domain/calibrate"
	"github.com/okian/mudra/internal/domain/classify"
	"github.com/okian/mudra/internal/domain/feature"
	"github.com/okian/mudra/internal/domain/landmark"
	"github.com/okian/mudra/internal/domain/run"
	"github.com/okian/mudra/internal/domain/vote"
	"github.com/okian/mudra/internal/gateway"
	"github.com/okian/mudra/pkg/logger"
	"github.com/okian/mudra/pkg/metrics"
)

// Config holds the simulation parameters.
type Config struct {
	// Players is the number of simulated player identities.
	Players int
	// Runs is the number of rank runs attempted per player.
	Runs int
	// Signs is the sequence length of each run.
	Signs int
	// Seed makes pose jitter reproducible. Zero derives a seed from the
	// wall clock.
	Seed int64
	// DatasetPath points at a gesture reference CSV. Empty synthesizes the
	// reference table from the built-in poses.
	DatasetPath string
	// Verbose enables per-run debug logging.
	Verbose bool
}

func (c *Config) applyDefaults() {
	if c.Players <= 0 {
		c.Players = defaultPlayers
	}
	if c.Runs <= 0 {
		c.Runs = defaultRuns
	}
	if c.Signs <= 0 {
		c.Signs = defaultSignsPerRun
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
}

// Stats is the aggregate simulation outcome.
type Stats struct {
	PlayersCalibrated int
	RunsAttempted     int
	RunsCompleted     int
	RunsStalled       int
	RunsAccepted      int
	SignsLanded       int
	FramesProcessed   int
	FramesOccluded    int
	FramesGated       int
	XPGranted         int64
	// Rejections counts gateway rejections by reason code.
	Rejections map[string]int
}

type runner struct {
	cfg        Config
	log        logger.Logger
	gw         *gateway.Gateway
	classifier *classify.Classifier
	stats      *Stats
}

// Run executes the configured simulation and returns aggregate stats.
func Run(ctx context.Context, cfg Config) (*Stats, error) {
	cfg.applyDefaults()

	refs, err := loadReferenceSet(cfg.DatasetPath)
	if err != nil {
		return nil, fmt.Errorf("build reference set: %w", err)
	}

	log := logger.Get().Named("simulate")
	store := repository.NewMemoryStore()
	r := &runner{
		cfg:        cfg,
		log:        log,
		gw:         gateway.New(store, gateway.WithLogger(log)),
		classifier: classify.New(refs),
		stats:      &Stats{Rejections: make(map[string]int)},
	}

	for p := 0; p < cfg.Players; p++ {
		if err := ctx.Err(); err != nil {
			return r.stats, err
		}
		id := gateway.Identity{
			Username:   fmt.Sprintf("sim-player-%02d", p+1),
			ExternalID: fmt.Sprintf("sim-ext-%02d", p+1),
		}
		now := time.Now().UTC()
		if err := store.CreateProfile(ctx, repository.Profile{
			Username:   id.Username,
			ExternalID: id.ExternalID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			return r.stats, fmt.Errorf("create profile %s: %w", id.Username, err)
		}

		rng := rand.New(rand.NewSource(cfg.Seed + int64(p))) //nolint:gosec // reproducible jitter
		prof := r.calibratePlayer(ctx, id, rng)
		for i := 0; i < cfg.Runs; i++ {
			if err := ctx.Err(); err != nil {
				return r.stats, err
			}
			r.stats.RunsAttempted++
			r.playRun(ctx, id, prof, rng, i)
		}
	}

	return r.stats, nil
}

// calibratePlayer runs one calibration session for the identity, persists
// the outcome through the gateway and reads back the clamped profile every
// subsequent run will be tuned with. A gateway failure leaves the player on
// the default profile.
func (r *runner) calibratePlayer(ctx context.Context, id gateway.Identity, rng *rand.Rand) calibrate.Profile {
	start := time.Now().UTC()
	sess := calibrate.NewSession(start)
	for i := 0; i < calibrationSamples; i++ {
		sess.Add(calibrate.SampleInput{
			Brightness: baseBrightness + (rng.Float64()-0.5)*2*lightingJitter,
			Contrast:   baseContrast + (rng.Float64()-0.5)*0.04,
			Confidence: 0.90 + (rng.Float64()-0.5)*0.08,
			NonIdle:    true,
		})
	}
	out := sess.Finalize(start.Add(12 * time.Second))

	if res := r.gw.SaveCalibration(ctx, gateway.CalibrationRequest{Identity: id, Profile: out.Profile}); !res.OK {
		r.stats.Rejections[string(res.Reason)]++
		return calibrate.DefaultProfile()
	}
	prof, res := r.gw.GetCalibration(ctx, id)
	if !res.OK {
		r.stats.Rejections[string(res.Reason)]++
		return calibrate.DefaultProfile()
	}
	r.stats.PlayersCalibrated++
	return prof
}

// playRun executes one full rank run for the identity: token, countdown,
// per-sign frame loop, cast, envelope, submission. The vote filter and the
// lighting gate are built from the player's calibration profile.
func (r *runner) playRun(ctx context.Context, id gateway.Identity, prof calibrate.Profile, rng *rand.Rand, runIdx int) {
	issued := r.gw.IssueRunToken(ctx, gateway.IssueTokenRequest{Identity: id, Mode: string(run.ModeRank)})
	if !issued.OK {
		r.stats.Rejections[string(issued.Reason)]++
		return
	}

	seq := sequenceFor(r.cfg.Signs, runIdx)
	sched := run.NewManualScheduler(time.Now().UTC())
	extractor := feature.New()
	filter := vote.New(prof.FilterOptions()...)
	machine := run.NewMachine(sched, run.ModeRank, seq)

	machine.SetupComplete()
	machine.Start()
	// Let every countdown tick fire.
	sched.Advance(4 * time.Second)

	frames := 0
	lastStable := ""
	for step := 0; step < len(seq); step++ {
		landed := false
		for f := 0; f < maxFramesPerSign; f++ {
			sched.Advance(frameInterval)
			at := sched.Now()

			occlude := -1
			if frames%occlusionEvery == occlusionEvery-1 {
				occlude = frames % landmark.MaxHands
			}
			frame := frameFor(seq[step].Label, rng, at, occlude)
			brightness, contrast := frameLighting(rng, frames)

			machine.VideoTick(at)
			vec, counts := extractor.Extract(frame)
			res := r.classifier.Classify(vec)

			allow := counts.Tracked > 0 && prof.AllowsLighting(brightness, contrast)
			st := filter.Observe(res, at, allow)
			if !allow {
				// A gated frame must not leak a raw accept either.
				res = classify.Result{Label: classify.Idle}
			}
			machine.Observe(st, res)

			frames++
			r.stats.FramesProcessed++
			metrics.RecordFrameProcessed()
			if counts.Occluded > 0 {
				r.stats.FramesOccluded++
				metrics.RecordFrameOccluded()
			}
			if !allow {
				r.stats.FramesGated++
			}
			if !st.IsIdle() && st.Label != lastStable {
				lastStable = st.Label
				metrics.RecordStableGesture(st.Label)
			}

			if machine.StepIndex() > step || machine.Phase() != run.PhaseActive {
				landed = true
				break
			}
		}
		if !landed {
			break
		}
	}

	if machine.Phase() == run.PhaseCasting {
		sched.Advance(castDuration + frameInterval)
	}
	if machine.Phase() != run.PhaseCompleted {
		r.stats.RunsStalled++
		if r.cfg.Verbose {
			r.log.Debug(ctx, "run stalled",
				logger.String("username", id.Username),
				logger.Int("run", runIdx),
				logger.String("phase", string(machine.Phase())),
				logger.Int("step", machine.StepIndex()))
		}
		return
	}

	r.stats.RunsCompleted++
	r.stats.SignsLanded += machine.SignsLanded()
	metrics.RecordRunCompleted(string(run.ModeRank))

	env, ok := machine.BuildEnvelope(run.EnvelopeContext{
		Token:          issued.Token,
		TokenSource:    "issued",
		VoteHits:       prof.VoteRequiredHits,
		VoteConfidence: prof.VoteMinConfidence,
		StrictTwoHand:  true,
		Camera:         "sim-cam-0",
		Resolution:     "1280x720",
	})
	if !ok {
		return
	}

	resp := r.gw.SubmitRun(ctx, gateway.SubmitRunRequest{
		Identity:    id,
		Token:       issued.Token,
		SignsLanded: machine.SignsLanded(),
		DurationMS:  sched.Now().Sub(machine.RunStart()).Milliseconds(),
		Envelope:    env,
	})
	if !resp.OK {
		r.stats.Rejections[string(resp.Reason)]++
		return
	}
	r.stats.RunsAccepted++
	r.stats.XPGranted += resp.XPGranted

	if r.cfg.Verbose {
		r.log.Debug(ctx, "run accepted",
			logger.String("username", id.Username),
			logger.Int("run", runIdx),
			logger.Int("signs_landed", machine.SignsLanded()),
			logger.Any("xp_granted", resp.XPGranted))
	}
}

// frameLighting synthesizes the frame's brightness and contrast. Every
// darkFrameEvery-th frame falls below any plausible calibrated floor.
func frameLighting(rng *rand.Rand, frame int) (brightness, contrast float64) {
	contrast = baseContrast + (rng.Float64()-0.5)*0.04
	if frame%darkFrameEvery == darkFrameEvery-1 {
		return darkBrightness, contrast
	}
	return baseBrightness + (rng.Float64()-0.5)*2*lightingJitter, contrast
}

// sequenceFor builds an n-sign sequence rotated by the run index so
// consecutive runs exercise different label orders.
func sequenceFor(n, offset int) []run.Sign {
	seq := make([]run.Sign, 0, n)
	for i := 0; i < n; i++ {
		seq = append(seq, run.Sign{
			Label:        signLabels[(offset+i)%len(signLabels)],
			CastDuration: castDuration,
		})
	}
	return seq
}

// loadReferenceSet loads the labeled reference table through the dataset
// cache. A configured path reads the CSV from disk; otherwise the table is
// synthesized from the built-in poses, exercising the same parse path as
// file-backed datasets.
func loadReferenceSet(path string) (*classify.RefSet, error) {
	if path != "" {
		cache := classify.NewCache(func(string) (io.ReadCloser, error) {
			return os.Open(path)
		})
		return cache.Get("file:"+path, signLabels)
	}

	csvText, err := referenceCSV()
	if err != nil {
		return nil, err
	}
	cache := classify.NewCache(func(string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(csvText)), nil
	})
	return cache.Get("sim-v1", signLabels)
}

// referenceCSV renders one clean reference row per label in the dataset
// wire format: label, then the full feature layout.
func referenceCSV() (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	ext := feature.New()
	for _, label := range signLabels {
		vec, _ := ext.Extract(referenceFrame(label))
		ext.Reset()

		record := make([]string, 0, feature.VectorLen+1)
		record = append(record, label)
		for _, v := range vec {
			record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	return b.String(), w.Error()
}
