package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/okian/mudra/internal/simulate"
	"github.com/okian/mudra/pkg/logger"
)

// Default simulation parameters.
const (
	defaultPlayers = 4
	defaultRuns    = 8
	defaultSigns   = 3
	defaultTimeout = 5 * time.Minute
)

func main() {
	var (
		players = flag.Int("players", defaultPlayers, "Number of simulated players")
		runs    = flag.Int("runs", defaultRuns, "Number of rank runs per player")
		signs   = flag.Int("signs", defaultSigns, "Signs per run sequence")
		seed    = flag.Int64("seed", 0, "Random seed (0 = derive from clock)")
		dataset = flag.String("dataset", "", "Gesture reference CSV path (default: synthesize from built-in poses)")
		verbose = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		_ = logger.Sync()
	}()
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	cfg := simulate.Config{
		Players:     *players,
		Runs:        *runs,
		Signs:       *signs,
		Seed:        *seed,
		DatasetPath: *dataset,
		Verbose:     *verbose,
	}

	started := time.Now()
	stats, err := simulate.Run(ctx, cfg)
	if err != nil {
		os.Stderr.WriteString("simulation failed: " + err.Error() + "\n")
		return
	}

	printStats(stats, time.Since(started))
}

func printStats(stats *simulate.Stats, elapsed time.Duration) {
	fmt.Println("=== Simulation Summary ===")
	fmt.Printf("Players calibrated: %d\n", stats.PlayersCalibrated)
	fmt.Printf("Runs attempted:   %d\n", stats.RunsAttempted)
	fmt.Printf("Runs completed:   %d\n", stats.RunsCompleted)
	fmt.Printf("Runs stalled:     %d\n", stats.RunsStalled)
	fmt.Printf("Runs accepted:    %d\n", stats.RunsAccepted)
	fmt.Printf("Signs landed:     %d\n", stats.SignsLanded)
	fmt.Printf("Frames processed: %d (%d occluded, %d lighting-gated)\n",
		stats.FramesProcessed, stats.FramesOccluded, stats.FramesGated)
	fmt.Printf("XP granted:       %d\n", stats.XPGranted)
	fmt.Printf("Elapsed:          %s\n", elapsed.Round(time.Millisecond))

	if len(stats.Rejections) == 0 {
		return
	}
	fmt.Println("Rejections by reason:")
	reasons := make([]string, 0, len(stats.Rejections))
	for reason := range stats.Rejections {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Printf("  %-28s %d\n", reason, stats.Rejections[reason])
	}
}
