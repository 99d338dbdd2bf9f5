package landmark

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel kinds for backend selection.
var (
	// ErrNoBackend indicates that no candidate backend could initialize.
	ErrNoBackend = errors.New("no detector backend available")
)

// Backend is one candidate detector configuration. Implementations wrap an
// external landmark model; the pipeline only depends on this contract.
type Backend interface {
	// Name identifies the backend for diagnostics, e.g. "gpu-full".
	Name() string

	// Capabilities tags what the backend supports, e.g. "gpu", "two-hand".
	Capabilities() []string

	// Init prepares the backend. Called once during selection.
	Init(ctx context.Context) error

	// Detect returns the hands visible in the current frame. A failing
	// backend must return an error rather than a partial frame; callers
	// absorb errors as an empty frame.
	Detect(ctx context.Context) (Frame, error)

	// Close releases backend resources.
	Close() error
}

// Selection records which backend won and which candidates failed, for
// inclusion in diagnostics and the proof envelope.
type Selection struct {
	Backend  Backend
	Name     string
	Rejected []string
}

// Select tries each candidate in order and returns the first one whose Init
// succeeds. Candidates are ordered most- to least-capable by the caller; the
// choice is made once at startup and reused for the whole session.
func Select(ctx context.Context, candidates []Backend) (Selection, error) {
	sel := Selection{}
	for _, c := range candidates {
		if err := c.Init(ctx); err != nil {
			sel.Rejected = append(sel.Rejected, fmt.Sprintf("%s: %v", c.Name(), err))
			continue
		}
		sel.Backend = c
		sel.Name = c.Name()
		return sel, nil
	}
	return sel, ErrNoBackend
}

// SafeDetect calls Detect on the selected backend and absorbs any failure as
// an empty frame. Mid-run detector loss degrades to "no hands" instead of
// surfacing a fault into the run loop.
func SafeDetect(ctx context.Context, b Backend) Frame {
	if b == nil {
		return Frame{}
	}
	f, err := b.Detect(ctx)
	if err != nil {
		return Frame{}
	}
	return f
}
