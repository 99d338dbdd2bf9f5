// Package landmark defines the contract between the external hand detector
// and the rest of the pipeline. The detector itself is a black box; this
// package only describes the per-frame shape it produces.
package landmark

import "time"

// Joint layout constants for a detected hand.
const (
	// JointCount is the number of landmarks reported per hand.
	JointCount = 21

	// WristJoint anchors the palm for translation normalization.
	WristJoint = 0

	// MiddleMCPJoint is the middle-finger knuckle used as the palm-span
	// reference for scale normalization.
	MiddleMCPJoint = 9

	// MaxHands is the maximum number of hands tracked per frame.
	MaxHands = 2
)

// Handedness tags a detected hand with the detector's left/right guess.
type Handedness string

// Handedness values reported by detector backends.
const (
	HandednessUnknown Handedness = ""
	HandednessLeft    Handedness = "left"
	HandednessRight   Handedness = "right"
)

// Point is a 3-D joint coordinate in normalized [0,1] image space.
// Z is relative depth with an arbitrary detector-specific scale.
type Point struct {
	X float64
	Y float64
	Z float64
}

// Hand is one detected hand in a frame.
type Hand struct {
	Landmarks  []Point
	Handedness Handedness
	// Score is the detector's own confidence for this hand, in [0,1].
	Score float64
}

// Valid reports whether the hand carries a full landmark set.
func (h Hand) Valid() bool {
	return len(h.Landmarks) == JointCount
}

// Center returns the mean landmark position, used for slot assignment.
func (h Hand) Center() Point {
	if len(h.Landmarks) == 0 {
		return Point{}
	}
	var c Point
	for _, p := range h.Landmarks {
		c.X += p.X
		c.Y += p.Y
		c.Z += p.Z
	}
	n := float64(len(h.Landmarks))
	return Point{X: c.X / n, Y: c.Y / n, Z: c.Z / n}
}

// Frame is the detector output for a single video frame.
// Hands holds zero to MaxHands entries.
type Frame struct {
	Hands []Hand
	At    time.Time
}

// Empty reports whether the frame contains no usable hand.
func (f Frame) Empty() bool {
	for _, h := range f.Hands {
		if h.Valid() {
			return false
		}
	}
	return true
}
