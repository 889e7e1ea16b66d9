// Package capture defines the FrameSource boundary from spec.md §6 and a
// synthetic implementation for demos and tests — real desktop acquisition
// is explicitly out of scope (spec.md §1).
package capture

import (
	"context"
	"fmt"
)

// Source yields raw RGB frames of a fixed geometry, spec.md §6's
// FrameSource interface.
type Source interface {
	// Geometry returns the session's fixed (W, H).
	Geometry() (w, h int)
	// NextFrame blocks until a new frame is available or ctx is done, and
	// returns exactly W*H*3 bytes.
	NextFrame(ctx context.Context) ([]byte, error)
}

// Pattern is one of the synthetic source's deterministic animated scenes.
type Pattern int

const (
	// PatternSolid emits a single solid color, never changing — exercises
	// the planner's all-Empty steady state.
	PatternSolid Pattern = iota
	// PatternSweep animates a 16px-wide vertical bar moving left to right
	// 8px per frame (wrapping at the right edge), changing only the few
	// tiles the bar leaves or enters each frame.
	PatternSweep
)

const (
	PatternNameSolid = "solid"
	PatternNameSweep = "sweep"
)

// ParsePattern converts a config string to a Pattern constant.
func ParsePattern(s string) (Pattern, error) {
	switch s {
	case PatternNameSolid:
		return PatternSolid, nil
	case PatternNameSweep:
		return PatternSweep, nil
	default:
		return 0, fmt.Errorf("capture: unknown pattern %q (supported: %s, %s)", s, PatternNameSolid, PatternNameSweep)
	}
}

// Synthetic is a FrameSource that renders a deterministic animated Pattern
// in memory, with no dependency on a real display. It exists so the mirror
// pipeline can be demoed and tested without a desktop acquisition backend,
// which spec.md §1 places out of scope.
type Synthetic struct {
	w, h    int
	Pattern Pattern
	frame   int
}

// NewSynthetic creates a Synthetic source of the given geometry.
func NewSynthetic(w, h int, p Pattern) *Synthetic {
	return &Synthetic{w: w, h: h, Pattern: p}
}

func (s *Synthetic) Geometry() (int, int) { return s.w, s.h }

func (s *Synthetic) NextFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	buf := make([]byte, s.w*s.h*3)
	switch s.Pattern {
	case PatternSolid:
		for i := 0; i < s.w*s.h; i++ {
			buf[i*3+0] = 30
			buf[i*3+1] = 60
			buf[i*3+2] = 120
		}
	case PatternSweep:
		barX := (s.frame * 8) % s.w
		for y := 0; y < s.h; y++ {
			row := y * s.w * 3
			for x := 0; x < s.w; x++ {
				i := row + x*3
				if x >= barX && x < barX+16 {
					buf[i+0] = 220
					buf[i+1] = 40
					buf[i+2] = 40
				} else {
					buf[i+0] = 20
					buf[i+1] = 20
					buf[i+2] = 20
				}
			}
		}
	}
	s.frame++
	return buf, nil
}
