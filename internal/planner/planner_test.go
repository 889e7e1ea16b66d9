package planner

import (
	"testing"

	"github.com/pixeldelta/mirror/internal/fingerprint"
	"github.com/pixeldelta/mirror/internal/geom"
)

func solid(n int, v byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = v
	}
	return b
}

func TestPlan_FirstFrameIsKeyframe(t *testing.T) {
	grid, _ := geom.NewGrid(128, 64, 64)
	p := New(fingerprint.New(), DefaultFallbackThreshold)
	d := p.Plan(grid, func(tx, ty int) []byte { return solid(64*64*3, 1) })
	if d.Kind != KindKeyframe {
		t.Fatalf("Kind = %v, want KindKeyframe", d.Kind)
	}
	if len(d.Changed) != grid.Count() {
		t.Fatalf("Changed has %d tiles, want %d", len(d.Changed), grid.Count())
	}
}

func TestPlan_IdenticalSecondFrameIsEmpty(t *testing.T) {
	grid, _ := geom.NewGrid(128, 64, 64)
	p := New(fingerprint.New(), DefaultFallbackThreshold)
	content := func(tx, ty int) []byte { return solid(64*64*3, 7) }
	p.Plan(grid, content)
	d := p.Plan(grid, content)
	if d.Kind != KindEmpty {
		t.Fatalf("Kind = %v, want KindEmpty", d.Kind)
	}
}

func TestPlan_SingleTileChangeIsDelta(t *testing.T) {
	grid, _ := geom.NewGrid(128, 64, 64)
	p := New(fingerprint.New(), DefaultFallbackThreshold)
	p.Plan(grid, func(tx, ty int) []byte { return solid(64*64*3, 1) })

	d := p.Plan(grid, func(tx, ty int) []byte {
		if tx == 0 && ty == 0 {
			return solid(64*64*3, 9)
		}
		return solid(64*64*3, 1)
	})
	if d.Kind != KindDelta {
		t.Fatalf("Kind = %v, want KindDelta", d.Kind)
	}
	if len(d.Changed) != 1 || d.Changed[0].TX != 0 || d.Changed[0].TY != 0 {
		t.Fatalf("Changed = %+v, want single (0,0) tile", d.Changed)
	}
}

func TestPlan_OverThresholdFallsBackToKeyframe(t *testing.T) {
	grid, _ := geom.NewGrid(128, 64, 64) // 2 tiles total
	p := New(fingerprint.New(), 0.5)
	p.Plan(grid, func(tx, ty int) []byte { return solid(64*64*3, 1) })

	// Change both tiles: 2/2 = 1.0 > 0.5 threshold.
	d := p.Plan(grid, func(tx, ty int) []byte { return solid(64*64*3, 2) })
	if d.Kind != KindKeyframe {
		t.Fatalf("Kind = %v, want KindKeyframe", d.Kind)
	}
}

// At FALLBACK_THRESHOLD=0.0, spec.md §4.2's formula ("emit Keyframe if
// |changed| > threshold * total_tiles") forces a Keyframe the moment any
// single tile changes, since changedCount > 0*total is satisfied by any
// changedCount >= 1. See DESIGN.md's Open Questions section: this is the
// formula's literal behavior, which this repository follows over the
// inconsistent plain-language description in spec.md §8's boundary list.
func TestPlan_ThresholdZeroForcesKeyframeOnAnyChange(t *testing.T) {
	grid, _ := geom.NewGrid(128, 64, 64)
	p := New(fingerprint.New(), 0.0)
	p.Plan(grid, func(tx, ty int) []byte { return solid(64*64*3, 1) })

	d := p.Plan(grid, func(tx, ty int) []byte {
		if tx == 0 {
			return solid(64*64*3, 2)
		}
		return solid(64*64*3, 1)
	})
	if d.Kind != KindKeyframe {
		t.Fatalf("Kind = %v, want KindKeyframe: threshold 0 forces a keyframe on any change", d.Kind)
	}
}

// At FALLBACK_THRESHOLD=1.0, the same formula can never force a Keyframe
// from the threshold clause alone (changedCount can never exceed total),
// so every frame after the first stays a Delta (or Empty) no matter how
// much of the frame changed.
func TestPlan_ThresholdOneNeverFallsBackFromChangeAlone(t *testing.T) {
	grid, _ := geom.NewGrid(128, 64, 64) // 2 tiles total
	p := New(fingerprint.New(), 1.0)
	p.Plan(grid, func(tx, ty int) []byte { return solid(64*64*3, 1) })

	// Change every tile: 2/2 = 1.0, not > 1.0, so the threshold clause does
	// not fire.
	d := p.Plan(grid, func(tx, ty int) []byte { return solid(64*64*3, 2) })
	if d.Kind != KindDelta {
		t.Fatalf("Kind = %v, want KindDelta: threshold 1.0 never forces a keyframe via the change fraction", d.Kind)
	}
}

func TestPlan_InvalidateForcesKeyframeAndClearsCache(t *testing.T) {
	grid, _ := geom.NewGrid(128, 64, 64)
	cache := fingerprint.New()
	p := New(cache, DefaultFallbackThreshold)
	p.Plan(grid, func(tx, ty int) []byte { return solid(64*64*3, 1) })
	p.Invalidate()
	if cache.Len() != 0 {
		t.Fatalf("cache len = %d after invalidate, want 0", cache.Len())
	}
	d := p.Plan(grid, func(tx, ty int) []byte { return solid(64*64*3, 1) })
	if d.Kind != KindKeyframe {
		t.Fatalf("Kind after invalidate = %v, want KindKeyframe", d.Kind)
	}
}
