// Package planner implements the DeltaPlanner from spec.md §4.2: given a
// freshly captured frame and the FingerprintCache of what was last sent,
// decide whether this frame is a Keyframe, a Delta, or an Empty, and which
// tiles a Delta carries.
//
// Grounded on the teacher's internal/tile Generate pyramid loop for the
// overall "diff against cached state, decide what to (re)encode" shape,
// adapted from a per-zoom-level pyramid decision to a per-frame
// keyframe/delta/empty decision.
package planner

import (
	"github.com/pixeldelta/mirror/internal/fingerprint"
	"github.com/pixeldelta/mirror/internal/geom"
)

// DefaultFallbackThreshold is spec.md §4.2's default: a Delta is replaced
// by a Keyframe once more than 70% of tiles changed.
const DefaultFallbackThreshold = 0.7

// Kind identifies what a Plan call decided to emit.
type Kind int

const (
	KindEmpty Kind = iota
	KindDelta
	KindKeyframe
)

// ChangedTile is one tile the plan says must be (re)encoded and sent.
type ChangedTile struct {
	TX, TY int
	Rect   geom.Rect
}

// Decision is the planner's output for one captured frame.
type Decision struct {
	Kind    Kind
	Changed []ChangedTile // raster order; all tiles when Kind == KindKeyframe
}

// Planner holds the state that must survive across frames: whether the
// cache has ever been populated and whether the previous frame forced a
// keyframe.
type Planner struct {
	Cache             *fingerprint.Cache
	FallbackThreshold float64

	firstFrame   bool
	forceKeyNext bool
}

// New creates a Planner ready for a fresh session: the first captured
// frame will always be a Keyframe, per spec.md §4.2 step 4.
func New(cache *fingerprint.Cache, fallbackThreshold float64) *Planner {
	if fallbackThreshold <= 0 {
		fallbackThreshold = 0
	}
	return &Planner{
		Cache:             cache,
		FallbackThreshold: fallbackThreshold,
		firstFrame:        true,
	}
}

// Invalidate resets the planner to its fresh-session state: the cache is
// cleared and the next frame is forced to a Keyframe. Callers invoke this
// on connection start, an explicit client Resync, or a sender-side encode
// failure (spec.md §4.2 edge cases).
func (p *Planner) Invalidate() {
	p.Cache.Invalidate()
	p.firstFrame = true
	p.forceKeyNext = false
}

// ForceKeyframeNext marks that the next Plan call must emit a Keyframe
// without clearing the cache. Used when the previous frame's emission was
// itself a Keyframe request that hasn't completed yet (spec.md §4.2 step
// 4's "previous emission was a Keyframe request" clause). A codec failure
// is a different case and should call Invalidate instead, since the
// partial delta leaves the cache untrustworthy.
func (p *Planner) ForceKeyframeNext() {
	p.forceKeyNext = true
}

// Plan implements spec.md §4.2's algorithm against one grid's worth of
// captured tile content. tileRGB must return the raw RGB bytes of tile
// (tx, ty); Plan calls it once per tile in raster order, matching the
// "one attempt per tile per frame" failure discipline (the caller, not the
// planner, performs any codec call — Plan only decides what needs one).
func (p *Planner) Plan(grid geom.Grid, tileRGB func(tx, ty int) []byte) Decision {
	tiles := grid.Tiles()
	total := len(tiles)

	type digestedTile struct {
		tx, ty int
		rect   geom.Rect
		digest fingerprint.Digest
	}
	digested := make([]digestedTile, total)
	changedCount := 0
	for i, t := range tiles {
		d := fingerprint.Hash(tileRGB(t.TX, t.TY))
		digested[i] = digestedTile{tx: t.TX, ty: t.TY, rect: t.Rect, digest: d}
		cached, ok := p.Cache.Get(t.TX, t.TY)
		if !ok || cached != d {
			changedCount++
		}
	}

	forceKey := p.firstFrame || p.forceKeyNext ||
		(total > 0 && float64(changedCount) > p.FallbackThreshold*float64(total))

	switch {
	case forceKey:
		changed := make([]ChangedTile, total)
		for i, dt := range digested {
			changed[i] = ChangedTile{TX: dt.tx, TY: dt.ty, Rect: dt.rect}
			p.Cache.Set(dt.tx, dt.ty, dt.digest)
		}
		p.firstFrame = false
		p.forceKeyNext = false
		return Decision{Kind: KindKeyframe, Changed: changed}

	case changedCount == 0:
		return Decision{Kind: KindEmpty}

	default:
		changed := make([]ChangedTile, 0, changedCount)
		for _, dt := range digested {
			cached, ok := p.Cache.Get(dt.tx, dt.ty)
			if ok && cached == dt.digest {
				continue
			}
			changed = append(changed, ChangedTile{TX: dt.tx, TY: dt.ty, Rect: dt.rect})
			p.Cache.Set(dt.tx, dt.ty, dt.digest)
		}
		return Decision{Kind: KindDelta, Changed: changed}
	}
}
