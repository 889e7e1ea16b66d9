// Package canvas implements the receiver's persistent RGB buffer and the
// apply semantics of spec.md §4.5: Keyframes replace it wholesale, Deltas
// paste named tiles, and a delta that fails partway through must leave the
// canvas byte-identical to its pre-frame state.
//
// Grounded on the teacher's internal/tile.TileImageStore (generator.go),
// which holds decoded tile images behind an RWMutex keyed by coordinate so
// one zoom level's downsample pass can read a prior pass's output safely.
// Canvas keeps the single-owner buffer shape but has no mutex of its own
// (the receiver pipeline is its only writer), and trades
// TileImageStore's per-tile map for one flat W*H*3 byte slice, since
// spec.md requires snapshot callers to see one coherent rectangle, not a
// sparse tile map.
package canvas

import (
	"fmt"

	"github.com/pixeldelta/mirror/internal/geom"
	"github.com/pixeldelta/mirror/internal/pool"
)

// Canvas is the receiver's persistent RGB buffer for one session. It is
// owned exclusively by the receiver pipeline task (spec.md §5); external
// viewers only ever see an immutable copy via Snapshot.
type Canvas struct {
	w, h int
	buf  []byte // nil until the first Keyframe; Ready() reports presence
	tile int

	preFrame   []byte // snapshot taken before an in-progress Delta's first paste
	preFrameOK bool
}

// New creates an empty canvas for a W×H session. The canvas holds no
// placeholder content until the first Keyframe is applied.
func New(w, h, tile int) *Canvas {
	return &Canvas{w: w, h: h, tile: tile}
}

// Ready reports whether a Keyframe has been applied since the last reset,
// i.e. whether Deltas may be applied. A nil *Canvas (the receiver hasn't
// allocated one yet because no Keyframe has advertised a geometry) is
// never ready.
func (c *Canvas) Ready() bool { return c != nil && c.buf != nil }

// Reset returns the canvas to its pre-session placeholder state — used on
// a fresh connection per spec.md §3's Lifecycle invariant.
func (c *Canvas) Reset() {
	c.buf = nil
	c.preFrame = nil
	c.preFrameOK = false
}

// Dimensions returns the canvas's fixed session geometry.
func (c *Canvas) Dimensions() (w, h int) { return c.w, c.h }

// ApplyKeyframe replaces the canvas entirely with a decoded full-frame
// payload. decodedW/decodedH must equal the session geometry; callers are
// expected to have already checked this via codec.CheckGeometry and treat
// a mismatch as GeometryMismatch (spec.md §4.3/§7), so ApplyKeyframe itself
// only asserts it.
func (c *Canvas) ApplyKeyframe(rgb []byte, decodedW, decodedH int) error {
	if decodedW != c.w || decodedH != c.h {
		return fmt.Errorf("canvas: keyframe is %dx%d, session geometry is %dx%d", decodedW, decodedH, c.w, c.h)
	}
	if len(rgb) != c.w*c.h*3 {
		return fmt.Errorf("canvas: keyframe payload is %d bytes, want %d", len(rgb), c.w*c.h*3)
	}
	buf := make([]byte, len(rgb))
	copy(buf, rgb)
	c.buf = buf
	return nil
}

// BeginDelta must be called before pasting any tile of a Delta. It snapshots
// the canvas so a failure partway through can be rewound without leaving a
// partially-applied frame (spec.md §4.5/§8 property 2).
func (c *Canvas) BeginDelta() error {
	if !c.Ready() {
		return fmt.Errorf("canvas: delta received before first keyframe")
	}
	c.preFrame = append([]byte(nil), c.buf...)
	c.preFrameOK = true
	return nil
}

// PasteTile applies one decoded tile at its grid coordinate. tw/th must
// match the tile's true effective size per the session's TileGrid; callers
// pass the rect computed from geom.Grid so ragged edge tiles paste
// correctly.
func (c *Canvas) PasteTile(rect geom.Rect, rgb []byte) error {
	if len(rgb) != rect.W*rect.H*3 {
		return fmt.Errorf("canvas: tile payload is %d bytes, want %d for %dx%d", len(rgb), rect.W*rect.H*3, rect.W, rect.H)
	}
	if rect.X < 0 || rect.Y < 0 || rect.X+rect.W > c.w || rect.Y+rect.H > c.h {
		return fmt.Errorf("canvas: tile rect %+v out of bounds for %dx%d canvas", rect, c.w, c.h)
	}
	geom.PasteRGB(c.buf, c.w, rect, rgb)
	return nil
}

// CommitDelta discards the rewind snapshot after every tile of a Delta
// pasted successfully.
func (c *Canvas) CommitDelta() {
	c.preFrame = nil
	c.preFrameOK = false
}

// RewindDelta restores the canvas to the state captured by BeginDelta,
// discarding a partially-applied Delta. Called when any tile in the Delta
// fails to decode or violates bounds.
func (c *Canvas) RewindDelta() {
	if c.preFrameOK {
		c.buf = c.preFrame
	}
	c.preFrame = nil
	c.preFrameOK = false
}

// Snapshot returns an immutable copy of the current canvas contents, safe
// to hand to a ViewSink callback outside the receiver's own goroutine. The
// returned slice is drawn from internal/pool; callers that hand it off
// synchronously (the normal case) should return it with ReleaseSnapshot
// once done, as receiver.Pipeline.publish does.
func (c *Canvas) Snapshot() []byte {
	if c.buf == nil {
		return nil
	}
	out := pool.Get(len(c.buf))
	copy(out, c.buf)
	return out
}

// ReleaseSnapshot returns a buffer obtained from Snapshot to the pool.
// Don't call this on a slice a ViewSink might still be holding.
func ReleaseSnapshot(buf []byte) {
	pool.Put(buf)
}
