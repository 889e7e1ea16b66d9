// Package geom partitions a frame into a fixed-size tile grid.
//
// Grounded on internal/tile/zoom.go's ceil-division tile-count math from the
// teacher repository, generalized from a zoom pyramid to a single flat grid
// over one frame.
package geom

import (
	"fmt"

	"github.com/pixeldelta/mirror/internal/pool"
)

// Rect is an axis-aligned pixel rectangle with top-left origin.
type Rect struct {
	X, Y, W, H int
}

// Tile identifies one cell of the grid together with its pixel rectangle.
type Tile struct {
	TX, TY int
	Rect   Rect
}

// Grid is the deterministic partition of a W×H frame into TILE×TILE cells,
// with ragged cells along the right and bottom edges.
type Grid struct {
	W, H, Tile int
	Cols, Rows int
}

// NewGrid builds a grid for the given frame geometry and tile size.
func NewGrid(w, h, tile int) (Grid, error) {
	if w <= 0 || h <= 0 {
		return Grid{}, fmt.Errorf("geom: invalid frame geometry %dx%d", w, h)
	}
	if tile <= 0 {
		return Grid{}, fmt.Errorf("geom: invalid tile size %d", tile)
	}
	return Grid{
		W: w, H: h, Tile: tile,
		Cols: ceilDiv(w, tile),
		Rows: ceilDiv(h, tile),
	}, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Count returns the total number of cells in the grid.
func (g Grid) Count() int {
	return g.Cols * g.Rows
}

// TileAt returns the rectangle for cell (tx, ty), clipped to the frame so
// right/bottom edge cells report their true (possibly smaller) size.
func (g Grid) TileAt(tx, ty int) Rect {
	x := tx * g.Tile
	y := ty * g.Tile
	w := g.Tile
	if x+w > g.W {
		w = g.W - x
	}
	h := g.Tile
	if y+h > g.H {
		h = g.H - y
	}
	return Rect{X: x, Y: y, W: w, H: h}
}

// Tiles yields every cell of the grid in raster order (row-major, top-left
// origin), matching the order spec.md requires for fingerprint scanning and
// Delta tile-record emission.
func (g Grid) Tiles() []Tile {
	out := make([]Tile, 0, g.Count())
	for ty := 0; ty < g.Rows; ty++ {
		for tx := 0; tx < g.Cols; tx++ {
			out = append(out, Tile{TX: tx, TY: ty, Rect: g.TileAt(tx, ty)})
		}
	}
	return out
}

// ExtractRGB copies the tw*th*3 RGB bytes of one cell out of a full W*H*3
// raw RGB frame buffer, row by row. The returned slice comes from
// internal/pool; a caller that uses it only transiently (hash it, or hand
// it to a codec and discard it, the usual cases) should pool.Put it back
// when done.
func ExtractRGB(frame []byte, w int, r Rect) []byte {
	out := pool.Get(r.W * r.H * 3)
	for row := 0; row < r.H; row++ {
		srcOff := ((r.Y+row)*w + r.X) * 3
		dstOff := row * r.W * 3
		copy(out[dstOff:dstOff+r.W*3], frame[srcOff:srcOff+r.W*3])
	}
	return out
}

// PasteRGB writes a tw*th*3 RGB tile back into a full W*H*3 raw RGB frame
// buffer at the given rectangle, row by row. It panics if tile does not
// carry exactly r.W*r.H*3 bytes. r itself is not checked against the frame
// geometry — callers must bounds-check before calling (see
// canvas.Canvas.PasteTile).
func PasteRGB(frame []byte, w int, r Rect, tile []byte) {
	if len(tile) != r.W*r.H*3 {
		panic(fmt.Sprintf("geom: tile payload is %d bytes, want %d for %dx%d", len(tile), r.W*r.H*3, r.W, r.H))
	}
	for row := 0; row < r.H; row++ {
		dstOff := ((r.Y+row)*w + r.X) * 3
		srcOff := row * r.W * 3
		copy(frame[dstOff:dstOff+r.W*3], tile[srcOff:srcOff+r.W*3])
	}
}
