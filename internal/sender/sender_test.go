package sender

import (
	"errors"
	"testing"

	"github.com/pixeldelta/mirror/internal/geom"
	"github.com/pixeldelta/mirror/internal/planner"
)

// stubTileCodec fails to encode tiles whose width matches failW, and
// otherwise returns a deterministic marker so callers can check which
// ChangedTile produced which output.
type stubTileCodec struct {
	failW int
}

func (s *stubTileCodec) Encode(rgb []byte, w, h int) ([]byte, error) {
	if w == s.failW {
		return nil, errors.New("stubTileCodec: forced failure")
	}
	return []byte{byte(w), byte(h)}, nil
}

func (s *stubTileCodec) Decode(data []byte) ([]byte, int, int, error) {
	return nil, 0, 0, errors.New("stubTileCodec: decode unused in this test")
}

func changedTiles(n int) []planner.ChangedTile {
	out := make([]planner.ChangedTile, n)
	for i := range out {
		out[i] = planner.ChangedTile{
			TX: i, TY: 0,
			Rect: geom.Rect{X: i * 64, Y: 0, W: 64, H: 64},
		}
	}
	return out
}

func TestEncodeTiles_PreservesRasterOrderAcrossWorkers(t *testing.T) {
	p := &Pipeline{tile: &stubTileCodec{failW: -1}, cfg: Config{Workers: 4}}
	changed := changedTiles(8)
	rgb := make([]byte, 512*64*3)

	out, ok := p.encodeTiles(rgb, 512, changed)
	if !ok {
		t.Fatal("expected encodeTiles to succeed")
	}
	if len(out) != len(changed) {
		t.Fatalf("got %d tile records, want %d", len(out), len(changed))
	}
	for i, rec := range out {
		if int(rec.TX) != i {
			t.Fatalf("tile %d: TX = %d, want %d (results must stay in submission order)", i, rec.TX, i)
		}
	}
}

func TestEncodeTiles_OneFailureFailsTheWholeDelta(t *testing.T) {
	p := &Pipeline{tile: &stubTileCodec{failW: 64}, cfg: Config{Workers: 2}}
	changed := changedTiles(4)
	rgb := make([]byte, 256*64*3)

	_, ok := p.encodeTiles(rgb, 256, changed)
	if ok {
		t.Fatal("expected encodeTiles to report failure when any tile's codec call fails")
	}
}

func TestEncodeTiles_SingleWorkerIsDefaultWhenUnset(t *testing.T) {
	p := &Pipeline{tile: &stubTileCodec{failW: -1}, cfg: Config{Workers: 0}}
	changed := changedTiles(3)
	rgb := make([]byte, 192*64*3)

	out, ok := p.encodeTiles(rgb, 192, changed)
	if !ok || len(out) != 3 {
		t.Fatalf("expected 3 tiles encoded with the default single worker, got %d ok=%v", len(out), ok)
	}
}
