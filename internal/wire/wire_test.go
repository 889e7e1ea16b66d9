package wire

import (
	"bytes"
	"reflect"
	"testing"
)

func roundTrip(t *testing.T, rec Record) Record {
	t.Helper()
	var buf bytes.Buffer
	if err := Write(&buf, rec); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(buf.Bytes())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return got
}

func TestRoundTrip_Empty(t *testing.T) {
	want := Empty{Seq: 1, TS: 1000}
	got := roundTrip(t, want)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestRoundTrip_Keyframe(t *testing.T) {
	want := Keyframe{Seq: 0, TS: 42, W: 128, H: 64, Tile: 64, Payload: []byte{1, 2, 3, 4, 5}}
	got := roundTrip(t, want)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestRoundTrip_KeyframeEmptyPayload(t *testing.T) {
	want := Keyframe{Seq: 3, TS: 7, W: 16, H: 16, Tile: 64, Payload: []byte{}}
	got := roundTrip(t, want).(Keyframe)
	if got.W != want.W || got.H != want.H || len(got.Payload) != 0 {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestRoundTrip_Delta(t *testing.T) {
	want := Delta{
		Seq: 5, TS: 99,
		Tiles: []TileRecord{
			{TX: 0, TY: 0, TW: 64, TH: 64, Data: []byte("aaaa")},
			{TX: 1, TY: 0, TW: 36, TH: 64, Data: []byte("bb")},
		},
	}
	got := roundTrip(t, want)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestRoundTrip_DeltaNoTiles(t *testing.T) {
	want := Delta{Seq: 1, TS: 1, Tiles: nil}
	got := roundTrip(t, want).(Delta)
	if len(got.Tiles) != 0 {
		t.Fatalf("got %d tiles, want 0", len(got.Tiles))
	}
}

func TestRoundTrip_Resync(t *testing.T) {
	want := Resync{Seq: 0, TS: 0}
	got := roundTrip(t, want)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestRoundTrip_Input(t *testing.T) {
	want := Input{Seq: 2, TS: 55, Payload: []byte{0xde, 0xad, 0xbe, 0xef}}
	got := roundTrip(t, want)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestRead_RejectsReservedNibble(t *testing.T) {
	buf, _ := Encode(Empty{Seq: 0, TS: 0})
	buf[0] |= 0x40 // set a bit in the reserved high nibble
	if _, err := Read(buf); err == nil {
		t.Fatal("expected error for non-zero reserved nibble")
	}
}

func TestRead_RejectsShortMessage(t *testing.T) {
	if _, err := Read([]byte{0x00, 0x01}); err == nil {
		t.Fatal("expected error for message shorter than the prefix")
	}
}

func TestRead_RejectsTruncatedKeyframePayload(t *testing.T) {
	buf, _ := Encode(Keyframe{W: 1, H: 1, Tile: 64, Payload: []byte{1, 2, 3}})
	got, err := Read(buf[:len(buf)-1]) // chop the last payload byte
	if err == nil {
		t.Fatalf("expected error, got %+v", got)
	}
}

func TestRead_RejectsTrailingBytesOnEmpty(t *testing.T) {
	buf, _ := Encode(Empty{Seq: 0, TS: 0})
	buf = append(buf, 0xff)
	if _, err := Read(buf); err == nil {
		t.Fatal("expected error for trailing byte on Empty frame")
	}
}

func TestRead_RejectsUnknownKind(t *testing.T) {
	buf, _ := Encode(Empty{Seq: 0, TS: 0})
	buf[0] = 0x0f // no reserved bits set, but not a known kind
	if _, err := Read(buf); err == nil {
		t.Fatal("expected error for unknown kind byte")
	}
}

func TestRead_RejectsTruncatedDeltaTileRecord(t *testing.T) {
	buf, _ := Encode(Delta{Tiles: []TileRecord{{TX: 0, TY: 0, TW: 1, TH: 1, Data: []byte{1}}}})
	if _, err := Read(buf[:len(buf)-2]); err == nil {
		t.Fatal("expected error for truncated tile record")
	}
}
