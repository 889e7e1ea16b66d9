package codec

import "testing"

func solidRGB(w, h int, r, g, b byte) []byte {
	out := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		out[i*3+0] = r
		out[i*3+1] = g
		out[i*3+2] = b
	}
	return out
}

func TestJPEGFrameCodec_RoundTrip(t *testing.T) {
	c := NewJPEGFrameCodec()
	want := solidRGB(16, 16, 200, 10, 10)
	data, err := c.Encode(want, 16, 16)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, w, h, err := c.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if w != 16 || h != 16 {
		t.Fatalf("got %dx%d, want 16x16", w, h)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d bytes, want %d", len(got), len(want))
	}
}

func TestJPEGFrameCodec_DefaultQuality(t *testing.T) {
	c := &JPEGFrameCodec{}
	if c.quality() != DefaultFrameQuality {
		t.Fatalf("quality() = %d, want default %d", c.quality(), DefaultFrameQuality)
	}
}

func TestCheckGeometry(t *testing.T) {
	if err := CheckGeometry(10, 10, 10, 10); err != nil {
		t.Fatalf("expected no error for matching geometry, got %v", err)
	}
	if err := CheckGeometry(8, 10, 10, 10); err == nil {
		t.Fatal("expected error for mismatched geometry")
	}
}

func TestRgbToRGBA_PanicsOnShortBuffer(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on undersized rgb buffer")
		}
	}()
	rgbToRGBA(make([]byte, 2), 4, 4)
}

func TestImageToRGB_RoundTripsRGBAFastPath(t *testing.T) {
	want := solidRGB(4, 4, 1, 2, 3)
	img := rgbToRGBA(want, 4, 4)
	got, w, h := imageToRGB(img)
	if w != 4 || h != 4 {
		t.Fatalf("got %dx%d, want 4x4", w, h)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %d want %d", i, got[i], want[i])
		}
	}
}
