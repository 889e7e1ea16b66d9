package codec

import (
	"bytes"
	"fmt"

	"github.com/gen2brain/webp"
)

// decodeWebP decodes a WebP payload into tightly-packed RGB bytes. Used by
// WebPTileCodec.Decode for tile decode on the receiver side; no FrameCodec
// in this package decodes WebP.
//
// Grounded on the teacher's internal/encode/decode.go, which reaches for the
// same gen2brain/webp package for its pure-Go decode path (encoding is the
// one direction that needs cgo; decoding doesn't).
func decodeWebP(data []byte) (rgb []byte, w, h int, err error) {
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("codec: webp decode: %w", err)
	}
	rgb, w, h = imageToRGB(img)
	return rgb, w, h, nil
}

// WebPTileCodec implements TileCodec over WebP, the spec.md §4.3 default
// for tiles. Encode requires the project be built with cgo (see
// webp_encode.go / webp_encode_stub.go); Decode never does.
type WebPTileCodec struct {
	Quality int
}

// NewWebPTileCodec returns a WebPTileCodec at spec.md's default tile
// quality.
func NewWebPTileCodec() *WebPTileCodec {
	return &WebPTileCodec{Quality: DefaultTileQuality}
}

func (c *WebPTileCodec) quality() int {
	if c.Quality <= 0 {
		return DefaultTileQuality
	}
	return c.Quality
}

func (c *WebPTileCodec) Encode(rgb []byte, w, h int) ([]byte, error) {
	img := asImageRGBA(rgbToRGBA(rgb, w, h))
	return encodeWebP(img, c.quality())
}

func (c *WebPTileCodec) Decode(data []byte) (rgb []byte, w, h int, err error) {
	return decodeWebP(data)
}
