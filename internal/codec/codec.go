// Package codec implements spec.md §4.3's TileCodec and FrameCodec:
// lossy image compression for individual tiles and for whole frames.
//
// Grounded on the teacher's internal/encode package: the same Encoder-style
// interface (a format-agnostic contract the rest of the pipeline programs
// against), the same quality-knob convention, and the same WebP/JPEG split
// — WebP for small, frequently-updated tiles, JPEG for full keyframes.
package codec

import (
	"fmt"
	"image"
)

// TileCodec compresses and decompresses one tw×th RGB tile, per spec.md
// §4.3. Implementations must be deterministic for identical input and
// quality, and Decode must return exactly the geometry the sender encoded.
type TileCodec interface {
	Encode(rgb []byte, w, h int) ([]byte, error)
	Decode(data []byte) (rgb []byte, w, h int, err error)
}

// FrameCodec compresses and decompresses one full W×H RGB keyframe.
type FrameCodec interface {
	Encode(rgb []byte, w, h int) ([]byte, error)
	Decode(data []byte) (rgb []byte, w, h int, err error)
}

// DefaultTileQuality and DefaultFrameQuality match spec.md §4.3's defaults.
const (
	DefaultTileQuality  = 80
	DefaultFrameQuality = 70
)

// rgbToRGBA expands tightly packed row-major RGB bytes into an *image.RGBA,
// the shape the stdlib and gen2brain/webp codecs both want. It panics if
// len(rgb) != w*h*3 — callers own validating tile/frame geometry before
// encoding (see planner.Plan and sender.Pipeline).
func rgbToRGBA(rgb []byte, w, h int) *image.RGBA {
	if len(rgb) != w*h*3 {
		panic(fmt.Sprintf("codec: rgb buffer is %d bytes, want %d for %dx%d", len(rgb), w*h*3, w, h))
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		srcRow := y * w * 3
		dstRow := img.PixOffset(0, y)
		for x := 0; x < w; x++ {
			si := srcRow + x*3
			di := dstRow + x*4
			img.Pix[di+0] = rgb[si+0]
			img.Pix[di+1] = rgb[si+1]
			img.Pix[di+2] = rgb[si+2]
			img.Pix[di+3] = 0xff
		}
	}
	return img
}

// imageRGBA is the flat view of an *image.RGBA that encodeWebP hands across
// the cgo boundary — C.WebPEncodeRGBA wants a pointer, stride and dimensions,
// not a Go image.Image.
type imageRGBA struct {
	w, h, stride int
	pix          []byte
}

func asImageRGBA(img *image.RGBA) *imageRGBA {
	return &imageRGBA{
		w:      img.Rect.Dx(),
		h:      img.Rect.Dy(),
		stride: img.Stride,
		pix:    img.Pix,
	}
}

// imageToRGB packs an arbitrary decoded image into tightly-packed row-major
// RGB bytes, taking the *image.RGBA fast path when the decoder already
// handed one back. image/jpeg returns *image.YCbCr or *image.Gray, which
// take the generic per-pixel path.
func imageToRGB(img image.Image) (rgb []byte, w, h int) {
	b := img.Bounds()
	w, h = b.Dx(), b.Dy()
	out := make([]byte, w*h*3)

	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < h; y++ {
			srcRow := rgba.PixOffset(b.Min.X, b.Min.Y+y)
			dstRow := y * w * 3
			for x := 0; x < w; x++ {
				si := srcRow + x*4
				di := dstRow + x*3
				out[di+0] = rgba.Pix[si+0]
				out[di+1] = rgba.Pix[si+1]
				out[di+2] = rgba.Pix[si+2]
			}
		}
		return out, w, h
	}

	for y := 0; y < h; y++ {
		dstRow := y * w * 3
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			di := dstRow + x*3
			out[di+0] = byte(r >> 8)
			out[di+1] = byte(g >> 8)
			out[di+2] = byte(bl >> 8)
		}
	}
	return out, w, h
}

// decodeBoundsError is returned when a decoded image's dimensions don't
// match what the caller expected — the GeometryMismatch error kind from
// spec.md §7, raised here so receiver.Pipeline can treat it uniformly with
// FrameMalformed.
type decodeBoundsError struct {
	gotW, gotH, wantW, wantH int
}

func (e *decodeBoundsError) Error() string {
	return fmt.Sprintf("codec: decoded %dx%d, expected %dx%d", e.gotW, e.gotH, e.wantW, e.wantH)
}

// CheckGeometry returns a GeometryMismatch-flavored error if the decoded
// dimensions disagree with what was declared on the wire.
func CheckGeometry(gotW, gotH, wantW, wantH int) error {
	if gotW != wantW || gotH != wantH {
		return &decodeBoundsError{gotW, gotH, wantW, wantH}
	}
	return nil
}
