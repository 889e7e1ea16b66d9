//go:build !cgo

package codec

import "fmt"

const webpCGOAvailable = false

func encodeWebP(img *imageRGBA, quality int) ([]byte, error) {
	return nil, fmt.Errorf("codec: webp tile encoding requires CGO (install libwebp-dev and build with CGO_ENABLED=1)")
}
