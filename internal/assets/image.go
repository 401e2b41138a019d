package assets

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/anthonynsimon/bild/transform"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	errs "scene-engine/internal/errors"
	"scene-engine/internal/scene"
)

// DefaultMaxTextureSize bounds the longer side of ingested images.
const DefaultMaxTextureSize = 4096

// ImageDecoder returns a decoder that accepts png, jpeg, bmp, tiff and webp
// and downsizes images whose longer side exceeds maxSize, keeping the aspect
// ratio. maxSize <= 0 disables the limit.
func ImageDecoder(maxSize int) func([]byte) (*image.NRGBA, error) {
	return func(data []byte) (*image.NRGBA, error) {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, errs.Wrap(errs.CodeUnsupportedFormat, err, "decode image")
		}
		return scene.ToNRGBA(Fit(img, maxSize)), nil
	}
}

// Fit scales img down so neither side exceeds maxSize.
func Fit(img image.Image, maxSize int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSize <= 0 || (w <= maxSize && h <= maxSize) {
		return img
	}
	if w >= h {
		h = max(1, h*maxSize/w)
		w = maxSize
	} else {
		w = max(1, w*maxSize/h)
		h = maxSize
	}
	return transform.Resize(img, w, h, transform.Linear)
}
