// Package libjpeg encodes composites as JPEG through libjpeg. It needs cgo and
// the libjpeg headers, so it is kept apart from the pure Go packages.
package libjpeg

import (
	"image"
	"io"

	"github.com/pixiv/go-libjpeg/jpeg"
	"golang.org/x/image/draw"
)

// DefaultQuality is used when no options are given.
const DefaultQuality = 90

type EncoderOptions = jpeg.EncoderOptions
type DecoderOptions = jpeg.DecoderOptions

// Encode writes img as a JPEG. Image types libjpeg cannot take directly are
// converted to RGBA first.
func Encode(w io.Writer, img image.Image, opts *EncoderOptions) error {
	if opts == nil {
		opts = &EncoderOptions{Quality: DefaultQuality}
	}

	switch img.(type) {
	case *image.YCbCr, *image.Gray, *image.RGBA:
	default:
		rgba := image.NewRGBA(img.Bounds())
		draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
		img = rgba
	}

	return jpeg.Encode(w, img, opts)
}

func Decode(r io.Reader, opts *DecoderOptions) (image.Image, error) {
	if opts == nil {
		opts = &DecoderOptions{}
	}
	return jpeg.Decode(r, opts)
}
