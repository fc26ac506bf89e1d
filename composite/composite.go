// Package composite renders multiplexed images as colour composites.
//
// Colours are [3]float64 RGB triples in [0, 1]. Every function returns a new
// RGBImage.
package composite

import (
	"fmt"
	stdimage "image"
	"image/png"
	"io"
	"math"

	"github.com/AlanRace/go-mibi/image"
	"github.com/AlanRace/go-mibi/image/color"
	"github.com/AlanRace/go-mibi/mibi"
)

// RGBImage is a floating point RGB image with components in [0, 1], stored
// row major with three values per pixel.
type RGBImage struct {
	Width  int
	Height int
	Pix    []float64
}

func NewRGBImage(width, height int) *RGBImage {
	return &RGBImage{Width: width, Height: height, Pix: make([]float64, 3*width*height)}
}

func (img *RGBImage) At(x, y int) [3]float64 {
	i := 3 * (y*img.Width + x)
	return [3]float64{img.Pix[i], img.Pix[i+1], img.Pix[i+2]}
}

func (img *RGBImage) Set(x, y int, c [3]float64) {
	i := 3 * (y*img.Width + x)
	img.Pix[i], img.Pix[i+1], img.Pix[i+2] = c[0], c[1], c[2]
}

// ToRGB quantises the image to 8 bits per component.
func (img *RGBImage) ToRGB() *image.RGB {
	rgb := image.NewRGB(stdimage.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			c := img.At(x, y)
			rgb.SetRGB(x, y, color.RGB{R: quantise(c[0]), G: quantise(c[1]), B: quantise(c[2])})
		}
	}
	return rgb
}

func quantise(v float64) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return math.MaxUint8
	}
	return uint8(math.Round(v * math.MaxUint8))
}

func (img *RGBImage) apply(fn func(c [3]float64) [3]float64) *RGBImage {
	out := NewRGBImage(img.Width, img.Height)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			out.Set(x, y, fn(img.At(x, y)))
		}
	}
	return out
}

// Options controls Composite.
type Options struct {
	// MinScaling is the smallest value a channel is divided by, so that
	// channels with only a few counts are not stretched to full brightness.
	MinScaling float64
	// Gamma is applied to each scaled channel. Zero means 1.
	Gamma float64
}

// Composite scales every channel named in colorMap by the larger of its
// maximum and MinScaling, applies Gamma, multiplies it by its colour and sums
// the results, clipping each component to [0, 1]. Channels of img missing
// from colorMap are ignored; targets in colorMap missing from img are an
// error.
func Composite(img *mibi.Image, colorMap map[string][3]float64, opts *Options) (*RGBImage, error) {
	if opts == nil {
		opts = &Options{}
	}
	gamma := opts.Gamma
	if gamma == 0 {
		gamma = 1
	}
	if gamma < 0 || opts.MinScaling < 0 {
		return nil, fmt.Errorf("%w: negative gamma or minimum scaling", mibi.ErrValidation)
	}

	targets := make(map[string]bool, img.NumChannels())
	for _, target := range img.Targets() {
		targets[target] = true
	}
	for target, c := range colorMap {
		if !targets[target] {
			return nil, fmt.Errorf("%w: colour given for missing channel %q", mibi.ErrLookup, target)
		}
		for _, v := range c {
			if !(v >= 0) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: invalid colour %v for %q", mibi.ErrValidation, c, target)
			}
		}
	}

	height, width := img.Shape()
	out := NewRGBImage(width, height)

	for i, target := range img.Targets() {
		c, ok := colorMap[target]
		if !ok {
			continue
		}

		plane := img.Plane(i)
		scale := math.Max(plane.Max(), opts.MinScaling)
		if !(scale > 0) {
			continue
		}

		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v := plane.Value(x, y) / scale
				if !(v > 0) {
					continue
				}
				if gamma != 1 {
					v = math.Pow(math.Min(v, 1), gamma)
				}
				j := 3 * (y*width + x)
				out.Pix[j] += v * c[0]
				out.Pix[j+1] += v * c[1]
				out.Pix[j+2] += v * c[2]
			}
		}
	}

	for j, v := range out.Pix {
		if v > 1 {
			out.Pix[j] = 1
		}
	}
	return out, nil
}

// BlendMode selects how ComposeOverlay combines two images.
type BlendMode int

const (
	// Alpha mixes every overlay pixel that is not black into the base with
	// weight alpha.
	Alpha BlendMode = iota
	// Max takes the larger of each base and overlay component.
	Max
)

func (mode BlendMode) String() string {
	switch mode {
	case Alpha:
		return "alpha"
	case Max:
		return "max"
	}
	return fmt.Sprintf("BlendMode(%d)", int(mode))
}

// ParseBlendMode is the inverse of BlendMode.String.
func ParseBlendMode(name string) (BlendMode, error) {
	switch name {
	case "alpha":
		return Alpha, nil
	case "max":
		return Max, nil
	}
	return 0, fmt.Errorf("%w: unknown blend mode %q", mibi.ErrValidation, name)
}

// ComposeOverlay draws overlay on top of base. The overlay is always drawn
// last, so Alpha blending is not commutative. alpha is only used by Alpha and
// must be in [0, 1].
func ComposeOverlay(base, overlay *RGBImage, mode BlendMode, alpha float64) (*RGBImage, error) {
	if base.Width != overlay.Width || base.Height != overlay.Height {
		return nil, fmt.Errorf("%w: overlay is %dx%d, base is %dx%d", mibi.ErrMismatch,
			overlay.Height, overlay.Width, base.Height, base.Width)
	}

	out := NewRGBImage(base.Width, base.Height)
	switch mode {
	case Alpha:
		if !(alpha >= 0 && alpha <= 1) {
			return nil, fmt.Errorf("%w: alpha %v outside [0, 1]", mibi.ErrValidation, alpha)
		}
		for j := 0; j < len(out.Pix); j += 3 {
			b, o := base.Pix[j:j+3], overlay.Pix[j:j+3]
			if o[0] == 0 && o[1] == 0 && o[2] == 0 {
				copy(out.Pix[j:j+3], b)
				continue
			}
			for k := 0; k < 3; k++ {
				out.Pix[j+k] = (1-alpha)*b[k] + alpha*o[k]
			}
		}
	case Max:
		for j := range out.Pix {
			out.Pix[j] = math.Max(base.Pix[j], overlay.Pix[j])
		}
	default:
		return nil, fmt.Errorf("%w: unknown blend mode %s", mibi.ErrValidation, mode)
	}

	return out, nil
}

// InvertLuminosity replaces the lightness L of every pixel with 1-L, keeping
// hue and saturation, so that a composite on black becomes one on white.
func InvertLuminosity(img *RGBImage) *RGBImage {
	return img.apply(func(c [3]float64) [3]float64 {
		hsl := color.RGB2HSL(c)
		hsl[2] = 1 - hsl[2]
		return color.HSL2RGB(hsl)
	})
}

// ToCYM recolours the image with color.RGB2CYM.
func ToCYM(img *RGBImage) *RGBImage {
	return img.apply(color.RGB2CYM)
}

// ColorMap resolves colour names or hex codes for each target.
func ColorMap(names map[string]string) (map[string][3]float64, error) {
	colorMap := make(map[string][3]float64, len(names))
	for target, name := range names {
		c, err := color.ParseColor(name)
		if err != nil {
			return nil, fmt.Errorf("%w: target %q: %v", mibi.ErrValidation, target, err)
		}
		colorMap[target] = c
	}
	return colorMap, nil
}

// EncodePNG writes img as an 8-bit RGB PNG.
func EncodePNG(w io.Writer, img *RGBImage) error {
	return png.Encode(w, img.ToRGB())
}
