package mibi

import (
	"errors"
	"fmt"
	stdimage "image"
	"image/png"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlanRace/go-mibi/image"
	"github.com/AlanRace/go-mibi/util"
)

// ExportOptions controls how ExportPNGs renders each channel.
type ExportOptions struct {
	// Depth is the PNG bit depth, 8 or 16. Zero means 8.
	Depth int
	// Scale multiplies raw values before they are mapped to the PNG range,
	// so a value of 1/Scale is drawn at full intensity. Zero scales each
	// channel by its own maximum.
	Scale float64
	// Gamma is applied to the scaled value in [0, 1]. Zero means 1.
	Gamma float64
}

// PNGName returns the file name ExportPNGs uses for target.
func (img *Image) PNGName(target string) string {
	name := target
	if point := img.Metadata.PointName(); point != "" {
		name = point + "_" + target
	}
	return util.FormatForFilename(name) + ".png"
}

// ExportPNGs writes one grayscale PNG per channel into dir. Targets whose file
// names collide fail with ErrConflict before anything is written. Every
// channel is attempted; the failures are returned together.
func (img *Image) ExportPNGs(dir string, opts *ExportOptions) error {
	if opts == nil {
		opts = &ExportOptions{}
	}
	depth := opts.Depth
	if depth == 0 {
		depth = 8
	}
	if depth != 8 && depth != 16 {
		return fmt.Errorf("%w: PNG depth must be 8 or 16, not %d", ErrValidation, depth)
	}
	gamma := opts.Gamma
	if gamma == 0 {
		gamma = 1
	}
	if gamma < 0 || opts.Scale < 0 {
		return fmt.Errorf("%w: negative scale or gamma", ErrValidation)
	}

	// names are compared case-insensitively so that no file is overwritten
	// on case-insensitive filesystems either
	owners := make(map[string]string, len(img.channels))
	for _, c := range img.channels {
		key := strings.ToLower(img.PNGName(c.Target))
		if other, ok := owners[key]; ok {
			return fmt.Errorf("%w: targets %q and %q both export to %s", ErrConflict, other, c.Target, img.PNGName(c.Target))
		}
		owners[key] = c.Target
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var errs []error
	for i, c := range img.channels {
		filename := filepath.Join(dir, img.PNGName(c.Target))
		if err := writePNG(filename, img.planes[i], depth, opts.Scale, gamma); err != nil {
			log.Printf("[mibi] unable to export %s: %v\n", c.Target, err)
			errs = append(errs, fmt.Errorf("channel %q: %w", c.Target, err))
		}
	}

	return errors.Join(errs...)
}

func writePNG(filename string, plane *image.Plane, depth int, scale, gamma float64) error {
	if scale == 0 {
		if max := plane.Max(); max > 0 {
			scale = 1 / max
		} else {
			scale = 1
		}
	}

	bounds := plane.Bounds()
	fullRange := float64(math.MaxUint8)
	var img stdimage.Image
	var set func(x, y int, v float64)

	if depth == 16 {
		fullRange = math.MaxUint16
		gray := stdimage.NewGray16(bounds)
		set = func(x, y int, v float64) {
			i := gray.PixOffset(x, y)
			u := uint16(v)
			gray.Pix[i], gray.Pix[i+1] = uint8(u>>8), uint8(u)
		}
		img = gray
	} else {
		gray := stdimage.NewGray(bounds)
		set = func(x, y int, v float64) {
			gray.Pix[gray.PixOffset(x, y)] = uint8(v)
		}
		img = gray
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := plane.Value(x, y) * scale
			if !(v > 0) {
				v = 0
			} else if v > 1 {
				v = 1
			}
			if gamma != 1 {
				v = math.Pow(v, gamma)
			}
			set(x, y, math.Round(v*fullRange))
		}
	}

	f, err := os.Create(filename)
	if err != nil {
		return err
	}

	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
