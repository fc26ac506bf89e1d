// Package segmentation post-processes label images produced by cell
// segmentation. Pixel value 0 is background and every positive value is the
// id of one object. Neighbourhoods are 4-connected throughout the package.
//
// Every function returns a new label image and leaves its input untouched.
package segmentation

import (
	"fmt"
	"math"
	"sort"

	"github.com/AlanRace/go-mibi/image"
	"github.com/AlanRace/go-mibi/mibi"
)

// Labels is a label image stored row major.
type Labels struct {
	Width  int
	Height int
	Pix    []uint32
}

func NewLabels(width, height int) *Labels {
	return &Labels{Width: width, Height: height, Pix: make([]uint32, width*height)}
}

// LabelsFromValues wraps values, which must hold width*height entries.
func LabelsFromValues(width, height int, values []uint32) (*Labels, error) {
	l := &Labels{Width: width, Height: height, Pix: values}
	if err := l.validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// LabelsFromPlane converts an integer plane into a label image.
func LabelsFromPlane(p *image.Plane) (*Labels, error) {
	if !p.DType.IsInteger() {
		return nil, fmt.Errorf("%w: label image must be integer, not %s", mibi.ErrValidation, p.DType)
	}

	l := NewLabels(p.Width(), p.Height())
	for y := 0; y < l.Height; y++ {
		for x := 0; x < l.Width; x++ {
			l.Pix[y*l.Width+x] = uint32(p.Value(x, y))
		}
	}
	return l, nil
}

func (l *Labels) validate() error {
	if l == nil {
		return fmt.Errorf("%w: nil label image", mibi.ErrValidation)
	}
	if l.Width < 0 || l.Height < 0 || len(l.Pix) != l.Width*l.Height {
		return fmt.Errorf("%w: %d labels for %dx%d image", mibi.ErrValidation, len(l.Pix), l.Width, l.Height)
	}
	return nil
}

func (l *Labels) At(x, y int) uint32 {
	return l.Pix[y*l.Width+x]
}

func (l *Labels) Set(x, y int, id uint32) {
	l.Pix[y*l.Width+x] = id
}

func (l *Labels) Clone() *Labels {
	return &Labels{Width: l.Width, Height: l.Height, Pix: append([]uint32{}, l.Pix...)}
}

func (l *Labels) Equal(other *Labels) bool {
	if l.Width != other.Width || l.Height != other.Height {
		return false
	}
	for i, id := range l.Pix {
		if other.Pix[i] != id {
			return false
		}
	}
	return true
}

// Areas returns the pixel count of every object.
func (l *Labels) Areas() map[uint32]int {
	areas := make(map[uint32]int)
	for _, id := range l.Pix {
		if id != 0 {
			areas[id]++
		}
	}
	return areas
}

// IDs returns the object ids present, in ascending order.
func (l *Labels) IDs() []uint32 {
	return sortedIDs(l.Areas())
}

func sortedIDs(areas map[uint32]int) []uint32 {
	ids := make([]uint32, 0, len(areas))
	for id := range areas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// neighbours calls fn with the index of each 4-connected neighbour of pixel i.
func (l *Labels) neighbours(i int, fn func(j int)) {
	x, y := i%l.Width, i/l.Width
	if y > 0 {
		fn(i - l.Width)
	}
	if x > 0 {
		fn(i - 1)
	}
	if x < l.Width-1 {
		fn(i + 1)
	}
	if y < l.Height-1 {
		fn(i + l.Width)
	}
}

// ToPlane returns the labels as a uint16 plane. Ids above 65535 do not fit
// and fail with ErrValidation.
func (l *Labels) ToPlane() (*image.Plane, error) {
	p := image.NewPlane(image.Uint16, l.Width, l.Height)
	for y := 0; y < l.Height; y++ {
		for x := 0; x < l.Width; x++ {
			id := l.At(x, y)
			if id > math.MaxUint16 {
				return nil, fmt.Errorf("%w: label %d at (%d, %d) does not fit in uint16", mibi.ErrValidation, id, x, y)
			}
			p.SetValue(x, y, float64(id))
		}
	}
	return p, nil
}
