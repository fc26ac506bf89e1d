package segmentation

import (
	"fmt"

	"github.com/AlanRace/go-mibi/image"
	"github.com/AlanRace/go-mibi/mibi"
)

// FilterBySize sets to background every object whose area is outside
// [minSize, maxSize] and returns the filtered image with the ids kept, in
// ascending order.
func FilterBySize(l *Labels, minSize, maxSize int) (*Labels, []uint32, error) {
	if err := l.validate(); err != nil {
		return nil, nil, err
	}
	if minSize < 0 || maxSize < minSize {
		return nil, nil, fmt.Errorf("%w: invalid size range [%d, %d]", mibi.ErrValidation, minSize, maxSize)
	}

	areas := l.Areas()
	keep := make(map[uint32]bool, len(areas))
	var retained []uint32
	for _, id := range sortedIDs(areas) {
		if areas[id] >= minSize && areas[id] <= maxSize {
			keep[id] = true
			retained = append(retained, id)
		}
	}

	out := l.Clone()
	for i, id := range out.Pix {
		if id != 0 && !keep[id] {
			out.Pix[i] = 0
		}
	}

	return out, retained, nil
}

// ReplaceLabeledPixels relabels objects through mapping. Ids missing from
// mapping keep their value, or become background when zeroUnmapped is set.
func ReplaceLabeledPixels(l *Labels, mapping map[uint32]uint32, zeroUnmapped bool) (*Labels, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}

	out := l.Clone()
	for i, id := range out.Pix {
		if id == 0 {
			continue
		}
		if replacement, ok := mapping[id]; ok {
			out.Pix[i] = replacement
		} else if zeroUnmapped {
			out.Pix[i] = 0
		}
	}
	return out, nil
}

// PaintLabels draws a per object value over each object's pixels, for
// example a cell table column. Background and objects without a value are 0.
func PaintLabels(l *Labels, values map[uint32]float64) (*image.Plane, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}

	p := image.NewPlane(image.Float32, l.Width, l.Height)
	for y := 0; y < l.Height; y++ {
		for x := 0; x < l.Width; x++ {
			if v, ok := values[l.At(x, y)]; ok && l.At(x, y) != 0 {
				p.SetValue(x, y, v)
			}
		}
	}
	return p, nil
}
