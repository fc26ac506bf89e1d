// Package mibi models a multiplexed ion beam image: an ordered stack of
// equally sized single channel planes, one per target, together with the
// metadata of the acquisition.
//
// Operations that change the shape of the data (SliceImage, Resize, AsType)
// return a new Image. Channel edits (Append, RemoveChannels, RenameTargets,
// ApplyPanel) modify the receiver in place and leave it untouched when they
// fail.
package mibi

import (
	"fmt"
	stdimage "image"

	"github.com/AlanRace/go-mibi/image"
)

// Image is a multiplexed image. The zero value is not usable; build one with
// New.
type Image struct {
	planes   []*image.Plane
	channels []Channel

	Metadata Metadata
}

// New validates and assembles an Image. The planes are used as given, not
// copied.
func New(planes []*image.Plane, channels []Channel, md Metadata) (*Image, error) {
	if len(planes) == 0 {
		return nil, fmt.Errorf("%w: an image needs at least one channel", ErrValidation)
	}
	if len(planes) != len(channels) {
		return nil, fmt.Errorf("%w: %d planes for %d channels", ErrValidation, len(planes), len(channels))
	}

	first := planes[0]
	if first == nil {
		return nil, fmt.Errorf("%w: plane 0 is nil", ErrValidation)
	}
	if first.DType.BytesPerSample() == 0 {
		return nil, fmt.Errorf("%w: unsupported dtype %s", ErrValidation, first.DType)
	}

	for i, plane := range planes {
		if plane == nil {
			return nil, fmt.Errorf("%w: plane %d is nil", ErrValidation, i)
		}
		if plane.Rect.Min != (stdimage.Point{}) {
			return nil, fmt.Errorf("%w: plane %d does not start at the origin", ErrValidation, i)
		}
		if plane.DType != first.DType {
			return nil, fmt.Errorf("%w: plane %d is %s, plane 0 is %s", ErrValidation, i, plane.DType, first.DType)
		}
		if plane.Rect.Size() != first.Rect.Size() {
			return nil, fmt.Errorf("%w: plane %d is %v, plane 0 is %v", ErrValidation, i, plane.Rect.Size(), first.Rect.Size())
		}
	}

	chans := make([]Channel, len(channels))
	for i, c := range channels {
		chans[i] = c.clone()
	}
	if err := validateChannels(chans); err != nil {
		return nil, err
	}

	return &Image{
		planes:   append([]*image.Plane{}, planes...),
		channels: chans,
		Metadata: md,
	}, nil
}

func validateChannels(channels []Channel) error {
	seen := make(map[string]bool, len(channels))
	for _, c := range channels {
		if err := c.validate(); err != nil {
			return err
		}
		if seen[c.Target] {
			return fmt.Errorf("%w: duplicate target %q", ErrConflict, c.Target)
		}
		seen[c.Target] = true
	}
	return nil
}

// Shape returns the height and width shared by every plane.
func (img *Image) Shape() (height, width int) {
	return img.planes[0].Height(), img.planes[0].Width()
}

func (img *Image) DType() image.DType {
	return img.planes[0].DType
}

func (img *Image) NumChannels() int {
	return len(img.channels)
}

// Channels returns a copy of the channel list.
func (img *Image) Channels() []Channel {
	channels := make([]Channel, len(img.channels))
	for i, c := range img.channels {
		channels[i] = c.clone()
	}
	return channels
}

func (img *Image) Targets() []string {
	targets := make([]string, len(img.channels))
	for i, c := range img.channels {
		targets[i] = c.Target
	}
	return targets
}

// Masses returns the channel masses; entries are nil for channels without one.
func (img *Image) Masses() []*float64 {
	masses := make([]*float64, len(img.channels))
	for i, c := range img.channels {
		masses[i] = c.clone().Mass
	}
	return masses
}

// Plane returns plane i. The plane is shared with the image.
func (img *Image) Plane(i int) *image.Plane {
	return img.planes[i]
}

// ChannelInds resolves selectors to plane indices in the order given.
func (img *Image) ChannelInds(selectors ...Selector) ([]int, error) {
	return resolveSelectors(img.channels, selectors)
}

// SliceData returns copies of the selected planes, in request order.
func (img *Image) SliceData(selectors ...Selector) ([]*image.Plane, error) {
	inds, err := img.ChannelInds(selectors...)
	if err != nil {
		return nil, err
	}

	planes := make([]*image.Plane, len(inds))
	for i, ind := range inds {
		planes[i] = img.planes[ind].Clone()
	}
	return planes, nil
}

// SliceImage returns a new image holding the region r of every channel, where
// r.Min.X..r.Max.X are columns and r.Min.Y..r.Max.Y rows.
func (img *Image) SliceImage(r stdimage.Rectangle) (*Image, error) {
	bounds := img.planes[0].Bounds()
	if r.Empty() || !r.In(bounds) {
		return nil, fmt.Errorf("%w: region %v outside %v", ErrOutOfBounds, r, bounds)
	}

	planes := make([]*image.Plane, len(img.planes))
	for i, plane := range img.planes {
		planes[i] = plane.Crop(r)
	}

	return &Image{planes: planes, channels: img.Channels(), Metadata: img.Metadata.Clone()}, nil
}

// Append adds copies of the channels of other after those of img. Both
// images must share shape and dtype and have no target in common.
func (img *Image) Append(other *Image) error {
	h, w := img.Shape()
	oh, ow := other.Shape()
	if h != oh || w != ow {
		return fmt.Errorf("%w: cannot append %dx%d image to %dx%d image", ErrConflict, oh, ow, h, w)
	}
	if img.DType() != other.DType() {
		return fmt.Errorf("%w: cannot append %s image to %s image", ErrConflict, other.DType(), img.DType())
	}

	channels := append(img.Channels(), other.Channels()...)
	if err := validateChannels(channels); err != nil {
		return err
	}

	for _, plane := range other.planes {
		img.planes = append(img.planes, plane.Clone())
	}
	img.channels = channels

	return nil
}

// RemoveChannels deletes the selected channels. At least one channel must
// remain.
func (img *Image) RemoveChannels(selectors ...Selector) error {
	inds, err := img.ChannelInds(selectors...)
	if err != nil {
		return err
	}
	if len(inds) == len(img.channels) {
		return fmt.Errorf("%w: cannot remove every channel", ErrValidation)
	}

	remove := make(map[int]bool, len(inds))
	for _, ind := range inds {
		remove[ind] = true
	}

	planes := make([]*image.Plane, 0, len(img.planes)-len(inds))
	channels := make([]Channel, 0, len(img.channels)-len(inds))
	for i := range img.channels {
		if remove[i] {
			continue
		}
		planes = append(planes, img.planes[i])
		channels = append(channels, img.channels[i])
	}

	img.planes = planes
	img.channels = channels
	return nil
}

// RenameTargets renames channels using mapping from old to new target. Every
// old target must exist and the result must keep targets unique.
func (img *Image) RenameTargets(mapping map[string]string) error {
	channels := img.Channels()
	for old, renamed := range mapping {
		// resolve against the original names so that swaps work
		ind, err := Target(old).resolve(img.channels)
		if err != nil {
			return err
		}
		if renamed == "" {
			return fmt.Errorf("%w: cannot rename %q to an empty target", ErrValidation, old)
		}
		channels[ind].Target = renamed
	}

	if err := validateChannels(channels); err != nil {
		return err
	}

	img.channels = channels
	return nil
}

// Copy returns a deep copy of img.
func (img *Image) Copy() *Image {
	planes := make([]*image.Plane, len(img.planes))
	for i, plane := range img.planes {
		planes[i] = plane.Clone()
	}
	return &Image{planes: planes, channels: img.Channels(), Metadata: img.Metadata.Clone()}
}

// Equal reports whether both images have the same channels in the same order,
// identical planes including dtype, and equal metadata.
func (img *Image) Equal(other *Image) bool {
	if img == nil || other == nil {
		return img == other
	}
	if len(img.channels) != len(other.channels) {
		return false
	}
	for i := range img.channels {
		if !img.channels[i].Equal(other.channels[i]) || !img.planes[i].Equal(other.planes[i]) {
			return false
		}
	}
	return img.Metadata.Equal(other.Metadata)
}

// AsType returns a copy of img with every plane converted to dtype. Integer
// conversions round and saturate.
func (img *Image) AsType(dtype image.DType) (*Image, error) {
	if dtype.BytesPerSample() == 0 {
		return nil, fmt.Errorf("%w: unsupported dtype %s", ErrValidation, dtype)
	}

	planes := make([]*image.Plane, len(img.planes))
	for i, plane := range img.planes {
		planes[i] = plane.Convert(dtype)
	}
	return &Image{planes: planes, channels: img.Channels(), Metadata: img.Metadata.Clone()}, nil
}

// ResizeMethod selects the interpolation of Resize.
type ResizeMethod int

const (
	Nearest ResizeMethod = iota
	Bicubic
)

// Resize returns a new image with every plane rescaled to height x width.
// With preserveCounts set, values are multiplied by the ratio of the old and
// new pixel counts so that the sum over a plane is approximately kept; this is
// meant for event count channels. The dtype is kept; integer planes round and
// saturate.
func (img *Image) Resize(height, width int, method ResizeMethod, preserveCounts bool) (*Image, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("%w: cannot resize to %dx%d", ErrValidation, height, width)
	}

	interp := image.NearestNeighbor
	switch method {
	case Nearest:
	case Bicubic:
		interp = image.CatmullRom
	default:
		return nil, fmt.Errorf("%w: unknown resize method %d", ErrValidation, method)
	}

	h0, w0 := img.Shape()
	factor := float64(h0*w0) / float64(height*width)

	planes := make([]*image.Plane, len(img.planes))
	for i, plane := range img.planes {
		if !preserveCounts {
			planes[i] = image.Resize(plane, width, height, interp)
			continue
		}

		// rescale in float so that rounding happens once, after the area
		// correction
		resized := image.Resize(plane.Convert(image.Float32), width, height, interp)
		planes[i] = resized.Scale(factor).Convert(plane.DType)
	}

	return &Image{planes: planes, channels: img.Channels(), Metadata: img.Metadata.Clone()}, nil
}

func (img *Image) String() string {
	h, w := img.Shape()
	return fmt.Sprintf("mibi.Image{%dx%d %s, channels %v}", h, w, img.DType(), img.channels)
}
