package image

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"math"

	mibicolor "github.com/AlanRace/go-mibi/image/color"
)

// DType identifies the sample type of a Plane.
type DType int

const (
	Uint8 DType = iota + 1
	Uint16
	Float32
)

var dtypeNameMap = map[DType]string{
	Uint8:   "uint8",
	Uint16:  "uint16",
	Float32: "float32",
}

func (dtype DType) String() string {
	if name, ok := dtypeNameMap[dtype]; ok {
		return name
	}
	return fmt.Sprintf("DType(%d)", int(dtype))
}

// BytesPerSample returns the storage size of one sample, or 0 for an unknown
// DType.
func (dtype DType) BytesPerSample() int {
	switch dtype {
	case Uint8:
		return 1
	case Uint16:
		return 2
	case Float32:
		return 4
	}
	return 0
}

// IsInteger reports whether samples are stored as unsigned integers.
func (dtype DType) IsInteger() bool {
	return dtype == Uint8 || dtype == Uint16
}

// ParseDType is the inverse of DType.String.
func ParseDType(name string) (DType, error) {
	for dtype, n := range dtypeNameMap {
		if n == name {
			return dtype, nil
		}
	}
	return 0, fmt.Errorf("image: unknown dtype %q", name)
}

// Plane is a single channel 2-D array of samples. Samples are stored
// big-endian, the same layout image.Gray16 uses, and Rect always starts at the
// origin.
type Plane struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
	DType  DType
}

// NewPlane returns a zeroed plane of the given size.
func NewPlane(dtype DType, width, height int) *Plane {
	bytesPerSample := dtype.BytesPerSample()
	if bytesPerSample == 0 {
		panic("image: NewPlane called with unknown dtype " + dtype.String())
	}
	r := image.Rect(0, 0, width, height)

	return &Plane{
		Pix:    make([]uint8, pixelBufferLength(bytesPerSample, r, "Plane")),
		Stride: bytesPerSample * width,
		Rect:   r,
		DType:  dtype,
	}
}

// PlaneFromBytes builds a plane from packed rows of samples stored in order.
// The data is copied.
func PlaneFromBytes(dtype DType, width, height int, data []byte, order binary.ByteOrder) (*Plane, error) {
	bytesPerSample := dtype.BytesPerSample()
	if bytesPerSample == 0 {
		return nil, fmt.Errorf("image: unknown dtype %s", dtype)
	}
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("image: negative plane size %dx%d", width, height)
	}
	if len(data) != width*height*bytesPerSample {
		return nil, fmt.Errorf("image: %d bytes for %dx%d %s plane", len(data), width, height, dtype)
	}

	plane := NewPlane(dtype, width, height)
	if bytesPerSample == 1 || order == binary.BigEndian {
		copy(plane.Pix, data)
		return plane, nil
	}

	for i := 0; i < len(data); i += bytesPerSample {
		for b := 0; b < bytesPerSample; b++ {
			plane.Pix[i+b] = data[i+bytesPerSample-1-b]
		}
	}

	return plane, nil
}

// PlaneFromUint8 wraps values, one byte per pixel in row major order.
func PlaneFromUint8(width, height int, values []uint8) (*Plane, error) {
	return PlaneFromBytes(Uint8, width, height, values, binary.BigEndian)
}

func PlaneFromUint16(width, height int, values []uint16) (*Plane, error) {
	if len(values) != width*height {
		return nil, fmt.Errorf("image: %d values for %dx%d plane", len(values), width, height)
	}
	plane := NewPlane(Uint16, width, height)
	for i, v := range values {
		binary.BigEndian.PutUint16(plane.Pix[2*i:], v)
	}
	return plane, nil
}

func PlaneFromFloat32(width, height int, values []float32) (*Plane, error) {
	if len(values) != width*height {
		return nil, fmt.Errorf("image: %d values for %dx%d plane", len(values), width, height)
	}
	plane := NewPlane(Float32, width, height)
	for i, v := range values {
		binary.BigEndian.PutUint32(plane.Pix[4*i:], math.Float32bits(v))
	}
	return plane, nil
}

func (p *Plane) Width() int  { return p.Rect.Dx() }
func (p *Plane) Height() int { return p.Rect.Dy() }

func (p *Plane) Bounds() image.Rectangle { return p.Rect }

func (p *Plane) ColorModel() color.Model {
	switch p.DType {
	case Uint8:
		return color.GrayModel
	case Uint16:
		return color.Gray16Model
	}
	return mibicolor.GrayFloat32Model
}

func (p *Plane) At(x, y int) color.Color {
	switch p.DType {
	case Uint8:
		return color.Gray{Y: uint8(p.Value(x, y))}
	case Uint16:
		return color.Gray16{Y: uint16(p.Value(x, y))}
	}
	return mibicolor.GrayFloat32{Y: float32(p.Value(x, y))}
}

// PixOffset returns the index of the first element of Pix that corresponds to
// the pixel at (x, y).
func (p *Plane) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*p.DType.BytesPerSample()
}

// Value returns the sample at (x, y), or 0 outside the plane.
func (p *Plane) Value(x, y int) float64 {
	if !(image.Point{x, y}.In(p.Rect)) {
		return 0
	}

	i := p.PixOffset(x, y)
	switch p.DType {
	case Uint8:
		return float64(p.Pix[i])
	case Uint16:
		return float64(binary.BigEndian.Uint16(p.Pix[i:]))
	}
	return float64(math.Float32frombits(binary.BigEndian.Uint32(p.Pix[i:])))
}

// SetValue stores v at (x, y). Integer planes round v to the nearest integer
// and saturate at the limits of the type.
func (p *Plane) SetValue(x, y int, v float64) {
	if !(image.Point{x, y}.In(p.Rect)) {
		return
	}

	i := p.PixOffset(x, y)
	switch p.DType {
	case Uint8:
		p.Pix[i] = uint8(saturate(v, math.MaxUint8))
	case Uint16:
		binary.BigEndian.PutUint16(p.Pix[i:], uint16(saturate(v, math.MaxUint16)))
	default:
		binary.BigEndian.PutUint32(p.Pix[i:], math.Float32bits(float32(v)))
	}
}

func saturate(v float64, max float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= max {
		return max
	}
	return math.Round(v)
}

// Values returns every sample in row major order.
func (p *Plane) Values() []float64 {
	width, height := p.Width(), p.Height()
	values := make([]float64, 0, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			values = append(values, p.Value(x, y))
		}
	}
	return values
}

// Max returns the largest sample, or 0 for an empty plane.
func (p *Plane) Max() float64 {
	max := math.Inf(-1)
	for _, v := range p.Values() {
		if v > max {
			max = v
		}
	}
	if math.IsInf(max, -1) {
		return 0
	}
	return max
}

func (p *Plane) Sum() float64 {
	var sum float64
	for _, v := range p.Values() {
		sum += v
	}
	return sum
}

// Bytes returns the packed samples in the requested byte order.
func (p *Plane) Bytes(order binary.ByteOrder) []byte {
	bytesPerSample := p.DType.BytesPerSample()
	rowBytes := p.Width() * bytesPerSample
	data := make([]byte, 0, rowBytes*p.Height())
	for y := 0; y < p.Height(); y++ {
		i := p.PixOffset(0, y)
		data = append(data, p.Pix[i:i+rowBytes]...)
	}

	if bytesPerSample > 1 && order != binary.BigEndian {
		for i := 0; i < len(data); i += bytesPerSample {
			for a, b := i, i+bytesPerSample-1; a < b; a, b = a+1, b-1 {
				data[a], data[b] = data[b], data[a]
			}
		}
	}

	return data
}

// Clone returns a deep copy of p with a packed stride.
func (p *Plane) Clone() *Plane {
	clone, _ := PlaneFromBytes(p.DType, p.Width(), p.Height(), p.Bytes(binary.BigEndian), binary.BigEndian)
	return clone
}

// Crop copies the part of p inside r into a new plane anchored at the origin.
// r is clipped to the bounds of p.
func (p *Plane) Crop(r image.Rectangle) *Plane {
	r = r.Intersect(p.Rect)
	cropped := NewPlane(p.DType, r.Dx(), r.Dy())

	rowBytes := r.Dx() * p.DType.BytesPerSample()
	for y := 0; y < r.Dy(); y++ {
		src := p.PixOffset(r.Min.X, r.Min.Y+y)
		copy(cropped.Pix[y*cropped.Stride:], p.Pix[src:src+rowBytes])
	}

	return cropped
}

// Equal reports whether both planes have the same dtype, size and samples.
// Float samples are compared bitwise.
func (p *Plane) Equal(other *Plane) bool {
	if p == nil || other == nil {
		return p == other
	}
	if p.DType != other.DType || p.Width() != other.Width() || p.Height() != other.Height() {
		return false
	}
	return bytes.Equal(p.Bytes(binary.BigEndian), other.Bytes(binary.BigEndian))
}

// Convert returns a copy of p with samples converted to dtype. Conversion to
// an integer type rounds and saturates.
func (p *Plane) Convert(dtype DType) *Plane {
	if dtype == p.DType {
		return p.Clone()
	}

	converted := NewPlane(dtype, p.Width(), p.Height())
	for y := 0; y < p.Height(); y++ {
		for x := 0; x < p.Width(); x++ {
			converted.SetValue(x, y, p.Value(x, y))
		}
	}
	return converted
}

// Scale returns a copy of p with every sample multiplied by factor.
func (p *Plane) Scale(factor float64) *Plane {
	scaled := NewPlane(p.DType, p.Width(), p.Height())
	for y := 0; y < p.Height(); y++ {
		for x := 0; x < p.Width(); x++ {
			scaled.SetValue(x, y, p.Value(x, y)*factor)
		}
	}
	return scaled
}
