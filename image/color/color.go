package color

import (
	"image/color"
)

// Add additional colours not included in Go image/color

// Gray32 represents a 32-bit grayscale color.
type Gray32 struct {
	Y uint32
}

func (c Gray32) RGBA() (r, g, b, a uint32) {
	y := c.Y >> 16
	return y, y, y, 0xffff
}

// GrayFloat32 is a floating point intensity. Values are displayed on the
// range [0, 1] and clipped outside it.
type GrayFloat32 struct {
	Y float32
}

func (c GrayFloat32) RGBA() (r, g, b, a uint32) {
	y := c.Y
	if !(y > 0) {
		y = 0
	} else if y > 1 {
		y = 1
	}
	v := uint32(y*0xffff + 0.5)
	return v, v, v, 0xffff
}

// RGB represents represents 3 byte color, having 8 bits for each of red, green and blue.
type RGB struct {
	R, G, B uint8
}

func (c RGB) RGBA() (r, g, b, a uint32) {
	r = uint32(c.R)
	r |= r << 8

	g = uint32(c.G)
	g |= g << 8

	b = uint32(c.B)
	b |= b << 8

	a = 0xffff

	return
}

// RGB16 represents represents 3 color, each having 16 bits for each of red, green and blue.
type RGB16 struct {
	R, G, B uint16
}

func (c RGB16) RGBA() (r, g, b, a uint32) {
	r = uint32(c.R)
	g = uint32(c.G)
	b = uint32(c.B)

	a = 0xffff

	return
}

var (
	Gray32Model      color.Model = color.ModelFunc(gray32Model)
	GrayFloat32Model color.Model = color.ModelFunc(grayFloat32Model)
	RGBModel         color.Model = color.ModelFunc(rgbModel)
	RGB16Model       color.Model = color.ModelFunc(rgb16Model)
)

// luminance weights each 16-bit component with the JFIF coefficients used by
// color.RGBToYCbCr.
func luminance(r, g, b uint32) float64 {
	return float64(r)*0.299 + float64(g)*0.587 + float64(b)*0.114
}

func gray32Model(c color.Color) color.Color {
	if _, ok := c.(Gray32); ok {
		return c
	}

	r, g, b, _ := c.RGBA()

	return Gray32{uint32(luminance(r, g, b) * 65537)}
}

func grayFloat32Model(c color.Color) color.Color {
	if _, ok := c.(GrayFloat32); ok {
		return c
	}

	r, g, b, _ := c.RGBA()

	return GrayFloat32{float32(luminance(r, g, b) / 0xffff)}
}

func rgbModel(c color.Color) color.Color {
	if _, ok := c.(RGB); ok {
		return c
	}

	r, g, b, _ := c.RGBA()

	return RGB{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
}

func rgb16Model(c color.Color) color.Color {
	if _, ok := c.(RGB16); ok {
		return c
	}

	r, g, b, _ := c.RGBA()

	return RGB16{uint16(r), uint16(g), uint16(b)}
}
