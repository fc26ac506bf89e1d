package color

import (
	"fmt"
	"math"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Conversions below work on [3]float64 triples. Every component is clamped to
// [0, 1] before use, except hue which is in degrees and wrapped into [0, 360).

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampTriple(c [3]float64) [3]float64 {
	return [3]float64{clamp01(c[0]), clamp01(c[1]), clamp01(c[2])}
}

// RGB2HSL converts an RGB triple to hue (degrees), saturation and lightness.
func RGB2HSL(rgb [3]float64) [3]float64 {
	rgb = clampTriple(rgb)
	h, s, l := colorful.Color{R: rgb[0], G: rgb[1], B: rgb[2]}.Hsl()
	return [3]float64{h, s, l}
}

// HSL2RGB is the inverse of RGB2HSL.
func HSL2RGB(hsl [3]float64) [3]float64 {
	h := math.Mod(hsl[0], 360)
	if h < 0 {
		h += 360
	}
	if math.IsNaN(h) {
		h = 0
	}

	c := colorful.Hsl(h, clamp01(hsl[1]), clamp01(hsl[2]))
	return clampTriple([3]float64{c.R, c.G, c.B})
}

// RGB2CYM remaps an RGB triple so that red is shown as cyan, green as yellow
// and blue as magenta, clipping the sum to [0, 1].
func RGB2CYM(rgb [3]float64) [3]float64 {
	rgb = clampTriple(rgb)
	r, g, b := rgb[0], rgb[1], rgb[2]

	return clampTriple([3]float64{
		g + b,
		r + g,
		r + b,
	})
}

// Named display colours for channel composites.
var Named = map[string][3]float64{
	"red":     {1, 0, 0},
	"green":   {0, 1, 0},
	"blue":    {0, 0, 1},
	"cyan":    {0, 1, 1},
	"magenta": {1, 0, 1},
	"yellow":  {1, 1, 0},
	"white":   {1, 1, 1},
	"gray":    {0.5, 0.5, 0.5},
	"orange":  {1, 0.5, 0},
}

// ParseColor accepts a colour name from Named (case insensitive) or a hex
// code such as "#ff8800".
func ParseColor(name string) ([3]float64, error) {
	if c, ok := Named[strings.ToLower(strings.TrimSpace(name))]; ok {
		return c, nil
	}

	c, err := colorful.Hex(strings.TrimSpace(name))
	if err != nil {
		return [3]float64{}, fmt.Errorf("color: unknown colour %q", name)
	}
	return [3]float64{c.R, c.G, c.B}, nil
}
