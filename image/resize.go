package image

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Interpolation selects the sampling used by Resize.
type Interpolation int

const (
	NearestNeighbor Interpolation = iota
	CatmullRom
)

func (interp Interpolation) String() string {
	switch interp {
	case NearestNeighbor:
		return "nearest"
	case CatmullRom:
		return "bicubic"
	}
	return "unknown"
}

// Resize returns p rescaled to width x height. Integer planes go through
// x/image/draw; float planes are sampled with the same kernels in float64 so
// that no precision is lost.
func Resize(p *Plane, width, height int, interp Interpolation) *Plane {
	if width == p.Width() && height == p.Height() {
		return p.Clone()
	}

	var scaler draw.Scaler = draw.NearestNeighbor
	if interp == CatmullRom {
		scaler = draw.CatmullRom
	}

	switch p.DType {
	case Uint8:
		src := &image.Gray{Pix: p.Pix, Stride: p.Stride, Rect: p.Rect}
		dst := image.NewGray(image.Rect(0, 0, width, height))
		scaler.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		return &Plane{Pix: dst.Pix, Stride: dst.Stride, Rect: dst.Rect, DType: Uint8}
	case Uint16:
		src := &image.Gray16{Pix: p.Pix, Stride: p.Stride, Rect: p.Rect}
		dst := image.NewGray16(image.Rect(0, 0, width, height))
		scaler.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		return &Plane{Pix: dst.Pix, Stride: dst.Stride, Rect: dst.Rect, DType: Uint16}
	}

	if interp == CatmullRom {
		return resizeKernel(p, width, height)
	}
	return resizeNearest(p, width, height)
}

func resizeNearest(p *Plane, width, height int) *Plane {
	dst := NewPlane(p.DType, width, height)
	sw, sh := uint64(p.Width()), uint64(p.Height())

	for y := 0; y < height; y++ {
		sy := int((2*uint64(y) + 1) * sh / uint64(2*height))
		for x := 0; x < width; x++ {
			sx := int((2*uint64(x) + 1) * sw / uint64(2*width))
			dst.SetValue(x, y, p.Value(sx, sy))
		}
	}

	return dst
}

func catmullRom(t float64) float64 {
	if t < 0 {
		t = -t
	}
	if t < 1 {
		return (1.5*t-2.5)*t*t + 1
	}
	if t < 2 {
		return ((-0.5*t+2.5)*t-4)*t + 2
	}
	return 0
}

type kernelWeight struct {
	index  int
	weight float64
}

// kernelWeights computes the normalised contribution of source samples to
// each of dn destination samples, widening the kernel when downsampling.
func kernelWeights(dn, sn int) [][]kernelWeight {
	scale := float64(sn) / float64(dn)
	halfWidth, argScale := 2.0, 1.0
	if scale > 1 {
		halfWidth *= scale
		argScale = 1 / scale
	}

	weights := make([][]kernelWeight, dn)
	for d := 0; d < dn; d++ {
		center := (float64(d)+0.5)*scale - 0.5
		lo := int(math.Floor(center - halfWidth))
		if lo < 0 {
			lo = 0
		}
		hi := int(math.Ceil(center + halfWidth))
		if hi > sn {
			hi = sn
		}

		var total float64
		for s := lo; s < hi; s++ {
			if w := catmullRom((float64(s) - center) * argScale); w != 0 {
				weights[d] = append(weights[d], kernelWeight{index: s, weight: w})
				total += w
			}
		}
		if total != 0 {
			for i := range weights[d] {
				weights[d][i].weight /= total
			}
		}
	}

	return weights
}

func resizeKernel(p *Plane, width, height int) *Plane {
	sw, sh := p.Width(), p.Height()
	xWeights := kernelWeights(width, sw)
	yWeights := kernelWeights(height, sh)

	// horizontal pass into sh rows of width samples
	tmp := make([]float64, width*sh)
	for y := 0; y < sh; y++ {
		for x := 0; x < width; x++ {
			var v float64
			for _, w := range xWeights[x] {
				v += w.weight * p.Value(w.index, y)
			}
			tmp[y*width+x] = v
		}
	}

	dst := NewPlane(p.DType, width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var v float64
			for _, w := range yWeights[y] {
				v += w.weight * tmp[w.index*width+x]
			}
			dst.SetValue(x, y, v)
		}
	}

	return dst
}
