package libjpeg_test

import (
	"bytes"
	"testing"

	"github.com/AlanRace/go-mibi/composite"
	"github.com/AlanRace/go-mibi/libjpeg"
)

func TestEncodeComposite(t *testing.T) {
	rgb := composite.NewRGBImage(16, 8)
	for y := 0; y < 4; y++ {
		for x := 0; x < 16; x++ {
			rgb.Set(x, y, [3]float64{1, 1, 1})
		}
	}

	var buf bytes.Buffer
	if err := libjpeg.Encode(&buf, rgb.ToRGB(), nil); err != nil {
		t.Fatal(err)
	}

	decoded, err := libjpeg.Decode(&buf, nil)
	if err != nil {
		t.Fatal(err)
	}
	if bounds := decoded.Bounds(); bounds.Dx() != 16 || bounds.Dy() != 8 {
		t.Errorf("decoded bounds = %v", bounds)
	}

	if r, _, _, _ := decoded.At(8, 1).RGBA(); r>>8 < 200 {
		t.Errorf("white half decoded as %d", r>>8)
	}
	if r, _, _, _ := decoded.At(8, 6).RGBA(); r>>8 > 55 {
		t.Errorf("black half decoded as %d", r>>8)
	}
}
