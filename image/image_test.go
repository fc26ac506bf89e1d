package image

import (
	"encoding/binary"
	"image"
	"math"
	"testing"

	mibicolor "github.com/AlanRace/go-mibi/image/color"
)

func TestPlaneFromBytesByteOrder(t *testing.T) {
	little := []byte{0x01, 0x00, 0xff, 0xff}
	plane, err := PlaneFromBytes(Uint16, 2, 1, little, binary.LittleEndian)
	if err != nil {
		t.Fatal(err)
	}
	if plane.Value(0, 0) != 1 || plane.Value(1, 0) != 65535 {
		t.Errorf("values = %v", plane.Values())
	}

	if got := plane.Bytes(binary.LittleEndian); string(got) != string(little) {
		t.Errorf("Bytes(LittleEndian) = %v", got)
	}
	if got := plane.Bytes(binary.BigEndian); got[1] != 0x01 {
		t.Errorf("Bytes(BigEndian) = %v", got)
	}

	if _, err := PlaneFromBytes(Uint16, 2, 2, little, binary.BigEndian); err == nil {
		t.Error("expected error for short data")
	}
}

func TestPlaneSetValueSaturates(t *testing.T) {
	plane := NewPlane(Uint8, 3, 1)
	plane.SetValue(0, 0, 300)
	plane.SetValue(1, 0, -5)
	plane.SetValue(2, 0, 2.5)

	want := []float64{255, 0, 3}
	for i, v := range plane.Values() {
		if v != want[i] {
			t.Errorf("value %d = %v, want %v", i, v, want[i])
		}
	}
}

func TestPlaneCropAndEqual(t *testing.T) {
	plane, _ := PlaneFromUint16(3, 3, []uint16{0, 1, 2, 3, 4, 5, 6, 7, 8})

	cropped := plane.Crop(image.Rect(1, 1, 3, 3))
	want, _ := PlaneFromUint16(2, 2, []uint16{4, 5, 7, 8})
	if !cropped.Equal(want) {
		t.Errorf("cropped = %v", cropped.Values())
	}
	if cropped.Bounds().Min != (image.Point{}) {
		t.Error("cropped plane not anchored at origin")
	}

	clone := plane.Clone()
	clone.SetValue(0, 0, 100)
	if plane.Value(0, 0) != 0 {
		t.Error("clone shares pixels with original")
	}
	if plane.Equal(clone) {
		t.Error("modified clone reported equal")
	}
	if plane.Equal(plane.Convert(Float32)) {
		t.Error("planes of different dtype reported equal")
	}
}

func TestPlaneColorModel(t *testing.T) {
	plane, _ := PlaneFromFloat32(1, 1, []float32{0.5})
	c, ok := plane.At(0, 0).(mibicolor.GrayFloat32)
	if !ok || c.Y != 0.5 {
		t.Errorf("At = %#v", plane.At(0, 0))
	}
	if plane.Max() != 0.5 || plane.Sum() != 0.5 {
		t.Errorf("Max = %v, Sum = %v", plane.Max(), plane.Sum())
	}
}

func TestParseDType(t *testing.T) {
	for _, dtype := range []DType{Uint8, Uint16, Float32} {
		parsed, err := ParseDType(dtype.String())
		if err != nil || parsed != dtype {
			t.Errorf("ParseDType(%s) = %v, %v", dtype, parsed, err)
		}
	}
	if _, err := ParseDType("int64"); err == nil {
		t.Error("expected error for int64")
	}
}

func TestResizeNearest(t *testing.T) {
	for _, dtype := range []DType{Uint8, Uint16, Float32} {
		plane := NewPlane(dtype, 2, 2)
		plane.SetValue(0, 0, 1)
		plane.SetValue(1, 0, 2)
		plane.SetValue(0, 1, 3)
		plane.SetValue(1, 1, 4)

		resized := Resize(plane, 4, 4, NearestNeighbor)
		if resized.DType != dtype || resized.Width() != 4 || resized.Height() != 4 {
			t.Fatalf("%s: resized to %s %dx%d", dtype, resized.DType, resized.Width(), resized.Height())
		}
		want := []float64{
			1, 1, 2, 2,
			1, 1, 2, 2,
			3, 3, 4, 4,
			3, 3, 4, 4,
		}
		for i, v := range resized.Values() {
			if v != want[i] {
				t.Errorf("%s: value %d = %v, want %v", dtype, i, v, want[i])
			}
		}
	}
}

func TestResizeCatmullRomConstant(t *testing.T) {
	for _, dtype := range []DType{Uint16, Float32} {
		plane := NewPlane(dtype, 4, 4)
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				plane.SetValue(x, y, 10)
			}
		}

		tolerance := 1e-4
		if dtype.IsInteger() {
			tolerance = 1
		}

		for _, size := range []int{2, 7} {
			resized := Resize(plane, size, size, CatmullRom)
			for i, v := range resized.Values() {
				if math.Abs(v-10) > tolerance {
					t.Errorf("%s %d: value %d = %v, want 10", dtype, size, i, v)
				}
			}
		}
	}
}

func TestRGBImage(t *testing.T) {
	img := NewRGB(image.Rect(0, 0, 2, 2))
	img.SetRGB(1, 1, mibicolor.RGB{R: 10, G: 20, B: 30})

	if got := img.RGBAt(1, 1); got != (mibicolor.RGB{R: 10, G: 20, B: 30}) {
		t.Errorf("RGBAt = %v", got)
	}

	sub := img.SubImage(image.Rect(1, 1, 2, 2)).(*RGB)
	if got := sub.RGBAt(1, 1); got.G != 20 {
		t.Errorf("sub image RGBAt = %v", got)
	}
	if got := img.RGBAt(5, 5); got != (mibicolor.RGB{}) {
		t.Errorf("out of bounds RGBAt = %v", got)
	}
}
