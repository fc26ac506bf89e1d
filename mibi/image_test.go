package mibi

import (
	"errors"
	stdimage "image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AlanRace/go-mibi/image"
)

func uint16Plane(t *testing.T, width, height int, start uint16) *image.Plane {
	t.Helper()

	values := make([]uint16, width*height)
	for i := range values {
		values[i] = start + uint16(i)
	}
	plane, err := image.PlaneFromUint16(width, height, values)
	if err != nil {
		t.Fatal(err)
	}
	return plane
}

func testMetadata() Metadata {
	date := time.Date(2019, 3, 4, 12, 30, 0, 0, time.UTC)
	md := Metadata{
		Run:         "20190304_run",
		Date:        &date,
		Coordinates: &Coordinates{X: 12000, Y: -3400, Z: 0},
		Size:        500,
		Frame:       1024,
		FovID:       "Point1",
		FovName:     "R1C1",
		Instrument:  "MIBIscope1",
	}
	md.Extra.Set("filename", StringValue("run.bin"))
	md.Extra.Set("raw", BytesValue([]byte{0, 1, 2, 255}))
	return md
}

// testImage builds a 3x4 image with channels CD45 (89), dsDNA (100) and
// Ki67 (no mass).
func testImage(t *testing.T) *Image {
	t.Helper()

	planes := []*image.Plane{
		uint16Plane(t, 4, 3, 0),
		uint16Plane(t, 4, 3, 100),
		uint16Plane(t, 4, 3, 200),
	}
	channels := []Channel{NewChannel("CD45", 89), NewChannel("dsDNA", 100), {Target: "Ki67"}}

	img, err := New(planes, channels, testMetadata())
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func checkShapeInvariant(t *testing.T, img *Image) {
	t.Helper()

	if len(img.planes) != len(img.channels) {
		t.Fatalf("%d planes for %d channels", len(img.planes), len(img.channels))
	}
	h, w := img.Shape()
	for i, plane := range img.planes {
		if plane.Height() != h || plane.Width() != w {
			t.Errorf("plane %d is %dx%d, image is %dx%d", i, plane.Height(), plane.Width(), h, w)
		}
	}
}

func TestNewValidation(t *testing.T) {
	p := uint16Plane(t, 2, 2, 0)
	small := uint16Plane(t, 1, 2, 0)
	f := image.NewPlane(image.Float32, 2, 2)

	cases := map[string]struct {
		planes   []*image.Plane
		channels []Channel
		err      error
	}{
		"empty":          {nil, nil, ErrValidation},
		"count mismatch": {[]*image.Plane{p}, []Channel{{Target: "a"}, {Target: "b"}}, ErrValidation},
		"shape mismatch": {[]*image.Plane{p, small}, []Channel{{Target: "a"}, {Target: "b"}}, ErrValidation},
		"dtype mismatch": {[]*image.Plane{p, f}, []Channel{{Target: "a"}, {Target: "b"}}, ErrValidation},
		"empty target":   {[]*image.Plane{p}, []Channel{{Target: ""}}, ErrValidation},
		"bad mass":       {[]*image.Plane{p}, []Channel{NewChannel("a", -1)}, ErrValidation},
		"duplicate":      {[]*image.Plane{p, p}, []Channel{{Target: "a"}, {Target: "a"}}, ErrConflict},
	}

	for name, c := range cases {
		if _, err := New(c.planes, c.channels, Metadata{}); !errors.Is(err, c.err) {
			t.Errorf("%s: got %v, want %v", name, err, c.err)
		}
	}
}

func TestChannelInds(t *testing.T) {
	img := testImage(t)

	inds, err := img.ChannelInds(Target("Ki67"), Mass(89), Index(1))
	if err != nil {
		t.Fatal(err)
	}
	if len(inds) != 3 || inds[0] != 2 || inds[1] != 0 || inds[2] != 1 {
		t.Errorf("ChannelInds = %v, want [2 0 1]", inds)
	}

	if _, err := img.ChannelInds(Target("CD3")); !errors.Is(err, ErrLookup) {
		t.Errorf("unknown target: %v", err)
	}
	if _, err := img.ChannelInds(Mass(150)); !errors.Is(err, ErrLookup) {
		t.Errorf("unknown mass: %v", err)
	}
	if _, err := img.ChannelInds(Index(3)); !errors.Is(err, ErrLookup) {
		t.Errorf("index out of range: %v", err)
	}
	if _, err := img.ChannelInds(Target("CD45"), Mass(89)); !errors.Is(err, ErrValidation) {
		t.Errorf("duplicate selection: %v", err)
	}
	if _, err := img.ChannelInds(); !errors.Is(err, ErrValidation) {
		t.Errorf("empty selection: %v", err)
	}
}

func TestAmbiguousMass(t *testing.T) {
	channels := []Channel{NewChannel("a", 89), NewChannel("b", 89)}
	if _, err := Mass(89).resolve(channels); !errors.Is(err, ErrLookup) {
		t.Errorf("ambiguous mass: %v", err)
	}
}

func TestSliceData(t *testing.T) {
	img := testImage(t)

	planes, err := img.SliceData(Target("dsDNA"))
	if err != nil {
		t.Fatal(err)
	}
	if planes[0].Value(0, 0) != 100 {
		t.Errorf("dsDNA(0,0) = %v", planes[0].Value(0, 0))
	}

	planes[0].SetValue(0, 0, 0)
	if img.Plane(1).Value(0, 0) != 100 {
		t.Error("SliceData returned shared pixels")
	}
}

func TestSliceImage(t *testing.T) {
	img := testImage(t)

	sliced, err := img.SliceImage(stdimage.Rect(1, 1, 3, 3))
	if err != nil {
		t.Fatal(err)
	}
	checkShapeInvariant(t, sliced)
	if h, w := sliced.Shape(); h != 2 || w != 2 {
		t.Errorf("shape = %dx%d", h, w)
	}
	// row 1 column 1 of a 4 wide plane
	if v := sliced.Plane(0).Value(0, 0); v != 5 {
		t.Errorf("sliced(0,0) = %v, want 5", v)
	}

	for _, r := range []stdimage.Rectangle{stdimage.Rect(0, 0, 5, 3), stdimage.Rect(-1, 0, 2, 2), stdimage.Rect(1, 1, 1, 1)} {
		if _, err := img.SliceImage(r); !errors.Is(err, ErrOutOfBounds) {
			t.Errorf("SliceImage(%v): %v", r, err)
		}
	}
}

func TestAppend(t *testing.T) {
	a := testImage(t)
	b, err := New([]*image.Plane{uint16Plane(t, 4, 3, 7)}, []Channel{NewChannel("CD8", 150)}, Metadata{})
	if err != nil {
		t.Fatal(err)
	}
	n := a.NumChannels()

	if err := a.Append(b); err != nil {
		t.Fatal(err)
	}
	checkShapeInvariant(t, a)

	inds, err := a.ChannelInds(Target("CD8"))
	if err != nil {
		t.Fatal(err)
	}
	if inds[0] != n {
		t.Errorf("appended channel at %d, want %d", inds[0], n)
	}

	// conflicting target, receiver left untouched
	if err := a.Append(b); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate append: %v", err)
	}
	if a.NumChannels() != n+1 {
		t.Errorf("failed append changed channel count to %d", a.NumChannels())
	}

	other, _ := New([]*image.Plane{uint16Plane(t, 2, 2, 0)}, []Channel{{Target: "x"}}, Metadata{})
	if err := a.Append(other); !errors.Is(err, ErrConflict) {
		t.Errorf("shape mismatch append: %v", err)
	}
}

func TestRemoveChannels(t *testing.T) {
	img := testImage(t)

	if err := img.RemoveChannels(Target("dsDNA")); err != nil {
		t.Fatal(err)
	}
	checkShapeInvariant(t, img)
	if targets := img.Targets(); len(targets) != 2 || targets[0] != "CD45" || targets[1] != "Ki67" {
		t.Errorf("targets = %v", targets)
	}
	if img.Plane(1).Value(0, 0) != 200 {
		t.Error("planes not kept in step with channels")
	}

	if err := img.RemoveChannels(Index(0), Index(1)); !errors.Is(err, ErrValidation) {
		t.Errorf("removing every channel: %v", err)
	}
}

func TestRenameTargets(t *testing.T) {
	img := testImage(t)

	if err := img.RenameTargets(map[string]string{"CD45": "dsDNA", "dsDNA": "CD45"}); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if targets := img.Targets(); targets[0] != "dsDNA" || targets[1] != "CD45" {
		t.Errorf("targets after swap = %v", targets)
	}

	if err := img.RenameTargets(map[string]string{"Ki67": "CD45"}); !errors.Is(err, ErrConflict) {
		t.Errorf("colliding rename: %v", err)
	}
	if img.Targets()[2] != "Ki67" {
		t.Error("failed rename modified the image")
	}
	if err := img.RenameTargets(map[string]string{"CD3": "CD4"}); !errors.Is(err, ErrLookup) {
		t.Errorf("unknown target rename: %v", err)
	}
}

func TestApplyPanel(t *testing.T) {
	img := testImage(t)
	panel := Panel{{Target: "CD45RO", Mass: 89}, {Target: "HH3", Mass: 100}}

	if err := img.ApplyPanel(panel); err != nil {
		t.Fatal(err)
	}
	if targets := img.Targets(); targets[0] != "CD45RO" || targets[1] != "HH3" || targets[2] != "Ki67" {
		t.Errorf("targets = %v", targets)
	}

	if err := img.ApplyPanel(Panel{{Target: "a", Mass: 1}, {Target: "a", Mass: 2}}); !errors.Is(err, ErrValidation) {
		t.Errorf("invalid panel: %v", err)
	}
}

func TestResize(t *testing.T) {
	img := testImage(t)

	resized, err := img.Resize(6, 8, Nearest, false)
	if err != nil {
		t.Fatal(err)
	}
	checkShapeInvariant(t, resized)
	if h, w := resized.Shape(); h != 6 || w != 8 {
		t.Errorf("shape = %dx%d", h, w)
	}
	if resized.DType() != image.Uint16 {
		t.Errorf("dtype = %s", resized.DType())
	}
	if h, _ := img.Shape(); h != 3 {
		t.Error("Resize modified the receiver")
	}

	counts, err := img.Resize(6, 8, Nearest, true)
	if err != nil {
		t.Fatal(err)
	}
	// every source pixel becomes 4 pixels each holding a quarter
	if got, want := counts.Plane(1).Sum(), img.Plane(1).Sum(); got < want-24 || got > want+24 {
		t.Errorf("count preserving sum = %v, want about %v", got, want)
	}

	if _, err := img.Resize(0, 4, Bicubic, false); !errors.Is(err, ErrValidation) {
		t.Errorf("zero size: %v", err)
	}
}

func TestCopyAndEqual(t *testing.T) {
	img := testImage(t)
	clone := img.Copy()

	if !img.Equal(clone) {
		t.Fatal("copy not equal to original")
	}

	clone.Plane(0).SetValue(0, 0, 999)
	if img.Plane(0).Value(0, 0) == 999 {
		t.Error("copy shares pixels")
	}
	if img.Equal(clone) {
		t.Error("modified copy still equal")
	}

	clone = img.Copy()
	clone.Metadata.Extra.Set("raw", BytesValue([]byte{9}))
	if img.Equal(clone) {
		t.Error("metadata change not detected")
	}
	if v, _ := img.Metadata.Extra.Get("raw"); v.Equal(BytesValue([]byte{9})) {
		t.Error("copy shares extra metadata")
	}

	converted, err := img.AsType(image.Float32)
	if err != nil {
		t.Fatal(err)
	}
	if img.Equal(converted) {
		t.Error("images of different dtype reported equal")
	}
}

func TestExportPNGs(t *testing.T) {
	img := testImage(t)
	dir := t.TempDir()

	if err := img.ExportPNGs(dir, &ExportOptions{Depth: 16}); err != nil {
		t.Fatal(err)
	}

	for _, target := range img.Targets() {
		f, err := os.Open(filepath.Join(dir, "R1C1_"+target+".png"))
		if err != nil {
			t.Fatal(err)
		}
		decoded, err := png.Decode(f)
		f.Close()
		if err != nil {
			t.Fatal(err)
		}
		if decoded.Bounds().Dx() != 4 || decoded.Bounds().Dy() != 3 {
			t.Errorf("%s: bounds %v", target, decoded.Bounds())
		}
	}

	if err := img.ExportPNGs(dir, &ExportOptions{Depth: 12}); !errors.Is(err, ErrValidation) {
		t.Errorf("bad depth: %v", err)
	}
}

func TestExportPNGsNameConflict(t *testing.T) {
	img, err := New(
		[]*image.Plane{uint16Plane(t, 4, 3, 0), uint16Plane(t, 4, 3, 100)},
		[]Channel{NewChannel("CD4 8", 89), NewChannel("CD4_8", 100)},
		testMetadata(),
	)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	if err := img.ExportPNGs(dir, nil); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d files written before the conflict was reported", len(entries))
	}
}

func TestValueOf(t *testing.T) {
	for _, v := range []interface{}{"a", 1, int64(-3), uint8(4), 2.5, float32(1.5), true, []byte{1}} {
		if _, err := ValueOf(v); err != nil {
			t.Errorf("ValueOf(%T): %v", v, err)
		}
	}
	for _, v := range []interface{}{nil, []int{1}, map[string]string{}, uint64(1 << 63), struct{}{}} {
		if _, err := ValueOf(v); !errors.Is(err, ErrValidation) {
			t.Errorf("ValueOf(%T) = %v, want ErrValidation", v, err)
		}
	}
}

func TestExtraOrder(t *testing.T) {
	var extra Extra
	extra.Set("b", IntValue(1))
	extra.Set("a", IntValue(2))
	extra.Set("b", IntValue(3))

	keys := extra.Keys()
	if len(keys) != 2 || keys[0] != "b" || keys[1] != "a" {
		t.Errorf("keys = %v", keys)
	}
	if v, _ := extra.Get("b"); !v.Equal(IntValue(3)) {
		t.Errorf("b = %v", v)
	}

	extra.Delete("b")
	if extra.Len() != 1 {
		t.Errorf("Len after delete = %d", extra.Len())
	}
	if err := extra.SetAny("c", []string{"x"}); err == nil {
		t.Error("expected error for unsupported value")
	}
}

func TestExtraRejectsInvalidValue(t *testing.T) {
	var extra Extra
	if err := extra.Set("zero", Value{}); !errors.Is(err, ErrValidation) {
		t.Errorf("zero value: %v", err)
	}
	if extra.Len() != 0 {
		t.Errorf("invalid value stored, Len = %d", extra.Len())
	}
	if err := extra.Set("ok", StringValue("x")); err != nil {
		t.Errorf("valid value: %v", err)
	}
}
