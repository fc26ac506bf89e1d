package segmentation

import (
	"errors"
	"math"
	"testing"

	"github.com/AlanRace/go-mibi/image"
	"github.com/AlanRace/go-mibi/mibi"
)

func labels(t *testing.T, width int, values ...uint32) *Labels {
	t.Helper()

	l, err := LabelsFromValues(width, len(values)/width, values)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func fill(l *Labels, id uint32, x0, y0, x1, y1 int) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			l.Set(x, y, id)
		}
	}
}

func checkLabels(t *testing.T, got *Labels, want ...uint32) {
	t.Helper()

	for i, id := range want {
		if got.Pix[i] != id {
			t.Fatalf("labels = %v, want %v", got.Pix, want)
		}
	}
}

func TestExpandObjectsSinglePixel(t *testing.T) {
	l := NewLabels(4, 4)
	l.Set(1, 1, 1)

	expanded, err := ExpandObjects(l, 5)
	if err != nil {
		t.Fatal(err)
	}

	checkLabels(t, expanded,
		0, 1, 0, 0,
		1, 1, 1, 0,
		0, 1, 0, 0,
		0, 0, 0, 0)
	if l.Areas()[1] != 1 {
		t.Error("input was modified")
	}
}

func TestExpandObjectsPartialRing(t *testing.T) {
	l := NewLabels(4, 4)
	l.Set(1, 1, 1)

	// only the first three ring pixels in row major order fit
	expanded, err := ExpandObjects(l, 4)
	if err != nil {
		t.Fatal(err)
	}
	checkLabels(t, expanded,
		0, 1, 0, 0,
		1, 1, 1, 0,
		0, 0, 0, 0,
		0, 0, 0, 0)
}

func TestExpandObjectsTieBreak(t *testing.T) {
	cases := []struct {
		in, want []uint32
	}{
		{[]uint32{1, 0, 0, 0, 2}, []uint32{1, 1, 1, 2, 2}},
		{[]uint32{2, 0, 0, 0, 1}, []uint32{2, 2, 1, 1, 1}},
		{[]uint32{3, 0, 0, 7, 0}, []uint32{3, 3, 7, 7, 7}},
	}

	for _, c := range cases {
		expanded, err := ExpandObjects(labels(t, 5, c.in...), 100)
		if err != nil {
			t.Fatal(err)
		}
		checkLabels(t, expanded, c.want...)
	}
}

func TestExpandObjectsLimitAndIdempotence(t *testing.T) {
	l := NewLabels(9, 7)
	l.Set(0, 0, 4)
	l.Set(4, 3, 2)
	fill(l, 9, 7, 5, 9, 7)

	const maxSize = 6
	expanded, err := ExpandObjects(l, maxSize)
	if err != nil {
		t.Fatal(err)
	}
	for id, area := range expanded.Areas() {
		if area > maxSize {
			t.Errorf("object %d grew to %d pixels", id, area)
		}
	}

	again, err := ExpandObjects(expanded, maxSize)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Equal(expanded) {
		t.Error("second expansion changed the labels")
	}

	// without a useful limit the whole image is covered
	full, err := ExpandObjects(l, 1000)
	if err != nil {
		t.Fatal(err)
	}
	for i, id := range full.Pix {
		if id == 0 {
			t.Fatalf("pixel %d left as background", i)
		}
	}
}

func TestExpandObjectsLargeObjectUnchanged(t *testing.T) {
	l := NewLabels(4, 1)
	fill(l, 1, 0, 0, 3, 1)

	expanded, err := ExpandObjects(l, 2)
	if err != nil {
		t.Fatal(err)
	}
	checkLabels(t, expanded, 1, 1, 1, 0)
}

func TestExpandObjectsErrors(t *testing.T) {
	if _, err := ExpandObjects(NewLabels(2, 2), 0); !errors.Is(err, mibi.ErrValidation) {
		t.Errorf("zero max size: %v", err)
	}
	if _, err := ExpandObjects(&Labels{Width: 2, Height: 2, Pix: make([]uint32, 3)}, 5); !errors.Is(err, mibi.ErrValidation) {
		t.Errorf("short pixel slice: %v", err)
	}

	empty, err := ExpandObjects(NewLabels(0, 0), 5)
	if err != nil {
		t.Fatalf("empty image: %v", err)
	}
	if len(empty.Pix) != 0 {
		t.Error("empty image grew")
	}
}

func TestExpandObjectsByDistance(t *testing.T) {
	expanded, err := ExpandObjectsByDistance(labels(t, 7, 0, 0, 0, 1, 0, 0, 0), 2)
	if err != nil {
		t.Fatal(err)
	}
	checkLabels(t, expanded, 0, 1, 1, 1, 1, 1, 0)

	if _, err := ExpandObjectsByDistance(expanded, -1); !errors.Is(err, mibi.ErrValidation) {
		t.Errorf("negative distance: %v", err)
	}
}

func TestFilterBySize(t *testing.T) {
	l := NewLabels(20, 20)
	fill(l, 1, 0, 0, 2, 2)    // 4 pixels
	fill(l, 2, 5, 0, 10, 1)   // 5
	fill(l, 3, 0, 10, 10, 20) // 100 + 1 below
	l.Set(0, 9, 3)
	fill(l, 4, 10, 10, 20, 20) // 100

	filtered, retained, err := FilterBySize(l, 5, 100)
	if err != nil {
		t.Fatal(err)
	}

	if len(retained) != 2 || retained[0] != 2 || retained[1] != 4 {
		t.Errorf("retained = %v", retained)
	}
	for i, id := range filtered.Pix {
		switch l.Pix[i] {
		case 2, 4:
			if id != l.Pix[i] {
				t.Fatalf("pixel %d of a kept object changed to %d", i, id)
			}
		default:
			if id != 0 {
				t.Fatalf("pixel %d is %d, want background", i, id)
			}
		}
	}

	if _, _, err := FilterBySize(l, 10, 5); !errors.Is(err, mibi.ErrValidation) {
		t.Errorf("inverted range: %v", err)
	}
}

func TestGetAdjacencyMatrix(t *testing.T) {
	l := labels(t, 4,
		1, 1, 2, 0,
		1, 0, 2, 0,
		3, 3, 0, 0,
		0, 0, 0, 7)

	adjacency, err := GetAdjacencyMatrix(l)
	if err != nil {
		t.Fatal(err)
	}

	n := len(adjacency.IDs)
	if n != 4 {
		t.Fatalf("ids = %v", adjacency.IDs)
	}
	for i := 0; i < n; i++ {
		if adjacency.Matrix.At(i, i) != 0 {
			t.Errorf("diagonal %d is %v", i, adjacency.Matrix.At(i, i))
		}
		for j := 0; j < n; j++ {
			if adjacency.Matrix.At(i, j) != adjacency.Matrix.At(j, i) {
				t.Errorf("asymmetric at %d,%d", i, j)
			}
		}
	}

	pairs := []struct {
		a, b uint32
		want bool
	}{
		{1, 2, true},
		{1, 3, true},
		{2, 3, false},
		{7, 1, false},
		{7, 3, false},
		{1, 42, false},
	}
	for _, p := range pairs {
		if got := adjacency.Adjacent(p.a, p.b); got != p.want {
			t.Errorf("Adjacent(%d, %d) = %v", p.a, p.b, got)
		}
	}
	if neighbours := adjacency.Neighbours(1); len(neighbours) != 2 || neighbours[0] != 2 || neighbours[1] != 3 {
		t.Errorf("neighbours of 1 = %v", neighbours)
	}

	empty, err := GetAdjacencyMatrix(NewLabels(3, 3))
	if err != nil {
		t.Fatal(err)
	}
	if empty.Matrix != nil || len(empty.IDs) != 0 {
		t.Error("expected no matrix for an image without objects")
	}
}

func TestExtractCellTable(t *testing.T) {
	l := NewLabels(4, 4)
	fill(l, 5, 0, 0, 2, 2)
	l.Set(3, 3, 9)

	values := make([]uint16, 16)
	for i := range values {
		values[i] = uint16(i)
	}
	plane, err := image.PlaneFromUint16(4, 4, values)
	if err != nil {
		t.Fatal(err)
	}
	img, err := mibi.New([]*image.Plane{plane}, []mibi.Channel{{Target: "dsDNA"}}, mibi.Metadata{})
	if err != nil {
		t.Fatal(err)
	}

	table, err := ExtractCellTable(l, img, &CellTableOptions{NumSectors: 4})
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Rows) != 2 || len(table.Targets) != 1 {
		t.Fatalf("table = %+v", table)
	}

	cell := table.Rows[0]
	if cell.Label != 5 || cell.Area != 4 || cell.CentroidRow != 0.5 || cell.CentroidCol != 0.5 {
		t.Errorf("cell 5 = %+v", cell)
	}
	if cell.Total[0] != 10 || cell.Mean[0] != 2.5 {
		t.Errorf("cell 5 total %v mean %v", cell.Total, cell.Mean)
	}
	want := []float64{5, 4, 0, 1}
	for s, v := range want {
		if math.Abs(cell.Sectors[0][s]-v) > 1e-12 {
			t.Errorf("sectors = %v, want %v", cell.Sectors[0], want)
			break
		}
	}

	single := table.Rows[1]
	if single.Label != 9 || single.Area != 1 || single.Total[0] != 15 || single.Sectors[0][0] != 15 {
		t.Errorf("cell 9 = %+v", single)
	}

	area, err := table.Column("area")
	if err != nil {
		t.Fatal(err)
	}
	if area[5] != 4 || area[9] != 1 {
		t.Errorf("area column = %v", area)
	}
	if _, err := table.Column("CD45"); !errors.Is(err, mibi.ErrLookup) {
		t.Errorf("unknown column: %v", err)
	}

	if _, err := ExtractCellTable(NewLabels(3, 4), img, nil); !errors.Is(err, mibi.ErrMismatch) {
		t.Errorf("shape mismatch: %v", err)
	}

	empty, err := ExtractCellTable(NewLabels(4, 4), img, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty.Rows) != 0 {
		t.Error("expected an empty table")
	}
}

func TestReplaceLabeledPixels(t *testing.T) {
	l := labels(t, 4, 0, 1, 2, 3)

	kept, err := ReplaceLabeledPixels(l, map[uint32]uint32{1: 10, 2: 0}, false)
	if err != nil {
		t.Fatal(err)
	}
	checkLabels(t, kept, 0, 10, 0, 3)

	zeroed, err := ReplaceLabeledPixels(l, map[uint32]uint32{1: 10}, true)
	if err != nil {
		t.Fatal(err)
	}
	checkLabels(t, zeroed, 0, 10, 0, 0)
	checkLabels(t, l, 0, 1, 2, 3)
}

func TestPaintLabels(t *testing.T) {
	l := labels(t, 3, 0, 1, 2)

	p, err := PaintLabels(l, map[uint32]float64{0: 9, 1: 0.25})
	if err != nil {
		t.Fatal(err)
	}
	if p.DType != image.Float32 {
		t.Errorf("dtype = %s", p.DType)
	}
	if p.Value(0, 0) != 0 || p.Value(1, 0) != 0.25 || p.Value(2, 0) != 0 {
		t.Errorf("values = %v", p.Values())
	}
}

func TestLabelsFromPlane(t *testing.T) {
	p, _ := image.PlaneFromUint8(2, 1, []uint8{0, 3})
	l, err := LabelsFromPlane(p)
	if err != nil {
		t.Fatal(err)
	}
	checkLabels(t, l, 0, 3)
	restored, err := l.ToPlane()
	if err != nil {
		t.Fatal(err)
	}
	if !restored.Convert(image.Uint8).Equal(p) {
		t.Error("ToPlane does not restore the labels")
	}

	wide, err := LabelsFromValues(2, 1, []uint32{1, 70000})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wide.ToPlane(); !errors.Is(err, mibi.ErrValidation) {
		t.Errorf("id above 65535: %v", err)
	}

	if _, err := LabelsFromPlane(image.NewPlane(image.Float32, 2, 2)); !errors.Is(err, mibi.ErrValidation) {
		t.Errorf("float plane: %v", err)
	}
}
