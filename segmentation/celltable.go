package segmentation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/AlanRace/go-mibi/mibi"
	"github.com/AlanRace/go-mibi/util"
)

// CellTableOptions controls ExtractCellTable.
type CellTableOptions struct {
	// NumSectors splits every cell into equal angular sectors around its
	// centroid and totals each channel per sector. Zero disables sectors.
	NumSectors int
}

// CellRow holds the measurements of one object.
type CellRow struct {
	Label       uint32
	Area        int
	CentroidRow float64
	CentroidCol float64

	// Total and Mean are indexed like CellTable.Targets
	Total []float64
	Mean  []float64
	// Sectors[c][s] is the total of channel c in sector s, sector 0 starting
	// at the positive column axis
	Sectors [][]float64
}

type CellTable struct {
	Targets []string
	Rows    []CellRow
}

// ExtractCellTable measures every object of l, in ascending id order. When
// img is not nil it must have the shape of l and its channels are totalled
// and averaged per object. An image without objects gives an empty table.
func ExtractCellTable(l *Labels, img *mibi.Image, opts *CellTableOptions) (*CellTable, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &CellTableOptions{}
	}
	if opts.NumSectors < 0 {
		return nil, fmt.Errorf("%w: negative sector count %d", mibi.ErrValidation, opts.NumSectors)
	}

	table := &CellTable{}
	if img != nil {
		if h, w := img.Shape(); h != l.Height || w != l.Width {
			return nil, fmt.Errorf("%w: label image is %dx%d, image is %dx%d", mibi.ErrMismatch, l.Height, l.Width, h, w)
		}
		table.Targets = img.Targets()
	}

	pixels := make(map[uint32][]int)
	for i, id := range l.Pix {
		if id != 0 {
			pixels[id] = append(pixels[id], i)
		}
	}

	for _, id := range l.IDs() {
		indices := pixels[id]
		rows := make([]float64, len(indices))
		cols := make([]float64, len(indices))
		for k, i := range indices {
			rows[k] = float64(i / l.Width)
			cols[k] = float64(i % l.Width)
		}

		row := CellRow{
			Label:       id,
			Area:        len(indices),
			CentroidRow: stat.Mean(rows, nil),
			CentroidCol: stat.Mean(cols, nil),
		}

		if img != nil {
			measureChannels(&row, img, rows, cols, opts.NumSectors)
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

func measureChannels(row *CellRow, img *mibi.Image, rows, cols []float64, numSectors int) {
	n := img.NumChannels()
	row.Total = make([]float64, n)
	row.Mean = make([]float64, n)

	var sectorOf []int
	if numSectors > 0 {
		row.Sectors = make([][]float64, n)
		sectorOf = make([]int, len(rows))
		width := 2 * math.Pi / float64(numSectors)
		for k := range rows {
			_, phi := util.Car2Pol(cols[k], rows[k], row.CentroidCol, row.CentroidRow, false)
			sectorOf[k] = int(phi / width)
			if sectorOf[k] >= numSectors {
				sectorOf[k] = numSectors - 1
			}
		}
	}

	values := make([]float64, len(rows))
	for c := 0; c < n; c++ {
		plane := img.Plane(c)
		for k := range rows {
			values[k] = plane.Value(int(cols[k]), int(rows[k]))
		}
		row.Total[c] = floats.Sum(values)
		row.Mean[c] = stat.Mean(values, nil)

		if numSectors > 0 {
			row.Sectors[c] = make([]float64, numSectors)
			for k, v := range values {
				row.Sectors[c][sectorOf[k]] += v
			}
		}
	}
}

// Column returns the per object value of a measurement for use with
// PaintLabels. Valid names are "area", "centroid_row", "centroid_col" and the
// channel targets, which give the channel total.
func (table *CellTable) Column(name string) (map[uint32]float64, error) {
	channel := -1
	for i, target := range table.Targets {
		if target == name {
			channel = i
		}
	}
	switch name {
	case "area", "centroid_row", "centroid_col":
	default:
		if channel < 0 {
			return nil, fmt.Errorf("%w: no column %q", mibi.ErrLookup, name)
		}
	}

	column := make(map[uint32]float64, len(table.Rows))
	for _, row := range table.Rows {
		switch {
		case name == "area":
			column[row.Label] = float64(row.Area)
		case name == "centroid_row":
			column[row.Label] = row.CentroidRow
		case name == "centroid_col":
			column[row.Label] = row.CentroidCol
		default:
			column[row.Label] = row.Total[channel]
		}
	}
	return column, nil
}
