package tiff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func uint16Data(order binary.ByteOrder, values ...uint16) []byte {
	data := make([]byte, 2*len(values))
	for i, v := range values {
		order.PutUint16(data[2*i:], v)
	}
	return data
}

func writePages(t *testing.T, order binary.ByteOrder, pages ...*Page) []byte {
	t.Helper()

	var buf bytes.Buffer
	writer := NewWriter(&buf, order)
	for _, page := range pages {
		if err := writer.WritePage(page); err != nil {
			t.Fatal(err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}

	return buf.Bytes()
}

func TestWriteReadRoundTrip(t *testing.T) {
	order := binary.BigEndian
	pixels := uint16Data(order, 0, 1, 2, 300, 400, 500, 65535, 7, 8)

	for _, compression := range []CompressionID{Uncompressed, LZW, AdobeDeflate, ZSTD} {
		t.Run(compression.String(), func(t *testing.T) {
			pageA := &Page{Width: 3, Height: 3, BitsPerSample: 16, Compression: compression, Data: pixels,
				Tags: []Tag{NewASCIITag(PageName, "CD45"), NewASCIITag(ImageDescription, `{"channel.target": "CD45"}`)}}
			pageB := &Page{Width: 3, Height: 3, BitsPerSample: 16, Compression: compression, Data: make([]byte, 18),
				Tags: []Tag{NewASCIITag(PageName, "dsDNA")}}

			data := writePages(t, order, pageA, pageB)

			tiffFile, err := NewFile(bytes.NewReader(data))
			if err != nil {
				t.Fatal(err)
			}
			if len(tiffFile.IFDList) != 2 {
				t.Fatalf("expected 2 directories, got %d", len(tiffFile.IFDList))
			}
			if tiffFile.IsBigTiff() {
				t.Error("classic file reported as BigTIFF")
			}

			ifd := tiffFile.IFDList[0]
			if name := ifd.GetASCIITagValue(PageName); name != "CD45" {
				t.Errorf("PageName = %q", name)
			}
			width, height, err := ifd.GetImageDimensions()
			if err != nil || width != 3 || height != 3 {
				t.Errorf("dimensions = %d x %d (%v)", width, height, err)
			}
			got, err := ifd.GetFullData()
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, pixels) {
				t.Errorf("data = %v, want %v", got, pixels)
			}

			if name := tiffFile.IFDList[1].GetASCIITagValue(PageName); name != "dsDNA" {
				t.Errorf("second PageName = %q", name)
			}
		})
	}
}

func TestWriterLayoutTagsWin(t *testing.T) {
	page := &Page{Width: 2, Height: 1, BitsPerSample: 8, Data: []byte{1, 2},
		Tags: []Tag{NewLongTag(ImageWidth, []uint32{99})}}

	tiffFile, err := NewFile(bytes.NewReader(writePages(t, binary.LittleEndian, page)))
	if err != nil {
		t.Fatal(err)
	}

	width, _, err := tiffFile.IFDList[0].GetImageDimensions()
	if err != nil {
		t.Fatal(err)
	}
	if width != 2 {
		t.Errorf("width = %d, want 2", width)
	}
}

func TestWriterRejectsBadPages(t *testing.T) {
	writer := NewWriter(&bytes.Buffer{}, binary.BigEndian)
	if err := writer.WritePage(&Page{Width: 2, Height: 2, BitsPerSample: 16, Data: []byte{1}}); err == nil {
		t.Error("expected error for short data")
	}

	writer = NewWriter(&bytes.Buffer{}, binary.BigEndian)
	if err := writer.Close(); err == nil {
		t.Error("expected error closing writer with no pages")
	}
}

func TestHorizontalPredictor(t *testing.T) {
	order := binary.BigEndian
	// rows 10 20 30 and 1000 1001 1003 stored as differences
	diffs := uint16Data(order, 10, 10, 10, 1000, 1, 2)
	page := &Page{Width: 3, Height: 2, BitsPerSample: 16, Data: diffs,
		Tags: []Tag{NewShortTag(Predictor, []uint16{uint16(PredictorHorizontal)})}}

	tiffFile, err := NewFile(bytes.NewReader(writePages(t, order, page)))
	if err != nil {
		t.Fatal(err)
	}

	got, err := tiffFile.IFDList[0].GetFullData()
	if err != nil {
		t.Fatal(err)
	}
	want := uint16Data(order, 10, 20, 30, 1000, 1001, 1003)
	if !bytes.Equal(got, want) {
		t.Errorf("data = %v, want %v", got, want)
	}
}

type testEntry struct {
	id       TagID
	dataType DataTypeID
	values   []uint32
}

// buildTiledFile assembles a little endian 3x3 8-bit image split into 2x2
// tiles, with pixel value y*3+x.
func buildTiledFile() []byte {
	order := binary.LittleEndian
	tiles := [][]byte{
		{0, 1, 3, 4},
		{2, 0, 5, 0},
		{6, 7, 0, 0},
		{8, 0, 0, 0},
	}

	const ifdOffset = 8
	const numEntries = 9
	overflowStart := uint32(ifdOffset + 2 + 12*numEntries + 4)
	tileOffsetsPos := overflowStart
	tileCountsPos := overflowStart + 16
	dataStart := overflowStart + 32

	entries := []testEntry{
		{ImageWidth, Short, []uint32{3}},
		{ImageLength, Short, []uint32{3}},
		{BitsPerSample, Short, []uint32{8}},
		{Compression, Short, []uint32{uint32(Uncompressed)}},
		{PhotometricInterpretation, Short, []uint32{uint32(BlackIsZero)}},
		{TileWidth, Short, []uint32{2}},
		{TileLength, Short, []uint32{2}},
		{TileOffsets, Long, []uint32{tileOffsetsPos}},
		{TileByteCounts, Long, []uint32{tileCountsPos}},
	}

	var buf bytes.Buffer
	buf.Write([]byte{'I', 'I'})
	binary.Write(&buf, order, VersionMarker)
	binary.Write(&buf, order, uint32(ifdOffset))
	binary.Write(&buf, order, uint16(numEntries))
	for _, entry := range entries {
		binary.Write(&buf, order, uint16(entry.id))
		binary.Write(&buf, order, uint16(entry.dataType))
		count := uint32(1)
		if entry.id == TileOffsets || entry.id == TileByteCounts {
			count = 4
		}
		binary.Write(&buf, order, count)
		if entry.dataType == Short {
			binary.Write(&buf, order, uint16(entry.values[0]))
			binary.Write(&buf, order, uint16(0))
		} else {
			binary.Write(&buf, order, entry.values[0])
		}
	}
	binary.Write(&buf, order, uint32(0))

	for i := range tiles {
		binary.Write(&buf, order, dataStart+uint32(4*i))
	}
	for range tiles {
		binary.Write(&buf, order, uint32(4))
	}
	for _, tile := range tiles {
		buf.Write(tile)
	}

	return buf.Bytes()
}

func TestTiledFullData(t *testing.T) {
	tiffFile, err := NewFile(bytes.NewReader(buildTiledFile()))
	if err != nil {
		t.Fatal(err)
	}

	ifd := tiffFile.IFDList[0]
	if !ifd.IsTiled() {
		t.Fatal("expected tiled directory")
	}

	dataAccess, err := ifd.DataAccess()
	if err != nil {
		t.Fatal(err)
	}
	across, down := dataAccess.GetSectionGrid()
	if across != 2 || down != 2 {
		t.Errorf("grid = %d x %d", across, down)
	}
	edge := dataAccess.GetSectionAt(2, 2)
	if edge == nil || edge.Index != 3 || edge.Width != 1 || edge.Height != 1 {
		t.Errorf("edge section = %+v", edge)
	}

	got, err := ifd.GetFullData()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8}
	if !bytes.Equal(got, want) {
		t.Errorf("data = %v, want %v", got, want)
	}
}

func TestOpenFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "tiled.tif")
	if err := os.WriteFile(filename, buildTiledFile(), 0o644); err != nil {
		t.Fatal(err)
	}

	tiffFile, err := Open(filename)
	if err != nil {
		t.Fatal(err)
	}
	defer tiffFile.Close()

	if tiffFile.Header.Endian != binary.LittleEndian {
		t.Error("expected little endian header")
	}
	if n := tiffFile.NumReducedImages(); n != 1 {
		t.Errorf("NumReducedImages = %d", n)
	}
}

func TestCorruptFiles(t *testing.T) {
	valid := writePages(t, binary.BigEndian, &Page{Width: 1, Height: 1, BitsPerSample: 8, Data: []byte{1}})

	badMarker := append([]byte{}, valid...)
	badMarker[0], badMarker[1] = 'X', 'X'

	badVersion := append([]byte{}, valid...)
	badVersion[3] = 40

	truncated := valid[:12]

	loop := append([]byte{}, valid...)
	// point the first directory back at itself
	numTags := int(binary.BigEndian.Uint16(loop[8:]))
	binary.BigEndian.PutUint32(loop[8+2+12*numTags:], 8)

	for name, data := range map[string][]byte{
		"marker":    badMarker,
		"version":   badVersion,
		"truncated": truncated,
		"loop":      loop,
		"empty":     {},
	} {
		_, err := NewFile(bytes.NewReader(data))
		var formatErr *FormatError
		if !errors.As(err, &formatErr) {
			t.Errorf("%s: expected FormatError, got %v", name, err)
		}
	}
}

func TestUnsupportedCompression(t *testing.T) {
	data := writePages(t, binary.BigEndian, &Page{Width: 1, Height: 1, BitsPerSample: 8, Data: []byte{1}})
	tiffFile, err := NewFile(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	ifd := tiffFile.IFDList[0]
	ifd.PutTag(NewShortTag(Compression, []uint16{uint16(JPEG)}))
	if _, err := ifd.GetFullData(); err == nil {
		t.Error("expected error for JPEG compressed strip")
	}
}

func TestRationalNumber(t *testing.T) {
	for _, value := range []float64{0.5, 1, 2.54, 1000000.0 / 3, 1e-3} {
		r := NewRationalNumber(value)
		if math.Abs(r.Value()-value) > 1e-9*math.Max(1, value) {
			t.Errorf("NewRationalNumber(%v) = %v (%v)", value, r, r.Value())
		}
	}

	if r := NewRationalNumber(-1); r.Numerator != 0 {
		t.Errorf("negative value gave %v", r)
	}
}

func TestTagNames(t *testing.T) {
	if PageName.String() != "PageName" {
		t.Error(PageName.String())
	}
	if TagID(65000).String() != "Tag65000" {
		t.Error(TagID(65000).String())
	}

	AddTag(65000, "Private")
	if TagID(65000).String() != "Private" {
		t.Error(TagID(65000).String())
	}
	if ZSTD.String() != "ZSTD" {
		t.Error(ZSTD.String())
	}
}

func TestPackBits(t *testing.T) {
	packed := []byte{0xFE, 0xAA, 0x02, 0x80, 0x00, 0x2A, 0xFD, 0xAA, 0x03, 0x80, 0x00, 0x2A, 0x22, 0xF7, 0xAA}
	want := []byte{
		0xAA, 0xAA, 0xAA, 0x80, 0x00, 0x2A, 0xAA, 0xAA, 0xAA, 0xAA, 0x80, 0x00,
		0x2A, 0x22, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA,
	}

	decompressor, err := GetDecompressor(PackBits)
	if err != nil {
		t.Fatal(err)
	}
	got, err := decompressor.Decompress(bytes.NewReader(packed))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("unpacked % x, want % x", got, want)
	}

	// 0x80 is a no-op header
	if got, err := decompressor.Decompress(bytes.NewReader([]byte{0x80, 0x00, 0x07})); err != nil || !bytes.Equal(got, []byte{0x07}) {
		t.Errorf("no-op header: % x, %v", got, err)
	}
	if _, err := decompressor.Decompress(bytes.NewReader([]byte{0x05, 0x01})); err == nil {
		t.Error("expected error for truncated literal run")
	}

	if _, err := GetCompressor(PackBits); err == nil {
		t.Error("PackBits should be read only")
	}
}
