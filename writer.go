package tiff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Page is a single channel image to be written as one image file directory.
// Data holds Width*Height samples, rows packed contiguously, in the byte order
// of the Writer.
type Page struct {
	Width         uint32
	Height        uint32
	BitsPerSample uint16
	SampleFormat  SampleFormatID
	Compression   CompressionID

	Data []byte

	// Tags are written alongside the layout tags the Writer generates. A tag
	// here never replaces a generated layout tag.
	Tags []Tag
}

// Writer streams a classic TIFF file one page at a time. Every page is laid
// out as its directory, then the out of line tag values, then the single
// strip of pixel data. The most recent page is held back until the next one
// arrives so that its next directory pointer can be filled in without
// seeking.
type Writer struct {
	w     io.Writer
	order binary.ByteOrder

	// number of bytes already passed to w
	written uint64

	pending        []byte
	pendingNextPos int

	headerWritten bool
	pages         int
	err           error
}

var errWriterClosed = errors.New("tiff: writer is closed")

// NewWriter returns a Writer emitting TIFF data to w in the given byte order.
func NewWriter(w io.Writer, order binary.ByteOrder) *Writer {
	return &Writer{w: w, order: order}
}

func (writer *Writer) write(data []byte) error {
	if writer.err != nil {
		return writer.err
	}
	n, err := writer.w.Write(data)
	writer.written += uint64(n)
	if err != nil {
		writer.err = err
	}
	return err
}

func (writer *Writer) writeHeader() error {
	header := make([]byte, 8)
	if writer.order == binary.BigEndian {
		binary.BigEndian.PutUint16(header, BigEndianMarker)
	} else {
		binary.BigEndian.PutUint16(header, LittleEndianMarker)
	}
	writer.order.PutUint16(header[2:], VersionMarker)
	writer.order.PutUint32(header[4:], 8)

	writer.headerWritten = true
	return writer.write(header)
}

// WritePage appends page to the file.
func (writer *Writer) WritePage(page *Page) error {
	if writer.err != nil {
		return writer.err
	}
	if !writer.headerWritten {
		if err := writer.writeHeader(); err != nil {
			return err
		}
	}

	start := writer.written + uint64(len(writer.pending))
	block, nextPos, err := writer.buildBlock(page, start)
	if err != nil {
		return err
	}

	if writer.pending != nil {
		writer.order.PutUint32(writer.pending[writer.pendingNextPos:], uint32(start))
		if err := writer.write(writer.pending); err != nil {
			return err
		}
	}

	writer.pending = block
	writer.pendingNextPos = nextPos
	writer.pages++

	return nil
}

// Close flushes the final page. The underlying io.Writer is not closed.
func (writer *Writer) Close() error {
	if writer.err != nil {
		return writer.err
	}
	if writer.pages == 0 {
		writer.err = errWriterClosed
		return errors.New("tiff: no pages written")
	}

	err := writer.write(writer.pending)
	writer.pending = nil
	if err == nil {
		writer.err = errWriterClosed
	}
	return err
}

func (writer *Writer) buildBlock(page *Page, start uint64) ([]byte, int, error) {
	if page.Width == 0 || page.Height == 0 {
		return nil, 0, fmt.Errorf("tiff: page %d: empty image %dx%d", writer.pages, page.Width, page.Height)
	}
	switch page.BitsPerSample {
	case 8, 16, 32, 64:
	default:
		return nil, 0, fmt.Errorf("tiff: page %d: unsupported bit depth %d", writer.pages, page.BitsPerSample)
	}
	expected := uint64(page.Width) * uint64(page.Height) * uint64(page.BitsPerSample/8)
	if uint64(len(page.Data)) != expected {
		return nil, 0, fmt.Errorf("tiff: page %d: %d bytes of data for %dx%d at %d bits", writer.pages, len(page.Data), page.Width, page.Height, page.BitsPerSample)
	}

	compressionID := page.Compression
	if compressionID == 0 {
		compressionID = Uncompressed
	}
	compressor, err := GetCompressor(compressionID)
	if err != nil {
		return nil, 0, err
	}
	stripData, err := compressor.Compress(page.Data)
	if err != nil {
		return nil, 0, fmt.Errorf("tiff: page %d: %s compression failed: %w", writer.pages, compressionID, err)
	}

	sampleFormat := page.SampleFormat
	if sampleFormat == 0 {
		sampleFormat = SampleFormatUint
	}

	var ifd ImageFileDirectory
	for _, tag := range page.Tags {
		ifd.PutTag(tag)
	}

	stripOffsets := NewLongTag(StripOffsets, []uint32{0})
	ifd.PutTag(NewLongTag(ImageWidth, []uint32{page.Width}))
	ifd.PutTag(NewLongTag(ImageLength, []uint32{page.Height}))
	ifd.PutTag(NewShortTag(BitsPerSample, []uint16{page.BitsPerSample}))
	ifd.PutTag(NewShortTag(Compression, []uint16{uint16(compressionID)}))
	ifd.PutTag(NewShortTag(PhotometricInterpretation, []uint16{uint16(BlackIsZero)}))
	ifd.PutTag(stripOffsets)
	ifd.PutTag(NewShortTag(SamplesPerPixel, []uint16{1}))
	ifd.PutTag(NewLongTag(RowsPerStrip, []uint32{page.Height}))
	ifd.PutTag(NewLongTag(StripByteCounts, []uint32{uint32(len(stripData))}))
	ifd.PutTag(NewShortTag(SampleFormat, []uint16{uint16(sampleFormat)}))

	tags := ifd.SortedTags()
	values := make([][]byte, len(tags))

	ifdSize := 2 + 12*len(tags) + 4
	overflowSize := 0
	for i, tag := range tags {
		values[i] = tag.encode(writer.order)
		if len(values[i]) > 4 {
			overflowSize += len(values[i]) + len(values[i])%2
		}
	}

	dataOffset := start + uint64(ifdSize) + uint64(overflowSize)
	end := dataOffset + uint64(len(stripData))
	if end > math.MaxUint32 {
		return nil, 0, fmt.Errorf("tiff: page %d: file would exceed 4GiB", writer.pages)
	}
	stripOffsets.Data[0] = uint32(dataOffset)
	for i, tag := range tags {
		if tag.TagID() == StripOffsets {
			values[i] = tag.encode(writer.order)
		}
	}

	blockSize := ifdSize + overflowSize + len(stripData)
	blockSize += blockSize % 2
	block := make([]byte, blockSize)

	writer.order.PutUint16(block, uint16(len(tags)))
	overflowPos := ifdSize
	for i, tag := range tags {
		entry := block[2+12*i:]
		writer.order.PutUint16(entry, uint16(tag.TagID()))
		writer.order.PutUint16(entry[2:], uint16(tag.Type()))
		writer.order.PutUint32(entry[4:], uint32(tag.NumItems()))

		if len(values[i]) <= 4 {
			copy(entry[8:12], values[i])
			continue
		}

		writer.order.PutUint32(entry[8:], uint32(start)+uint32(overflowPos))
		copy(block[overflowPos:], values[i])
		overflowPos += len(values[i]) + len(values[i])%2
	}
	// next directory pointer stays zero until another page follows

	copy(block[ifdSize+overflowSize:], stripData)

	return block, 2 + 12*len(tags), nil
}
