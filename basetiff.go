package tiff

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

const (
	LittleEndianMarker uint16 = 0x4949
	BigEndianMarker    uint16 = 0x4d4d

	VersionMarker uint16 = 0x2a
	BigTiffMarker uint16 = 0x2b
)

// FormatError reports corrupt or unsupported TIFF content. Page is the index
// of the image file directory the problem was found in, or -1 when the error
// concerns the file as a whole.
type FormatError struct {
	Page  int
	Field string
	Msg   string
}

func (e *FormatError) Error() string {
	var b strings.Builder
	b.WriteString("tiff: ")
	if e.Page >= 0 {
		fmt.Fprintf(&b, "page %d: ", e.Page)
	}
	if e.Field != "" {
		b.WriteString(e.Field)
		b.WriteString(": ")
	}
	b.WriteString(e.Msg)
	return b.String()
}

func formatError(page int, field string, format string, args ...interface{}) *FormatError {
	return &FormatError{Page: page, Field: field, Msg: fmt.Sprintf(format, args...)}
}

type ImageFileHeader struct {
	Identifier uint16
	Version    uint16

	Endian binary.ByteOrder
}

// File is a parsed TIFF or BigTIFF file. Only the directory structure is read
// when the file is opened; pixel data is read on request through the
// ImageFileDirectory data access methods.
type File struct {
	reader io.ReadSeeker
	closer io.Closer

	// guards the reader position, shared by every directory of the file
	mux sync.Mutex

	Header  ImageFileHeader
	IFDList []*ImageFileDirectory
}

// Open opens the TIFF file at location and parses all of its image file
// directories.
func Open(location string) (*File, error) {
	f, err := os.Open(location)
	if err != nil {
		return nil, err
	}

	tiffFile, err := NewFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	tiffFile.closer = f

	return tiffFile, nil
}

// NewFile parses the TIFF data available from reader. The reader must stay
// valid for as long as pixel data is requested from the returned File.
func NewFile(reader io.ReadSeeker) (*File, error) {
	tiffFile := &File{reader: reader}
	header := &tiffFile.Header

	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	// Both markers are palindromic, so the byte order used here does not matter
	err := binary.Read(reader, binary.LittleEndian, &header.Identifier)
	if err != nil {
		return nil, formatError(-1, "header", "unable to read byte order: %v", err)
	}

	switch header.Identifier {
	case LittleEndianMarker:
		header.Endian = binary.LittleEndian
	case BigEndianMarker:
		header.Endian = binary.BigEndian
	default:
		return nil, formatError(-1, "header", "invalid byte order marker %#04x", header.Identifier)
	}

	err = binary.Read(reader, header.Endian, &header.Version)
	if err != nil {
		return nil, formatError(-1, "header", "unable to read version: %v", err)
	}

	var offset int64
	switch header.Version {
	case VersionMarker:
		offset, err = readIFDOffset(reader, header.Endian)
	case BigTiffMarker:
		offset, err = readBigIFDOffset(reader, header.Endian)
	default:
		return nil, formatError(-1, "header", "unsupported tiff version %#x", header.Version)
	}
	if err != nil {
		return nil, err
	}

	visited := make(map[int64]bool)
	for offset != 0 {
		page := len(tiffFile.IFDList)
		if visited[offset] {
			return nil, formatError(page, "NextIFDOffset", "directory loop at offset %d", offset)
		}
		visited[offset] = true

		var ifd *ImageFileDirectory
		if header.Version == VersionMarker {
			ifd, err = readIFD(reader, header.Endian, offset, page)
		} else {
			ifd, err = readBigIFD(reader, header.Endian, offset, page)
		}
		if err != nil {
			return nil, err
		}

		ifd.tiffFile = tiffFile
		ifd.Index = page
		tiffFile.IFDList = append(tiffFile.IFDList, ifd)

		offset = ifd.NextIFDOffset
	}

	if len(tiffFile.IFDList) == 0 {
		return nil, formatError(-1, "header", "file contains no image file directories")
	}

	return tiffFile, nil
}

// Close releases the underlying file when the File was created with Open.
func (tiffFile *File) Close() error {
	if tiffFile.closer == nil {
		return nil
	}
	return tiffFile.closer.Close()
}

// IsBigTiff reports whether the file uses 64-bit offsets.
func (tiffFile *File) IsBigTiff() bool {
	return tiffFile.Header.Version == BigTiffMarker
}

// readAt reads size bytes at offset while holding the file lock.
func (tiffFile *File) readAt(offset int64, size int64) ([]byte, error) {
	tiffFile.mux.Lock()
	defer tiffFile.mux.Unlock()

	if _, err := tiffFile.reader.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(tiffFile.reader, data); err != nil {
		return nil, err
	}

	return data, nil
}

func (file *File) NumReducedImages() int {
	numRes := 1

	for i := 1; i < len(file.IFDList); i++ {
		if file.IFDList[i].IsReducedResolutionImage() {
			numRes++
		}
	}

	return numRes
}

type ImageFileDirectory struct {
	// Index is the position of the directory within the file
	Index         int
	NumTags       uint64
	Tags          map[TagID]Tag
	NextIFDOffset int64

	tiffFile   *File
	dataAccess DataAccess
}

func (ifd *ImageFileDirectory) PutTag(tag Tag) {
	if ifd.Tags == nil {
		ifd.Tags = make(map[TagID]Tag)
	}

	ifd.Tags[tag.TagID()] = tag
}

// SortedTags returns the tags of the directory in ascending TagID order, the
// order in which they are stored in a file.
func (ifd *ImageFileDirectory) SortedTags() []Tag {
	tags := make([]Tag, 0, len(ifd.Tags))
	for _, tag := range ifd.Tags {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].TagID() < tags[j].TagID() })

	return tags
}

func (ifd *ImageFileDirectory) String() string {
	var b strings.Builder
	for _, tag := range ifd.SortedTags() {
		b.WriteString(tag.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func (ifd *ImageFileDirectory) HasTag(tagID TagID) bool {
	_, ok := ifd.Tags[tagID]

	return ok
}

func (ifd *ImageFileDirectory) GetTag(tagID TagID) Tag {
	return ifd.Tags[tagID]
}

func (ifd *ImageFileDirectory) GetASCIITag(tagID TagID) (*ASCIITag, bool) {
	tag, ok := ifd.Tags[tagID].(*ASCIITag)
	return tag, ok
}

// GetASCIITagValue returns the string stored in tagID, or "" when the tag is
// absent or not of ASCII type.
func (ifd *ImageFileDirectory) GetASCIITagValue(tagID TagID) string {
	tag, ok := ifd.GetASCIITag(tagID)
	if !ok {
		return ""
	}
	return tag.Data
}

func (ifd *ImageFileDirectory) missing(tagID TagID) error {
	return formatError(ifd.Index, tagID.String(), "tag missing")
}

// GetShortTagValue returns the first value of a Short tag.
func (ifd *ImageFileDirectory) GetShortTagValue(tagID TagID) (uint16, error) {
	tag, ok := ifd.Tags[tagID]
	if !ok {
		return 0, ifd.missing(tagID)
	}

	shortTag, ok := tag.(*ShortTag)
	if !ok || len(shortTag.Data) == 0 {
		return 0, formatError(ifd.Index, tagID.String(), "expected short value, found %s", tag.Type())
	}

	return shortTag.Data[0], nil
}

// GetLongTagValue returns the first value of an integer tag, accepting the
// Short, Long and Long8 encodings writers use interchangeably.
func (ifd *ImageFileDirectory) GetLongTagValue(tagID TagID) (uint64, error) {
	values, err := ifd.GetLongTagValues(tagID)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, formatError(ifd.Index, tagID.String(), "tag holds no values")
	}

	return values[0], nil
}

// GetLongTagValues returns every value of an integer tag widened to uint64.
func (ifd *ImageFileDirectory) GetLongTagValues(tagID TagID) ([]uint64, error) {
	tag, ok := ifd.Tags[tagID]
	if !ok {
		return nil, ifd.missing(tagID)
	}

	switch t := tag.(type) {
	case *ShortTag:
		values := make([]uint64, len(t.Data))
		for i, v := range t.Data {
			values[i] = uint64(v)
		}
		return values, nil
	case *LongTag:
		values := make([]uint64, len(t.Data))
		for i, v := range t.Data {
			values[i] = uint64(v)
		}
		return values, nil
	case *Long8Tag:
		return append([]uint64(nil), t.Data...), nil
	}

	return nil, formatError(ifd.Index, tagID.String(), "expected integer value, found %s", tag.Type())
}

func (ifd *ImageFileDirectory) GetRationalTagValue(tagID TagID) (float64, error) {
	tag, ok := ifd.Tags[tagID]
	if !ok {
		return 0, ifd.missing(tagID)
	}

	rationalTag, ok := tag.(*RationalTag)
	if !ok || len(rationalTag.Data) == 0 {
		return 0, formatError(ifd.Index, tagID.String(), "expected rational value, found %s", tag.Type())
	}

	return rationalTag.Data[0].Value(), nil
}

// GetImageDimensions returns the width and length of the image in pixels.
func (ifd *ImageFileDirectory) GetImageDimensions() (uint32, uint32, error) {
	width, err := ifd.GetLongTagValue(ImageWidth)
	if err != nil {
		return 0, 0, err
	}
	length, err := ifd.GetLongTagValue(ImageLength)
	if err != nil {
		return 0, 0, err
	}

	return uint32(width), uint32(length), nil
}

// GetResolution returns the size of a pixel in x and y and the associated unit
func (ifd *ImageFileDirectory) GetResolution() (float64, float64, ResolutionUnitID, error) {
	unit, err := ifd.GetResolutionUnit()
	if err != nil {
		return 0, 0, 0, err
	}

	xRes, err := ifd.GetRationalTagValue(XResolution)
	if err != nil {
		return 0, 0, 0, err
	}
	yRes, err := ifd.GetRationalTagValue(YResolution)
	if err != nil {
		return 0, 0, 0, err
	}
	if xRes == 0 || yRes == 0 {
		return 0, 0, 0, formatError(ifd.Index, XResolution.String(), "zero resolution")
	}

	return 1.0 / xRes, 1.0 / yRes, unit, nil
}

// GetBitsPerSample returns the per-sample bit depths. Writers may store a
// single value for all samples.
func (ifd *ImageFileDirectory) GetBitsPerSample() ([]uint16, error) {
	if !ifd.HasTag(BitsPerSample) {
		// Bilevel images may omit the tag
		return []uint16{1}, nil
	}

	values, err := ifd.GetLongTagValues(BitsPerSample)
	if err != nil {
		return nil, err
	}

	bits := make([]uint16, len(values))
	for i, v := range values {
		bits[i] = uint16(v)
	}
	return bits, nil
}

func (ifd *ImageFileDirectory) GetSamplesPerPixel() (uint16, error) {
	if !ifd.HasTag(SamplesPerPixel) {
		return 1, nil
	}

	value, err := ifd.GetLongTagValue(SamplesPerPixel)
	return uint16(value), err
}

func (ifd *ImageFileDirectory) GetCompression() (CompressionID, error) {
	if !ifd.HasTag(Compression) {
		return Uncompressed, nil
	}

	value, err := ifd.GetLongTagValue(Compression)
	return CompressionID(value), err
}

func (ifd *ImageFileDirectory) GetResolutionUnit() (ResolutionUnitID, error) {
	if !ifd.HasTag(ResolutionUnit) {
		return Inch, nil
	}

	value, err := ifd.GetLongTagValue(ResolutionUnit)
	return ResolutionUnitID(value), err
}

func (ifd *ImageFileDirectory) GetPhotometricInterpretation() (PhotometricInterpretationID, error) {
	value, err := ifd.GetLongTagValue(PhotometricInterpretation)
	return PhotometricInterpretationID(value), err
}

func (ifd *ImageFileDirectory) GetPredictor() PredictorID {
	value, err := ifd.GetLongTagValue(Predictor)
	if err != nil {
		return PredictorNone
	}

	return PredictorID(value)
}

func (ifd *ImageFileDirectory) GetSampleFormat() (SampleFormatID, error) {
	if !ifd.HasTag(SampleFormat) {
		return SampleFormatUint, nil
	}

	value, err := ifd.GetLongTagValue(SampleFormat)
	return SampleFormatID(value), err
}

// IsReducedResolutionImage checks whether the reduced resolution bit is set in the NewSubfileType tag
func (ifd *ImageFileDirectory) IsReducedResolutionImage() bool {
	newSubfileType, err := ifd.GetLongTagValue(NewSubFileType)
	if err != nil {
		return false
	}

	return newSubfileType&0x01 == 1
}

func (ifd *ImageFileDirectory) IsTiled() bool {
	return ifd.HasTag(TileWidth)
}

// DataAccess returns the strip or tile accessor for the directory, creating
// it on first use so that opening a file never touches pixel layout tags.
func (ifd *ImageFileDirectory) DataAccess() (DataAccess, error) {
	if ifd.dataAccess != nil {
		return ifd.dataAccess, nil
	}

	dataAccess, err := newDataAccess(ifd)
	if err != nil {
		return nil, err
	}
	ifd.dataAccess = dataAccess

	return dataAccess, nil
}

// GetFullData returns the decompressed pixel data of the whole image, rows
// packed contiguously, in the byte order of the file.
func (ifd *ImageFileDirectory) GetFullData() ([]byte, error) {
	dataAccess, err := ifd.DataAccess()
	if err != nil {
		return nil, err
	}

	return dataAccess.GetFullData()
}
