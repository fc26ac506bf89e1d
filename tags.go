package tiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"math"
	"strings"
)

type TagID uint16

const (
	NewSubFileType            TagID = 254
	ImageWidth                TagID = 256
	ImageLength               TagID = 257
	BitsPerSample             TagID = 258
	Compression               TagID = 259
	PhotometricInterpretation TagID = 262
	ImageDescription          TagID = 270
	Make                      TagID = 271
	Model                     TagID = 272
	StripOffsets              TagID = 273
	SamplesPerPixel           TagID = 277
	RowsPerStrip              TagID = 278
	StripByteCounts           TagID = 279
	XResolution               TagID = 282
	YResolution               TagID = 283
	PlanarConfiguration       TagID = 284
	PageName                  TagID = 285
	XPosition                 TagID = 286
	YPosition                 TagID = 287
	ResolutionUnit            TagID = 296
	Software                  TagID = 305
	DateTime                  TagID = 306
	Artist                    TagID = 315
	Predictor                 TagID = 317
	TileWidth                 TagID = 322
	TileLength                TagID = 323
	TileOffsets               TagID = 324
	TileByteCounts            TagID = 325
	SampleFormat              TagID = 339
	SMinSampleValue           TagID = 340
	SMaxSampleValue           TagID = 341
	YCbCrSubSampling          TagID = 530
	ReferenceBlackWhite       TagID = 532
)

var tagNameMap = map[TagID]string{
	NewSubFileType:            "NewSubFileType",
	ImageWidth:                "ImageWidth",
	ImageLength:               "ImageLength",
	BitsPerSample:             "BitsPerSample",
	Compression:               "Compression",
	PhotometricInterpretation: "PhotometricInterpretation",
	ImageDescription:          "ImageDescription",
	Make:                      "Make",
	Model:                     "Model",
	StripOffsets:              "StripOffsets",
	SamplesPerPixel:           "SamplesPerPixel",
	RowsPerStrip:              "RowsPerStrip",
	StripByteCounts:           "StripByteCounts",
	XResolution:               "XResolution",
	YResolution:               "YResolution",
	PlanarConfiguration:       "PlanarConfiguration",
	PageName:                  "PageName",
	XPosition:                 "XPosition",
	YPosition:                 "YPosition",
	ResolutionUnit:            "ResolutionUnit",
	Software:                  "Software",
	DateTime:                  "DateTime",
	Artist:                    "Artist",
	Predictor:                 "Predictor",
	TileWidth:                 "TileWidth",
	TileLength:                "TileLength",
	TileOffsets:               "TileOffsets",
	TileByteCounts:            "TileByteCounts",
	SampleFormat:              "SampleFormat",
	SMinSampleValue:           "SMinSampleValue",
	SMaxSampleValue:           "SMaxSampleValue",
	YCbCrSubSampling:          "YCbCrSubSampling",
	ReferenceBlackWhite:       "ReferenceBlackWhite",
}

// AddTag registers the name of a private tag so that it prints nicely.
func AddTag(id TagID, name string) {
	tagNameMap[id] = name
}

func (id TagID) String() string {
	if name, ok := tagNameMap[id]; ok {
		return name
	}
	return fmt.Sprintf("Tag%d", uint16(id))
}

type DataTypeID uint16

const (
	Byte      DataTypeID = 1
	ASCII     DataTypeID = 2
	Short     DataTypeID = 3
	Long      DataTypeID = 4
	Rational  DataTypeID = 5
	SByte     DataTypeID = 6
	Undefined DataTypeID = 7
	SShort    DataTypeID = 8
	SLong     DataTypeID = 9
	SRational DataTypeID = 10
	Float     DataTypeID = 11
	Double    DataTypeID = 12
	Long8     DataTypeID = 16
	SLong8    DataTypeID = 17
	IFD8      DataTypeID = 18
)

var dataTypeNameMap = map[DataTypeID]string{
	Byte:      "Byte",
	ASCII:     "ASCII",
	Short:     "Short",
	Long:      "Long",
	Rational:  "Rational",
	SByte:     "SByte",
	Undefined: "Undefined",
	SShort:    "SShort",
	SLong:     "SLong",
	SRational: "SRational",
	Float:     "Float",
	Double:    "Double",
	Long8:     "Long8",
	SLong8:    "SLong8",
	IFD8:      "IFD8",
}

var dataTypeSizeMap = map[DataTypeID]uint64{
	Byte:      1,
	ASCII:     1,
	Short:     2,
	Long:      4,
	Rational:  8,
	SByte:     1,
	Undefined: 1,
	SShort:    2,
	SLong:     4,
	SRational: 8,
	Float:     4,
	Double:    8,
	Long8:     8,
	SLong8:    8,
	IFD8:      8,
}

func (dataType DataTypeID) String() string {
	if name, ok := dataTypeNameMap[dataType]; ok {
		return name
	}
	return fmt.Sprintf("Type%d", uint16(dataType))
}

// Size returns the number of bytes taken by a single item of the type, or 0
// for types this package does not know.
func (dataType DataTypeID) Size() uint64 {
	return dataTypeSizeMap[dataType]
}

type PhotometricInterpretationID uint16

const (
	WhiteIsZero      PhotometricInterpretationID = 0
	BlackIsZero      PhotometricInterpretationID = 1
	RGB              PhotometricInterpretationID = 2
	PaletteColour    PhotometricInterpretationID = 3
	TransparencyMask PhotometricInterpretationID = 4
	CMYK             PhotometricInterpretationID = 5
	YCbCr            PhotometricInterpretationID = 6
	CIELab           PhotometricInterpretationID = 8
	ICCLab           PhotometricInterpretationID = 9
	ITULab           PhotometricInterpretationID = 10
)

var photometricInterpretationNameMap = map[PhotometricInterpretationID]string{
	WhiteIsZero:      "WhiteIsZero",
	BlackIsZero:      "BlackIsZero",
	RGB:              "RGB",
	PaletteColour:    "PaletteColour",
	TransparencyMask: "TransparencyMask",
	CMYK:             "CMYK",
	YCbCr:            "YCbCr",
	CIELab:           "CIELab",
	ICCLab:           "ICCLab",
	ITULab:           "ITULab",
}

func (id PhotometricInterpretationID) String() string {
	if name, ok := photometricInterpretationNameMap[id]; ok {
		return name
	}
	return fmt.Sprintf("Photometric%d", uint16(id))
}

type ResolutionUnitID uint16

const (
	NoUnit     ResolutionUnitID = 1
	Inch       ResolutionUnitID = 2
	Centimeter ResolutionUnitID = 3
)

var resolutionUnitNameMap = map[ResolutionUnitID]string{
	NoUnit:     "NoUnit",
	Inch:       "Inch",
	Centimeter: "Centimeter",
}

func (id ResolutionUnitID) String() string {
	if name, ok := resolutionUnitNameMap[id]; ok {
		return name
	}
	return fmt.Sprintf("Unit%d", uint16(id))
}

type PredictorID uint16

const (
	PredictorNone          PredictorID = 1
	PredictorHorizontal    PredictorID = 2
	PredictorFloatingPoint PredictorID = 3
)

type SampleFormatID uint16

const (
	SampleFormatUint          SampleFormatID = 1
	SampleFormatInt           SampleFormatID = 2
	SampleFormatIEEEFP        SampleFormatID = 3
	SampleFormatUndefined     SampleFormatID = 4
	SampleFormatComplexInt    SampleFormatID = 5
	SampleFormatComplexIEEEFP SampleFormatID = 6
)

var sampleFormatNameMap = map[SampleFormatID]string{
	SampleFormatUint:          "Uint",
	SampleFormatInt:           "Int",
	SampleFormatIEEEFP:        "IEEEFP",
	SampleFormatUndefined:     "Undefined",
	SampleFormatComplexInt:    "ComplexInt",
	SampleFormatComplexIEEEFP: "ComplexIEEEFP",
}

func (id SampleFormatID) String() string {
	if name, ok := sampleFormatNameMap[id]; ok {
		return name
	}
	return fmt.Sprintf("SampleFormat%d", uint16(id))
}

// Tag is a single typed entry of an image file directory.
type Tag interface {
	TagID() TagID
	Type() DataTypeID
	// NumItems returns the number of items stored in the tag (length of array)
	NumItems() int
	String() string
	ValueAsString() string

	// encode returns the value bytes of the tag in the given byte order
	encode(order binary.ByteOrder) []byte
}

type baseTag struct {
	ID       TagID
	DataType DataTypeID
}

func (tag *baseTag) TagID() TagID {
	return tag.ID
}

func (tag *baseTag) Type() DataTypeID {
	return tag.DataType
}

func tagString(tag Tag) string {
	return fmt.Sprintf("%s (%d): %s", tag.TagID(), uint16(tag.TagID()), tag.ValueAsString())
}

type ByteTag struct {
	baseTag

	Data []byte
}

func NewByteTag(id TagID, data []byte) *ByteTag {
	return &ByteTag{baseTag: baseTag{ID: id, DataType: Byte}, Data: data}
}

func (tag *ByteTag) NumItems() int         { return len(tag.Data) }
func (tag *ByteTag) String() string        { return tagString(tag) }
func (tag *ByteTag) ValueAsString() string { return fmt.Sprint(tag.Data) }

func (tag *ByteTag) encode(order binary.ByteOrder) []byte {
	return tag.Data
}

type ASCIITag struct {
	baseTag

	Data string
}

func NewASCIITag(id TagID, data string) *ASCIITag {
	return &ASCIITag{baseTag: baseTag{ID: id, DataType: ASCII}, Data: data}
}

// NumItems includes the NUL terminator written after the string.
func (tag *ASCIITag) NumItems() int         { return len(tag.Data) + 1 }
func (tag *ASCIITag) String() string        { return tagString(tag) }
func (tag *ASCIITag) ValueAsString() string { return tag.Data }

func (tag *ASCIITag) encode(order binary.ByteOrder) []byte {
	data := make([]byte, 0, len(tag.Data)+1)
	data = append(data, tag.Data...)
	return append(data, 0)
}

type ShortTag struct {
	baseTag

	Data []uint16
}

func NewShortTag(id TagID, data []uint16) *ShortTag {
	return &ShortTag{baseTag: baseTag{ID: id, DataType: Short}, Data: data}
}

func (tag *ShortTag) NumItems() int         { return len(tag.Data) }
func (tag *ShortTag) String() string        { return tagString(tag) }
func (tag *ShortTag) ValueAsString() string { return fmt.Sprint(tag.Data) }

func (tag *ShortTag) encode(order binary.ByteOrder) []byte {
	data := make([]byte, 2*len(tag.Data))
	for i, v := range tag.Data {
		order.PutUint16(data[2*i:], v)
	}
	return data
}

type LongTag struct {
	baseTag

	Data []uint32
}

func NewLongTag(id TagID, data []uint32) *LongTag {
	return &LongTag{baseTag: baseTag{ID: id, DataType: Long}, Data: data}
}

func (tag *LongTag) NumItems() int         { return len(tag.Data) }
func (tag *LongTag) String() string        { return tagString(tag) }
func (tag *LongTag) ValueAsString() string { return fmt.Sprint(tag.Data) }

func (tag *LongTag) encode(order binary.ByteOrder) []byte {
	data := make([]byte, 4*len(tag.Data))
	for i, v := range tag.Data {
		order.PutUint32(data[4*i:], v)
	}
	return data
}

type Long8Tag struct {
	baseTag

	Data []uint64
}

func NewLong8Tag(id TagID, data []uint64) *Long8Tag {
	return &Long8Tag{baseTag: baseTag{ID: id, DataType: Long8}, Data: data}
}

func (tag *Long8Tag) NumItems() int         { return len(tag.Data) }
func (tag *Long8Tag) String() string        { return tagString(tag) }
func (tag *Long8Tag) ValueAsString() string { return fmt.Sprint(tag.Data) }

func (tag *Long8Tag) encode(order binary.ByteOrder) []byte {
	data := make([]byte, 8*len(tag.Data))
	for i, v := range tag.Data {
		order.PutUint64(data[8*i:], v)
	}
	return data
}

type DoubleTag struct {
	baseTag

	Data []float64
}

func NewDoubleTag(id TagID, data []float64) *DoubleTag {
	return &DoubleTag{baseTag: baseTag{ID: id, DataType: Double}, Data: data}
}

func (tag *DoubleTag) NumItems() int         { return len(tag.Data) }
func (tag *DoubleTag) String() string        { return tagString(tag) }
func (tag *DoubleTag) ValueAsString() string { return fmt.Sprint(tag.Data) }

func (tag *DoubleTag) encode(order binary.ByteOrder) []byte {
	data := make([]byte, 8*len(tag.Data))
	for i, v := range tag.Data {
		order.PutUint64(data[8*i:], math.Float64bits(v))
	}
	return data
}

// RationalNumber is stored numerator first, as in the file.
type RationalNumber struct {
	Numerator   uint32
	Denominator uint32
}

func (rational RationalNumber) Value() float64 {
	if rational.Denominator == 0 {
		return 0
	}
	return float64(rational.Numerator) / float64(rational.Denominator)
}

func (rational RationalNumber) String() string {
	return fmt.Sprintf("%d/%d", rational.Numerator, rational.Denominator)
}

// NewRationalNumber returns the closest fraction to value whose terms fit in
// 32 bits, using the continued fraction expansion of value. Negative values
// are clamped to zero.
func NewRationalNumber(value float64) *RationalNumber {
	const maxVal = math.MaxUint32

	if value <= 0 || math.IsNaN(value) {
		return &RationalNumber{Numerator: 0, Denominator: 1}
	}
	if value >= maxVal {
		return &RationalNumber{Numerator: maxVal, Denominator: 1}
	}

	// Convergents h/k of the continued fraction
	var h0, h1 float64 = 0, 1
	var k0, k1 float64 = 1, 0
	x := value

	for i := 0; i < 64; i++ {
		a := math.Floor(x)
		h2 := a*h1 + h0
		k2 := a*k1 + k0
		if h2 > maxVal || k2 > maxVal {
			break
		}
		h0, h1 = h1, h2
		k0, k1 = k1, k2

		frac := x - a
		if frac < 1e-12 || math.Abs(h1/k1-value) < 1e-15*value {
			break
		}
		x = 1 / frac
	}

	if k1 == 0 {
		return &RationalNumber{Numerator: maxVal, Denominator: 1}
	}

	return &RationalNumber{Numerator: uint32(h1), Denominator: uint32(k1)}
}

type RationalTag struct {
	baseTag

	Data []RationalNumber
}

func NewRationalTag(id TagID, data []RationalNumber) *RationalTag {
	return &RationalTag{baseTag: baseTag{ID: id, DataType: Rational}, Data: data}
}

func (tag *RationalTag) NumItems() int  { return len(tag.Data) }
func (tag *RationalTag) String() string { return tagString(tag) }

func (tag *RationalTag) ValueAsString() string {
	values := make([]string, len(tag.Data))
	for i, r := range tag.Data {
		values[i] = r.String()
	}
	return "[" + strings.Join(values, " ") + "]"
}

func (tag *RationalTag) encode(order binary.ByteOrder) []byte {
	data := make([]byte, 8*len(tag.Data))
	for i, v := range tag.Data {
		order.PutUint32(data[8*i:], v.Numerator)
		order.PutUint32(data[8*i+4:], v.Denominator)
	}
	return data
}

// tagData captures the details of a tag as stored in a tiff file. Value holds
// the raw inline field: 4 bytes for classic TIFF and 8 bytes for BigTIFF.
type tagData struct {
	TagID     uint16 /* The tag identifier  */
	DataType  uint16 /* The scalar type of the data items  */
	DataCount uint64 /* The number of items in the tag data  */
	Value     []byte
}

// maxTagBytes bounds the size of a single tag value to protect against
// corrupt counts.
const maxTagBytes = 1 << 30

// processTags decodes the raw directory entries into typed tags, reading out
// of line values from seeker when they do not fit in the entry itself.
func processTags(ifd *ImageFileDirectory, seeker io.ReadSeeker, endian binary.ByteOrder, entries []tagData, page int) error {
	for _, entry := range entries {
		dataType := DataTypeID(entry.DataType)
		tagID := TagID(entry.TagID)

		itemSize := dataType.Size()
		if itemSize == 0 {
			log.Printf("[tiff] page %d: skipping %s with unknown type %d\n", page, tagID, entry.DataType)
			continue
		}

		size := itemSize * entry.DataCount
		if entry.DataCount > maxTagBytes || size > maxTagBytes {
			return formatError(page, tagID.String(), "tag count %d too large", entry.DataCount)
		}

		var raw []byte
		if size <= uint64(len(entry.Value)) {
			raw = entry.Value[:size]
		} else {
			var offset uint64
			if len(entry.Value) == 8 {
				offset = endian.Uint64(entry.Value)
			} else {
				offset = uint64(endian.Uint32(entry.Value))
			}

			startLocation, err := seeker.Seek(0, io.SeekCurrent)
			if err != nil {
				return err
			}
			if _, err := seeker.Seek(int64(offset), io.SeekStart); err != nil {
				return formatError(page, tagID.String(), "unable to seek to value: %v", err)
			}
			raw = make([]byte, size)
			if _, err := io.ReadFull(seeker, raw); err != nil {
				return formatError(page, tagID.String(), "unable to read value: %v", err)
			}
			if _, err := seeker.Seek(startLocation, io.SeekStart); err != nil {
				return err
			}
		}

		tag, err := decodeTag(tagID, dataType, entry.DataCount, raw, endian)
		if err != nil {
			return formatError(page, tagID.String(), "%v", err)
		}
		if tag == nil {
			log.Printf("[tiff] page %d: skipping %s of unsupported type %s\n", page, tagID, dataType)
			continue
		}

		ifd.PutTag(tag)
	}

	return nil
}

func decodeTag(tagID TagID, dataType DataTypeID, count uint64, raw []byte, endian binary.ByteOrder) (Tag, error) {
	base := baseTag{ID: tagID, DataType: dataType}

	switch dataType {
	case Byte, Undefined:
		data := make([]byte, len(raw))
		copy(data, raw)
		return &ByteTag{baseTag: base, Data: data}, nil
	case ASCII:
		// Strings are NUL terminated, possibly several in a row
		return &ASCIITag{baseTag: base, Data: string(bytes.TrimRight(raw, "\x00"))}, nil
	case Short:
		data := make([]uint16, count)
		for i := range data {
			data[i] = endian.Uint16(raw[2*i:])
		}
		return &ShortTag{baseTag: base, Data: data}, nil
	case Long:
		data := make([]uint32, count)
		for i := range data {
			data[i] = endian.Uint32(raw[4*i:])
		}
		return &LongTag{baseTag: base, Data: data}, nil
	case Long8, IFD8:
		data := make([]uint64, count)
		for i := range data {
			data[i] = endian.Uint64(raw[8*i:])
		}
		return &Long8Tag{baseTag: base, Data: data}, nil
	case Rational:
		data := make([]RationalNumber, count)
		for i := range data {
			data[i].Numerator = endian.Uint32(raw[8*i:])
			data[i].Denominator = endian.Uint32(raw[8*i+4:])
		}
		return &RationalTag{baseTag: base, Data: data}, nil
	case Double:
		data := make([]float64, count)
		for i := range data {
			data[i] = math.Float64frombits(endian.Uint64(raw[8*i:]))
		}
		return &DoubleTag{baseTag: base, Data: data}, nil
	}

	return nil, nil
}
