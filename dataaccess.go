package tiff

import (
	"bytes"
)

type DataAccess interface {
	// GetCompressedData returns the bytes of a section as stored in the file
	GetCompressedData(section *Section) ([]byte, error)
	// GetData returns the decompressed samples of a section with any predictor
	// undone. Tiles are always returned at full tile size.
	GetData(section *Section) ([]byte, error)
	// GetFullData assembles every section into a single row major buffer
	GetFullData() ([]byte, error)

	GetPredictor() PredictorID
	GetSamplesPerPixel() uint16
	PixelSizeInBytes() uint32

	GetSection(index uint32) *Section
	GetSectionAt(x, y int64) *Section
	GetSectionDimensions() (uint32, uint32)
	GetSectionGrid() (uint32, uint32)
}

// Section describes a single part of an image. When the tiff file is split into strips this is one strip. When the data is split into tiles this is one tile.
// Width and Height give the part of the section that lies inside the image.
type Section struct {
	dataAccess DataAccess

	Width  uint32
	Height uint32

	X uint32
	Y uint32

	Index uint32
}

func (section *Section) GetData() ([]byte, error) {
	return section.dataAccess.GetData(section)
}

type baseDataAccess struct {
	tiffFile *File
	ifd      *ImageFileDirectory

	imageWidth  uint32
	imageLength uint32

	compressionID CompressionID
	decompressor  Decompressor

	predictor PredictorID

	bitsPerSample   []uint16
	samplesPerPixel uint16

	offsets    []uint64
	byteCounts []uint64
}

func newDataAccess(ifd *ImageFileDirectory) (DataAccess, error) {
	if ifd.IsTiled() {
		dataAccess := &TileDataAccess{}
		if err := dataAccess.initialise(ifd); err != nil {
			return nil, err
		}
		return dataAccess, nil
	}

	dataAccess := &StripDataAccess{}
	if err := dataAccess.initialise(ifd); err != nil {
		return nil, err
	}
	return dataAccess, nil
}

func (dataAccess *baseDataAccess) initialiseDataAccess(ifd *ImageFileDirectory, offsetTag, byteCountTag TagID) error {
	var err error

	if ifd.tiffFile == nil {
		return formatError(ifd.Index, "IFD", "directory is not attached to a file")
	}

	dataAccess.tiffFile = ifd.tiffFile
	dataAccess.ifd = ifd
	dataAccess.imageWidth, dataAccess.imageLength, err = ifd.GetImageDimensions()
	if err != nil {
		return err
	}
	dataAccess.compressionID, err = ifd.GetCompression()
	if err != nil {
		return err
	}
	dataAccess.predictor = ifd.GetPredictor()

	dataAccess.samplesPerPixel, err = ifd.GetSamplesPerPixel()
	if err != nil {
		return err
	}
	dataAccess.bitsPerSample, err = ifd.GetBitsPerSample()
	if err != nil {
		return err
	}
	if len(dataAccess.bitsPerSample) == 1 && dataAccess.samplesPerPixel > 1 {
		bits := make([]uint16, dataAccess.samplesPerPixel)
		for i := range bits {
			bits[i] = dataAccess.bitsPerSample[0]
		}
		dataAccess.bitsPerSample = bits
	}
	if len(dataAccess.bitsPerSample) < int(dataAccess.samplesPerPixel) {
		return formatError(ifd.Index, BitsPerSample.String(), "%d values for %d samples", len(dataAccess.bitsPerSample), dataAccess.samplesPerPixel)
	}
	for _, bits := range dataAccess.bitsPerSample {
		if bits == 0 || bits%8 != 0 {
			return formatError(ifd.Index, BitsPerSample.String(), "unsupported bit depth %d", bits)
		}
	}

	dataAccess.offsets, err = ifd.GetLongTagValues(offsetTag)
	if err != nil {
		return err
	}
	dataAccess.byteCounts, err = ifd.GetLongTagValues(byteCountTag)
	if err != nil {
		return err
	}
	if len(dataAccess.offsets) != len(dataAccess.byteCounts) {
		return formatError(ifd.Index, byteCountTag.String(), "%d byte counts for %d offsets", len(dataAccess.byteCounts), len(dataAccess.offsets))
	}

	dataAccess.decompressor, err = GetDecompressor(dataAccess.compressionID)
	if err != nil {
		return formatError(ifd.Index, Compression.String(), "%v", err)
	}

	return nil
}

func (dataAccess *baseDataAccess) GetPredictor() PredictorID {
	return dataAccess.predictor
}

func (dataAccess *baseDataAccess) GetSamplesPerPixel() uint16 {
	return dataAccess.samplesPerPixel
}

func (dataAccess *baseDataAccess) GetImageDimensions() (uint32, uint32) {
	return dataAccess.imageWidth, dataAccess.imageLength
}

func (dataAccess *baseDataAccess) PixelSizeInBytes() uint32 {
	var size uint32
	var sampleIndex uint16

	for sampleIndex = 0; sampleIndex < dataAccess.samplesPerPixel; sampleIndex++ {
		size += uint32(dataAccess.bitsPerSample[sampleIndex] / 8)
	}

	return size
}

// GetCompressedData returns the data as it is found in the file, without decompression
func (dataAccess *baseDataAccess) GetCompressedData(section *Section) ([]byte, error) {
	if int(section.Index) >= len(dataAccess.offsets) {
		return nil, formatError(dataAccess.ifd.Index, "section", "index %d out of range", section.Index)
	}

	offset := dataAccess.offsets[section.Index]
	dataSize := dataAccess.byteCounts[section.Index]
	if dataSize > maxTagBytes {
		return nil, formatError(dataAccess.ifd.Index, "section", "byte count %d too large", dataSize)
	}

	data, err := dataAccess.tiffFile.readAt(int64(offset), int64(dataSize))
	if err != nil {
		return nil, formatError(dataAccess.ifd.Index, "section", "unable to read %d bytes at %d: %v", dataSize, offset, err)
	}

	return data, nil
}

// decode decompresses a section whose stored rows are rowWidth pixels wide
// and undoes the predictor.
func (dataAccess *baseDataAccess) decode(section *Section, rowWidth, rows uint32) ([]byte, error) {
	compressed, err := dataAccess.GetCompressedData(section)
	if err != nil {
		return nil, err
	}

	data, err := dataAccess.decompressor.Decompress(bytes.NewReader(compressed))
	if err != nil {
		return nil, formatError(dataAccess.ifd.Index, "section", "%s decompression failed: %v", dataAccess.compressionID, err)
	}

	expected := int(rowWidth) * int(rows) * int(dataAccess.PixelSizeInBytes())
	if len(data) < expected {
		return nil, formatError(dataAccess.ifd.Index, "section", "section %d holds %d bytes, expected %d", section.Index, len(data), expected)
	}
	data = data[:expected]

	switch dataAccess.predictor {
	case PredictorNone:
	case PredictorHorizontal:
		if err := dataAccess.undoHorizontalPredictor(data, rowWidth, rows); err != nil {
			return nil, err
		}
	default:
		return nil, formatError(dataAccess.ifd.Index, Predictor.String(), "unsupported predictor %d", dataAccess.predictor)
	}

	return data, nil
}

func (dataAccess *baseDataAccess) undoHorizontalPredictor(data []byte, rowWidth, rows uint32) error {
	bits := dataAccess.bitsPerSample[0]
	for _, b := range dataAccess.bitsPerSample[:dataAccess.samplesPerPixel] {
		if b != bits {
			return formatError(dataAccess.ifd.Index, Predictor.String(), "mixed bit depths are not supported")
		}
	}

	endian := dataAccess.tiffFile.Header.Endian
	samples := int(dataAccess.samplesPerPixel)
	rowSamples := int(rowWidth) * samples

	for y := 0; y < int(rows); y++ {
		switch bits {
		case 8:
			row := data[y*rowSamples : (y+1)*rowSamples]
			for i := samples; i < rowSamples; i++ {
				row[i] += row[i-samples]
			}
		case 16:
			row := data[y*rowSamples*2 : (y+1)*rowSamples*2]
			for i := samples; i < rowSamples; i++ {
				v := endian.Uint16(row[2*i:]) + endian.Uint16(row[2*(i-samples):])
				endian.PutUint16(row[2*i:], v)
			}
		case 32:
			row := data[y*rowSamples*4 : (y+1)*rowSamples*4]
			for i := samples; i < rowSamples; i++ {
				v := endian.Uint32(row[4*i:]) + endian.Uint32(row[4*(i-samples):])
				endian.PutUint32(row[4*i:], v)
			}
		default:
			return formatError(dataAccess.ifd.Index, Predictor.String(), "unsupported bit depth %d", bits)
		}
	}

	return nil
}

type StripDataAccess struct {
	baseDataAccess

	rowsPerStrip  uint32
	stripsInImage uint32
}

func (dataAccess *StripDataAccess) initialise(ifd *ImageFileDirectory) error {
	err := dataAccess.initialiseDataAccess(ifd, StripOffsets, StripByteCounts)
	if err != nil {
		return err
	}

	dataAccess.rowsPerStrip = dataAccess.imageLength
	if ifd.HasTag(RowsPerStrip) {
		rows, err := ifd.GetLongTagValue(RowsPerStrip)
		if err != nil {
			return err
		}
		if rows > 0 && rows < uint64(dataAccess.imageLength) {
			dataAccess.rowsPerStrip = uint32(rows)
		}
	}

	if dataAccess.rowsPerStrip == 0 {
		dataAccess.stripsInImage = 0
	} else {
		dataAccess.stripsInImage = (dataAccess.imageLength + dataAccess.rowsPerStrip - 1) / dataAccess.rowsPerStrip
	}
	if len(dataAccess.offsets) < int(dataAccess.stripsInImage) {
		return formatError(ifd.Index, StripOffsets.String(), "%d strips for %d expected", len(dataAccess.offsets), dataAccess.stripsInImage)
	}

	return nil
}

func (dataAccess *StripDataAccess) GetSectionGrid() (uint32, uint32) {
	return 1, dataAccess.stripsInImage
}

func (dataAccess *StripDataAccess) GetSectionDimensions() (uint32, uint32) {
	return dataAccess.GetStripDimensions()
}

func (dataAccess *StripDataAccess) GetStripDimensions() (uint32, uint32) {
	return dataAccess.imageWidth, dataAccess.rowsPerStrip
}

func (dataAccess *StripDataAccess) GetSectionAt(x int64, y int64) *Section {
	if y < 0 || dataAccess.rowsPerStrip == 0 {
		return nil
	}
	return dataAccess.GetSection(uint32(y / int64(dataAccess.rowsPerStrip)))
}

func (dataAccess *StripDataAccess) GetSection(index uint32) *Section {
	if index >= dataAccess.stripsInImage {
		return nil
	}

	var section Section
	section.dataAccess = dataAccess
	section.X = 0
	section.Y = index
	section.Index = index

	section.Width = dataAccess.imageWidth
	section.Height = dataAccess.rowsPerStrip

	if section.Y == dataAccess.stripsInImage-1 {
		if rem := dataAccess.imageLength % dataAccess.rowsPerStrip; rem != 0 {
			section.Height = rem
		}
	}

	return &section
}

func (dataAccess *StripDataAccess) GetData(section *Section) ([]byte, error) {
	return dataAccess.decode(section, dataAccess.imageWidth, section.Height)
}

func (dataAccess *StripDataAccess) GetFullData() ([]byte, error) {
	rowBytes := int(dataAccess.imageWidth) * int(dataAccess.PixelSizeInBytes())
	fullData := make([]byte, rowBytes*int(dataAccess.imageLength))

	var stripIndex uint32
	for stripIndex = 0; stripIndex < dataAccess.stripsInImage; stripIndex++ {
		section := dataAccess.GetSection(stripIndex)
		stripData, err := dataAccess.GetData(section)
		if err != nil {
			return nil, err
		}

		copy(fullData[int(stripIndex)*int(dataAccess.rowsPerStrip)*rowBytes:], stripData)
	}

	return fullData, nil
}

type TileDataAccess struct {
	baseDataAccess

	tileWidth  uint32
	tileLength uint32

	tilesAcross uint32
	tilesDown   uint32
}

func (dataAccess *TileDataAccess) initialise(ifd *ImageFileDirectory) error {
	err := dataAccess.initialiseDataAccess(ifd, TileOffsets, TileByteCounts)
	if err != nil {
		return err
	}

	tileWidth, err := ifd.GetLongTagValue(TileWidth)
	if err != nil {
		return err
	}
	tileLength, err := ifd.GetLongTagValue(TileLength)
	if err != nil {
		return err
	}
	if tileWidth == 0 || tileLength == 0 {
		return formatError(ifd.Index, TileWidth.String(), "zero tile size")
	}

	dataAccess.tileWidth = uint32(tileWidth)
	dataAccess.tileLength = uint32(tileLength)
	dataAccess.tilesAcross = (dataAccess.imageWidth + dataAccess.tileWidth - 1) / dataAccess.tileWidth
	dataAccess.tilesDown = (dataAccess.imageLength + dataAccess.tileLength - 1) / dataAccess.tileLength

	if len(dataAccess.offsets) < int(dataAccess.tilesAcross*dataAccess.tilesDown) {
		return formatError(ifd.Index, TileOffsets.String(), "%d tiles for %d expected", len(dataAccess.offsets), dataAccess.tilesAcross*dataAccess.tilesDown)
	}

	return nil
}

func (dataAccess *TileDataAccess) GetTileDimensions() (uint32, uint32) {
	return dataAccess.tileWidth, dataAccess.tileLength
}

func (dataAccess *TileDataAccess) GetSectionGrid() (uint32, uint32) {
	return dataAccess.tilesAcross, dataAccess.tilesDown
}

func (dataAccess *TileDataAccess) GetSectionDimensions() (uint32, uint32) {
	return dataAccess.GetTileDimensions()
}

// GetSectionAt returns the section at the specified pixel coordinate
func (dataAccess *TileDataAccess) GetSectionAt(x int64, y int64) *Section {
	if x < 0 || y < 0 {
		return nil
	}
	index := (y/int64(dataAccess.tileLength))*int64(dataAccess.tilesAcross) + (x / int64(dataAccess.tileWidth))

	return dataAccess.GetSection(uint32(index))
}

func (dataAccess *TileDataAccess) GetSection(index uint32) *Section {
	if index >= dataAccess.tilesAcross*dataAccess.tilesDown {
		return nil
	}

	var section Section
	section.dataAccess = dataAccess
	section.X = index % dataAccess.tilesAcross
	section.Y = index / dataAccess.tilesAcross

	section.Index = index

	section.Width = dataAccess.tileWidth
	if section.X == dataAccess.tilesAcross-1 {
		if rem := dataAccess.imageWidth % dataAccess.tileWidth; rem != 0 {
			section.Width = rem
		}
	}

	section.Height = dataAccess.tileLength
	if section.Y == dataAccess.tilesDown-1 {
		if rem := dataAccess.imageLength % dataAccess.tileLength; rem != 0 {
			section.Height = rem
		}
	}

	return &section
}

func (dataAccess *TileDataAccess) GetData(section *Section) ([]byte, error) {
	return dataAccess.decode(section, dataAccess.tileWidth, dataAccess.tileLength)
}

func (dataAccess *TileDataAccess) GetFullData() ([]byte, error) {
	pixelSize := int(dataAccess.PixelSizeInBytes())
	rowBytes := int(dataAccess.imageWidth) * pixelSize
	tileRowBytes := int(dataAccess.tileWidth) * pixelSize
	fullData := make([]byte, rowBytes*int(dataAccess.imageLength))

	var tileIndex uint32
	for tileIndex = 0; tileIndex < dataAccess.tilesAcross*dataAccess.tilesDown; tileIndex++ {
		section := dataAccess.GetSection(tileIndex)
		tileData, err := dataAccess.GetData(section)
		if err != nil {
			return nil, err
		}

		validBytes := int(section.Width) * pixelSize
		for row := 0; row < int(section.Height); row++ {
			y := int(section.Y)*int(dataAccess.tileLength) + row
			dst := y*rowBytes + int(section.X)*tileRowBytes
			copy(fullData[dst:dst+validBytes], tileData[row*tileRowBytes:])
		}
	}

	return fullData, nil
}
