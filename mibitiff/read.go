package mibitiff

import (
	"fmt"
	"io"
	"os"

	tiff "github.com/AlanRace/go-mibi"
	"github.com/AlanRace/go-mibi/image"
	"github.com/AlanRace/go-mibi/mibi"
)

func formatError(page int, field string, format string, args ...interface{}) error {
	return &tiff.FormatError{Page: page, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Summary describes a MIBItiff file without its pixel data.
type Summary struct {
	Metadata mibi.Metadata
	Channels []mibi.Channel
	Height   int
	Width    int
	// DType is the dtype Read returns, float32 for scaled pages.
	DType       image.DType
	Compression tiff.CompressionID
}

type pageInfo struct {
	desc   *description
	width  int
	height int
	// stored is the dtype of the page data in the file
	stored image.DType
}

func storedDType(ifd *tiff.ImageFileDirectory) (image.DType, error) {
	bits, err := ifd.GetBitsPerSample()
	if err != nil {
		return 0, err
	}
	format, err := ifd.GetSampleFormat()
	if err != nil {
		return 0, err
	}

	switch {
	case format == tiff.SampleFormatUint && bits[0] == 8:
		return image.Uint8, nil
	case format == tiff.SampleFormatUint && bits[0] == 16:
		return image.Uint16, nil
	case format == tiff.SampleFormatIEEEFP && bits[0] == 32:
		return image.Float32, nil
	}
	return 0, formatError(ifd.Index, tiff.SampleFormat.String(), "unsupported %s samples of %d bits", format, bits[0])
}

func inspectPage(ifd *tiff.ImageFileDirectory) (*pageInfo, error) {
	page := ifd.Index

	samples, err := ifd.GetSamplesPerPixel()
	if err != nil {
		return nil, err
	}
	if samples != 1 {
		return nil, formatError(page, tiff.SamplesPerPixel.String(), "expected 1 sample per pixel, found %d", samples)
	}

	compression, err := ifd.GetCompression()
	if err != nil {
		return nil, err
	}
	if _, err := tiff.GetDecompressor(compression); err != nil {
		return nil, formatError(page, tiff.Compression.String(), "%v", err)
	}

	width, height, err := ifd.GetImageDimensions()
	if err != nil {
		return nil, err
	}
	dtype, err := storedDType(ifd)
	if err != nil {
		return nil, err
	}

	desc, err := parseDescription(page, ifd.GetASCIITagValue(tiff.ImageDescription))
	if err != nil {
		return nil, err
	}
	if desc.Shape != [2]int{int(height), int(width)} {
		return nil, formatError(page, "shape", "description gives %v, page is %dx%d", desc.Shape, height, width)
	}
	if desc.DType != dtype.String() {
		return nil, formatError(page, "dtype", "description gives %s, page holds %s", desc.DType, dtype)
	}
	if desc.Scale != nil && dtype != image.Uint16 {
		return nil, formatError(page, "channel.scale", "scaled page must hold uint16, found %s", dtype)
	}

	return &pageInfo{desc: desc, width: int(width), height: int(height), stored: dtype}, nil
}

// inspect checks every page and returns their details together with the
// image metadata. Pixel data is not read.
func inspect(file *tiff.File) ([]*pageInfo, mibi.Metadata, error) {
	var md mibi.Metadata
	pages := make([]*pageInfo, len(file.IFDList))

	for i, ifd := range file.IFDList {
		info, err := inspectPage(ifd)
		if err != nil {
			return nil, md, err
		}

		pageMetadata, err := info.desc.metadataFields.decode(i)
		if err != nil {
			return nil, md, err
		}

		if i == 0 {
			md = pageMetadata
		} else {
			first := pages[0]
			if info.width != first.width || info.height != first.height {
				return nil, md, formatError(i, "shape", "page is %dx%d, page 0 is %dx%d", info.height, info.width, first.height, first.width)
			}
			if info.dtype() != first.dtype() {
				return nil, md, formatError(i, "dtype", "page reads as %s, page 0 as %s", info.dtype(), first.dtype())
			}
			if !pageMetadata.Equal(md) {
				return nil, md, formatError(i, "mibi", "metadata differs from page 0")
			}
		}
		pages[i] = info
	}

	return pages, md, nil
}

func (info *pageInfo) dtype() image.DType {
	if info.desc.Scale != nil {
		return image.Float32
	}
	return info.stored
}

func (info *pageInfo) channel() mibi.Channel {
	return mibi.Channel{Target: info.desc.Target, Mass: info.desc.Mass}
}

// Info reads the channel list and metadata of a MIBItiff file.
func Info(r io.ReadSeeker) (*Summary, error) {
	file, err := tiff.NewFile(r)
	if err != nil {
		return nil, err
	}

	pages, md, err := inspect(file)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Metadata: md,
		Height:   pages[0].height,
		Width:    pages[0].width,
		DType:    pages[0].dtype(),
	}
	summary.Compression, _ = file.IFDList[0].GetCompression()
	for _, info := range pages {
		summary.Channels = append(summary.Channels, info.channel())
	}

	return summary, nil
}

// Read decodes a MIBItiff file. Pages written with a scale are restored to
// float32.
func Read(r io.ReadSeeker) (*mibi.Image, error) {
	file, err := tiff.NewFile(r)
	if err != nil {
		return nil, err
	}

	pages, md, err := inspect(file)
	if err != nil {
		return nil, err
	}

	planes := make([]*image.Plane, len(pages))
	channels := make([]mibi.Channel, len(pages))
	for i, info := range pages {
		data, err := file.IFDList[i].GetFullData()
		if err != nil {
			return nil, err
		}

		plane, err := image.PlaneFromBytes(info.stored, info.width, info.height, data, file.Header.Endian)
		if err != nil {
			return nil, formatError(i, tiff.StripByteCounts.String(), "%v", err)
		}
		if info.desc.Scale != nil {
			plane = unscale(plane, *info.desc.Scale)
		}

		planes[i] = plane
		channels[i] = info.channel()
	}

	img, err := mibi.New(planes, channels, md)
	if err != nil {
		return nil, fmt.Errorf("mibitiff: %w", err)
	}
	return img, nil
}

func unscale(plane *image.Plane, scale float64) *image.Plane {
	restored := image.NewPlane(image.Float32, plane.Width(), plane.Height())
	for y := 0; y < plane.Height(); y++ {
		for x := 0; x < plane.Width(); x++ {
			restored.SetValue(x, y, plane.Value(x, y)/scale)
		}
	}
	return restored
}

// ReadFile reads the MIBItiff file at filename.
func ReadFile(filename string) (*mibi.Image, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Read(f)
}

// InfoFile summarises the MIBItiff file at filename.
func InfoFile(filename string) (*Summary, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Info(f)
}

// ReadPlane decodes one page of any single-sample TIFF, such as a label image
// written by a segmentation tool. The ImageDescription is not consulted.
func ReadPlane(r io.ReadSeeker, page int) (*image.Plane, error) {
	file, err := tiff.NewFile(r)
	if err != nil {
		return nil, err
	}
	if page < 0 || page >= len(file.IFDList) {
		return nil, fmt.Errorf("%w: page %d of %d", mibi.ErrOutOfBounds, page, len(file.IFDList))
	}

	ifd := file.IFDList[page]
	samples, err := ifd.GetSamplesPerPixel()
	if err != nil {
		return nil, err
	}
	if samples != 1 {
		return nil, formatError(page, tiff.SamplesPerPixel.String(), "expected 1 sample per pixel, found %d", samples)
	}
	width, height, err := ifd.GetImageDimensions()
	if err != nil {
		return nil, err
	}
	dtype, err := storedDType(ifd)
	if err != nil {
		return nil, err
	}

	data, err := ifd.GetFullData()
	if err != nil {
		return nil, err
	}
	plane, err := image.PlaneFromBytes(dtype, int(width), int(height), data, file.Header.Endian)
	if err != nil {
		return nil, formatError(page, tiff.StripByteCounts.String(), "%v", err)
	}
	return plane, nil
}

// ReadPlaneFile reads one page of the TIFF file at filename.
func ReadPlaneFile(filename string, page int) (*image.Plane, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadPlane(f, page)
}
