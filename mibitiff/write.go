// Package mibitiff reads and writes MIBItiff files: big-endian multi-page TIFF
// files holding one channel per page, with the channel identity and the
// acquisition metadata stored as JSON in the ImageDescription tag of every
// page.
package mibitiff

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	tiff "github.com/AlanRace/go-mibi"
	"github.com/AlanRace/go-mibi/image"
	"github.com/AlanRace/go-mibi/mibi"
)

// DefaultSoftware is written to the Software tag unless WriteOptions names
// another program.
const DefaultSoftware = "go-mibi"

const dateTimeLayout = "2006:01:02 15:04:05"

// WriteOptions controls Write. The zero value is not the default; use
// DefaultWriteOptions.
type WriteOptions struct {
	// WriteFloat stores float32 planes as IEEE floats. When false they are
	// stored as uint16 with a scale kept in the description so that Read can
	// restore them. Whole numbers up to 65535 are stored unscaled and come
	// back exactly; other planes are scaled to fill the uint16 range.
	// Negative, NaN and infinite values are rejected.
	WriteFloat bool
	// Compression is one of tiff.Uncompressed, tiff.LZW, tiff.AdobeDeflate or
	// tiff.ZSTD. Zero means uncompressed.
	Compression tiff.CompressionID
	Software    string
}

func DefaultWriteOptions() *WriteOptions {
	return &WriteOptions{WriteFloat: true, Compression: tiff.Uncompressed, Software: DefaultSoftware}
}

func checkCompression(id tiff.CompressionID) error {
	switch id {
	case 0, tiff.Uncompressed, tiff.LZW, tiff.AdobeDeflate, tiff.ZSTD:
		return nil
	}
	return fmt.Errorf("%w: unsupported compression %s", mibi.ErrValidation, id)
}

// Write encodes img as a MIBItiff file. A nil opts uses DefaultWriteOptions.
func Write(w io.Writer, img *mibi.Image, opts *WriteOptions) error {
	if opts == nil {
		opts = DefaultWriteOptions()
	}
	if err := checkCompression(opts.Compression); err != nil {
		return err
	}
	software := opts.Software
	if software == "" {
		software = DefaultSoftware
	}

	fields, err := encodeMetadata(img.Metadata)
	if err != nil {
		return err
	}

	height, width := img.Shape()
	sharedTags := []tiff.Tag{
		tiff.NewASCIITag(tiff.Software, software),
		tiff.NewASCIITag(tiff.DateTime, dateTime(img.Metadata)),
		tiff.NewShortTag(tiff.ResolutionUnit, []uint16{uint16(tiff.Centimeter)}),
	}
	sharedTags = append(sharedTags, resolutionTags(img.Metadata, width)...)
	sharedTags = append(sharedTags, positionTags(img.Metadata)...)

	writer := tiff.NewWriter(w, binary.BigEndian)
	for i, c := range img.Channels() {
		plane := img.Plane(i)
		var scale *float64
		if plane.DType == image.Float32 && !opts.WriteFloat {
			scaled, factor, err := toScaledUint16(plane)
			if err != nil {
				return fmt.Errorf("mibitiff: channel %q: %w", c.Target, err)
			}
			plane, scale = scaled, &factor
		}

		desc, err := newDescription(c, height, width, plane.DType, scale, fields).marshal()
		if err != nil {
			return fmt.Errorf("mibitiff: channel %q: %w", c.Target, err)
		}

		page := &tiff.Page{
			Width:         uint32(width),
			Height:        uint32(height),
			BitsPerSample: uint16(8 * plane.DType.BytesPerSample()),
			SampleFormat:  tiff.SampleFormatUint,
			Compression:   opts.Compression,
			Data:          plane.Bytes(binary.BigEndian),
			Tags: append([]tiff.Tag{
				tiff.NewASCIITag(tiff.PageName, c.Target),
				tiff.NewASCIITag(tiff.ImageDescription, desc),
			}, sharedTags...),
		}
		if plane.DType == image.Float32 {
			page.SampleFormat = tiff.SampleFormatIEEEFP
		}

		if err := writer.WritePage(page); err != nil {
			return err
		}
	}

	return writer.Close()
}

// WriteFile writes img to filename.
func WriteFile(filename string, img *mibi.Image, opts *WriteOptions) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}

	if err := Write(f, img, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Create assembles an image from its parts and writes it.
func Create(w io.Writer, planes []*image.Plane, channels []mibi.Channel, md mibi.Metadata, opts *WriteOptions) (*mibi.Image, error) {
	img, err := mibi.New(planes, channels, md)
	if err != nil {
		return nil, err
	}
	if err := Write(w, img, opts); err != nil {
		return nil, err
	}
	return img, nil
}

// toScaledUint16 stores a float plane as uint16. Planes of whole numbers up
// to 65535 keep scale 1 and round trip exactly; any other plane is scaled so
// its maximum maps to 65535, and each value is restored to within
// max/(2*65535). Negative and non-finite values cannot be represented.
func toScaledUint16(plane *image.Plane) (*image.Plane, float64, error) {
	max, whole := 0.0, true
	for _, v := range plane.Values() {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, 0, fmt.Errorf("%w: value %v cannot be stored as scaled uint16", mibi.ErrValidation, v)
		}
		if v != math.Trunc(v) {
			whole = false
		}
		if v > max {
			max = v
		}
	}

	scale := 1.0
	if (!whole || max > math.MaxUint16) && max > 0 {
		scale = math.MaxUint16 / max
	}
	return plane.Scale(scale).Convert(image.Uint16), scale, nil
}

func dateTime(md mibi.Metadata) string {
	if md.Date != nil {
		return md.Date.Format(dateTimeLayout)
	}
	return time.Now().Format(dateTimeLayout)
}

// resolutionTags gives pixels per centimetre from the field of view size in
// microns.
func resolutionTags(md mibi.Metadata, width int) []tiff.Tag {
	resolution := tiff.RationalNumber{Numerator: 1, Denominator: 1}
	if md.Size > 0 {
		resolution = *tiff.NewRationalNumber(float64(width) / (md.Size * 1e-4))
	}
	return []tiff.Tag{
		tiff.NewRationalTag(tiff.XResolution, []tiff.RationalNumber{resolution}),
		tiff.NewRationalTag(tiff.YResolution, []tiff.RationalNumber{resolution}),
	}
}

// positionTags stores the stage position in centimetres. TIFF positions are
// unsigned, so negative coordinates are only kept in the description.
func positionTags(md mibi.Metadata) []tiff.Tag {
	c := md.Coordinates
	if c == nil || c.X < 0 || c.Y < 0 {
		return nil
	}
	return []tiff.Tag{
		tiff.NewRationalTag(tiff.XPosition, []tiff.RationalNumber{*tiff.NewRationalNumber(c.X * 1e-4)}),
		tiff.NewRationalTag(tiff.YPosition, []tiff.RationalNumber{*tiff.NewRationalNumber(c.Y * 1e-4)}),
	}
}
