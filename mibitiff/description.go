package mibitiff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/AlanRace/go-mibi/image"
	"github.com/AlanRace/go-mibi/mibi"
	"github.com/AlanRace/go-mibi/util"
)

// ImageType is the value of the image.type key of every page.
const ImageType = "SIMS"

const dateLayout = time.RFC3339Nano

// description is the JSON document stored in the ImageDescription tag of each
// page. Field order is the key order of the encoded document.
type description struct {
	ImageType string   `json:"image.type"`
	Target    string   `json:"channel.target"`
	Mass      *float64 `json:"channel.mass"`
	Shape     [2]int   `json:"shape"`
	DType     string   `json:"dtype"`
	Scale     *float64 `json:"channel.scale,omitempty"`

	metadataFields
}

// metadataFields holds the image level metadata, repeated on every page.
type metadataFields struct {
	Run            string       `json:"mibi.run,omitempty"`
	Date           string       `json:"mibi.date,omitempty"`
	Coordinates    *[3]float64  `json:"mibi.coordinates,omitempty"`
	Size           float64      `json:"mibi.size,omitempty"`
	Frame          int          `json:"mibi.frame,omitempty"`
	TimeResolution float64      `json:"mibi.time_resolution,omitempty"`
	Dwell          float64      `json:"mibi.dwell,omitempty"`
	Scans          int          `json:"mibi.scans,omitempty"`
	Aperture       string       `json:"mibi.aperture,omitempty"`
	Instrument     string       `json:"mibi.instrument,omitempty"`
	Slide          string       `json:"mibi.slide,omitempty"`
	Tissue         string       `json:"mibi.tissue,omitempty"`
	Panel          string       `json:"mibi.panel,omitempty"`
	Version        string       `json:"mibi.version,omitempty"`
	MassOffset     float64      `json:"mibi.mass_offset,omitempty"`
	MassGain       float64      `json:"mibi.mass_gain,omitempty"`
	Miscalibrated  bool         `json:"mibi.miscalibrated,omitempty"`
	CheckReg       bool         `json:"mibi.check_reg,omitempty"`
	Filename       string       `json:"mibi.filename,omitempty"`
	Description    string       `json:"mibi.description,omitempty"`
	FovID          string       `json:"mibi.fov_id,omitempty"`
	FovName        string       `json:"mibi.fov_name,omitempty"`
	Folder         string       `json:"mibi.folder,omitempty"`
	User           string       `json:"mibi.user,omitempty"`
	Extra          []extraEntry `json:"mibi.extra,omitempty"`
}

type extraEntry struct {
	Key   string          `json:"key"`
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
}

func encodeMetadata(md mibi.Metadata) (metadataFields, error) {
	fields := metadataFields{
		Run:            md.Run,
		Size:           md.Size,
		Frame:          md.Frame,
		TimeResolution: md.TimeResolution,
		Dwell:          md.Dwell,
		Scans:          md.Scans,
		Aperture:       md.Aperture,
		Instrument:     md.Instrument,
		Slide:          md.Slide,
		Tissue:         md.Tissue,
		Panel:          md.Panel,
		Version:        md.Version,
		MassOffset:     md.MassOffset,
		MassGain:       md.MassGain,
		Miscalibrated:  md.Miscalibrated,
		CheckReg:       md.CheckReg,
		Filename:       md.Filename,
		Description:    md.Description,
		FovID:          md.FovID,
		FovName:        md.FovName,
		Folder:         md.Folder,
		User:           md.User,
	}
	if md.Date != nil {
		fields.Date = md.Date.Format(dateLayout)
	}
	if md.Coordinates != nil {
		fields.Coordinates = &[3]float64{md.Coordinates.X, md.Coordinates.Y, md.Coordinates.Z}
	}

	for _, key := range md.Extra.Keys() {
		v, _ := md.Extra.Get(key)
		raw, err := encodeValue(v)
		if err != nil {
			return fields, fmt.Errorf("extra %q: %w", key, err)
		}
		fields.Extra = append(fields.Extra, extraEntry{Key: key, Kind: v.Kind().String(), Value: raw})
	}

	return fields, nil
}

// encodeValue writes non-finite floats as strings, which JSON numbers cannot
// hold.
func encodeValue(v mibi.Value) (json.RawMessage, error) {
	switch v.Kind() {
	case mibi.KindFloat:
		f, _ := v.AsFloat()
		switch {
		case math.IsNaN(f):
			return json.Marshal("NaN")
		case math.IsInf(f, 1):
			return json.Marshal("+Inf")
		case math.IsInf(f, -1):
			return json.Marshal("-Inf")
		}
		return json.RawMessage(strconv.FormatFloat(f, 'g', -1, 64)), nil
	case mibi.KindInt:
		i, _ := v.AsInt()
		return json.RawMessage(strconv.FormatInt(i, 10)), nil
	case mibi.KindBytes:
		data, _ := v.AsBytes()
		return json.Marshal(util.EncodeBytes(data))
	case mibi.KindString, mibi.KindBool:
		return json.Marshal(v.Interface())
	}
	return nil, fmt.Errorf("%w: invalid value kind %s", mibi.ErrValidation, v.Kind())
}

func decodeValue(kind mibi.Kind, raw json.RawMessage) (mibi.Value, error) {
	switch kind {
	case mibi.KindString:
		var s string
		err := json.Unmarshal(raw, &s)
		return mibi.StringValue(s), err
	case mibi.KindBool:
		var b bool
		err := json.Unmarshal(raw, &b)
		return mibi.BoolValue(b), err
	case mibi.KindInt:
		i, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 64)
		return mibi.IntValue(i), err
	case mibi.KindFloat:
		text := string(bytes.TrimSpace(raw))
		var s string
		if json.Unmarshal(raw, &s) == nil {
			text = s
		}
		f, err := strconv.ParseFloat(text, 64)
		return mibi.FloatValue(f), err
	case mibi.KindBytes:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return mibi.Value{}, err
		}
		data, err := util.DecodeBytes(s)
		return mibi.BytesValue(data), err
	}
	return mibi.Value{}, fmt.Errorf("unknown kind %s", kind)
}

func (fields *metadataFields) decode(page int) (mibi.Metadata, error) {
	md := mibi.Metadata{
		Run:            fields.Run,
		Size:           fields.Size,
		Frame:          fields.Frame,
		TimeResolution: fields.TimeResolution,
		Dwell:          fields.Dwell,
		Scans:          fields.Scans,
		Aperture:       fields.Aperture,
		Instrument:     fields.Instrument,
		Slide:          fields.Slide,
		Tissue:         fields.Tissue,
		Panel:          fields.Panel,
		Version:        fields.Version,
		MassOffset:     fields.MassOffset,
		MassGain:       fields.MassGain,
		Miscalibrated:  fields.Miscalibrated,
		CheckReg:       fields.CheckReg,
		Filename:       fields.Filename,
		Description:    fields.Description,
		FovID:          fields.FovID,
		FovName:        fields.FovName,
		Folder:         fields.Folder,
		User:           fields.User,
	}

	if fields.Date != "" {
		date, err := time.Parse(dateLayout, fields.Date)
		if err != nil {
			return md, formatError(page, "mibi.date", "%v", err)
		}
		md.Date = &date
	}
	if fields.Coordinates != nil {
		md.Coordinates = &mibi.Coordinates{X: fields.Coordinates[0], Y: fields.Coordinates[1], Z: fields.Coordinates[2]}
	}

	for _, entry := range fields.Extra {
		kind, err := mibi.ParseKind(entry.Kind)
		if err != nil {
			return md, formatError(page, "mibi.extra", "key %q: %v", entry.Key, err)
		}
		v, err := decodeValue(kind, entry.Value)
		if err != nil {
			return md, formatError(page, "mibi.extra", "key %q: bad %s value: %v", entry.Key, kind, err)
		}
		if _, ok := md.Extra.Get(entry.Key); ok {
			return md, formatError(page, "mibi.extra", "key %q repeated", entry.Key)
		}
		if err := md.Extra.Set(entry.Key, v); err != nil {
			return md, formatError(page, "mibi.extra", "%v", err)
		}
	}

	return md, nil
}

func newDescription(c mibi.Channel, height, width int, dtype image.DType, scale *float64, fields metadataFields) *description {
	return &description{
		ImageType:      ImageType,
		Target:         c.Target,
		Mass:           c.Mass,
		Shape:          [2]int{height, width},
		DType:          dtype.String(),
		Scale:          scale,
		metadataFields: fields,
	}
}

func (d *description) marshal() (string, error) {
	data, err := json.Marshal(d)
	return string(data), err
}

func parseDescription(page int, text string) (*description, error) {
	if text == "" {
		return nil, formatError(page, "ImageDescription", "missing")
	}

	var d description
	decoder := json.NewDecoder(bytes.NewReader([]byte(text)))
	if err := decoder.Decode(&d); err != nil {
		return nil, formatError(page, "ImageDescription", "invalid JSON: %v", err)
	}
	if d.ImageType != ImageType {
		return nil, formatError(page, "image.type", "expected %q, found %q", ImageType, d.ImageType)
	}
	if d.Target == "" {
		return nil, formatError(page, "channel.target", "missing")
	}
	if d.Scale != nil && !(*d.Scale > 0) {
		return nil, formatError(page, "channel.scale", "must be positive, found %v", *d.Scale)
	}

	return &d, nil
}
