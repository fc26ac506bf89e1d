package mibi

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Coordinates locate the stage in microns.
type Coordinates struct {
	X, Y, Z float64
}

// Metadata describes the acquisition an Image came from. Zero values mean the
// field is absent.
type Metadata struct {
	// Run is the name of the instrument run
	Run  string
	Date *time.Time

	Coordinates *Coordinates
	// Size is the edge length of the field of view in microns
	Size float64
	// Frame is the number of pixels per scan line
	Frame          int
	TimeResolution float64
	// Dwell time per pixel in milliseconds
	Dwell    float64
	Scans    int
	Aperture string

	Instrument string
	Slide      string
	Tissue     string
	Panel      string
	Version    string

	MassOffset    float64
	MassGain      float64
	Miscalibrated bool
	CheckReg      bool

	Filename    string
	Description string
	FovID       string
	FovName     string
	Folder      string
	User        string

	Extra Extra
}

// Clone returns a deep copy of md.
func (md Metadata) Clone() Metadata {
	clone := md
	if md.Date != nil {
		date := *md.Date
		clone.Date = &date
	}
	if md.Coordinates != nil {
		coordinates := *md.Coordinates
		clone.Coordinates = &coordinates
	}
	clone.Extra = md.Extra.Clone()
	return clone
}

// Equal compares every field. Dates are equal when they name the same
// instant.
func (md Metadata) Equal(other Metadata) bool {
	if (md.Date == nil) != (other.Date == nil) || (md.Date != nil && !md.Date.Equal(*other.Date)) {
		return false
	}
	if (md.Coordinates == nil) != (other.Coordinates == nil) || (md.Coordinates != nil && *md.Coordinates != *other.Coordinates) {
		return false
	}
	if !md.Extra.Equal(other.Extra) {
		return false
	}

	return md.Run == other.Run &&
		md.Size == other.Size &&
		md.Frame == other.Frame &&
		md.TimeResolution == other.TimeResolution &&
		md.Dwell == other.Dwell &&
		md.Scans == other.Scans &&
		md.Aperture == other.Aperture &&
		md.Instrument == other.Instrument &&
		md.Slide == other.Slide &&
		md.Tissue == other.Tissue &&
		md.Panel == other.Panel &&
		md.Version == other.Version &&
		md.MassOffset == other.MassOffset &&
		md.MassGain == other.MassGain &&
		md.Miscalibrated == other.Miscalibrated &&
		md.CheckReg == other.CheckReg &&
		md.Filename == other.Filename &&
		md.Description == other.Description &&
		md.FovID == other.FovID &&
		md.FovName == other.FovName &&
		md.Folder == other.Folder &&
		md.User == other.User
}

// SamePoint reports whether both records identify the same field of view.
func (md Metadata) SamePoint(other Metadata) bool {
	return md.Run == other.Run && md.FovID == other.FovID && md.FovName == other.FovName
}

// PointName returns the name used to prefix exported files.
func (md Metadata) PointName() string {
	if md.FovName != "" {
		return md.FovName
	}
	return md.FovID
}

// Kind enumerates the value types allowed in Extra.
type Kind int

const (
	KindString Kind = iota + 1
	KindInt
	KindFloat
	KindBool
	KindBytes
)

var kindNameMap = map[Kind]string{
	KindString: "string",
	KindInt:    "int",
	KindFloat:  "float",
	KindBool:   "bool",
	KindBytes:  "bytes",
}

func (k Kind) String() string {
	if name, ok := kindNameMap[k]; ok {
		return name
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNameMap {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown value kind %q", ErrValidation, name)
}

// Value is a single typed entry of Extra.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	data []byte
}

func StringValue(s string) Value { return Value{kind: KindString, s: s} }
func IntValue(i int64) Value     { return Value{kind: KindInt, i: i} }
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }
func BoolValue(b bool) Value     { return Value{kind: KindBool, b: b} }

// BytesValue copies data.
func BytesValue(data []byte) Value {
	return Value{kind: KindBytes, data: append([]byte{}, data...)}
}

// ValueOf converts a Go value into a Value. Only strings, integers, floats,
// booleans and byte slices are accepted.
func ValueOf(v interface{}) (Value, error) {
	switch t := v.(type) {
	case Value:
		return t, nil
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case int:
		return IntValue(int64(t)), nil
	case int8:
		return IntValue(int64(t)), nil
	case int16:
		return IntValue(int64(t)), nil
	case int32:
		return IntValue(int64(t)), nil
	case int64:
		return IntValue(t), nil
	case uint8:
		return IntValue(int64(t)), nil
	case uint16:
		return IntValue(int64(t)), nil
	case uint32:
		return IntValue(int64(t)), nil
	case uint:
		if uint64(t) > math.MaxInt64 {
			return Value{}, fmt.Errorf("%w: integer %d overflows int64", ErrValidation, t)
		}
		return IntValue(int64(t)), nil
	case uint64:
		if t > math.MaxInt64 {
			return Value{}, fmt.Errorf("%w: integer %d overflows int64", ErrValidation, t)
		}
		return IntValue(int64(t)), nil
	case float32:
		return FloatValue(float64(t)), nil
	case float64:
		return FloatValue(t), nil
	case []byte:
		return BytesValue(t), nil
	}

	return Value{}, fmt.Errorf("%w: unsupported metadata value type %T", ErrValidation, v)
}

func (v Value) Kind() Kind { return v.kind }

// Interface returns the value as string, int64, float64, bool or []byte.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindBytes:
		return append([]byte{}, v.data...)
	}
	return nil
}

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }
func (v Value) AsInt() (int64, bool)     { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }
func (v Value) AsBool() (bool, bool)     { return v.b, v.kind == KindBool }

func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return append([]byte{}, v.data...), true
}

// Equal requires the same kind and value. Floats compare bitwise so that NaN
// survives a round trip.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == other.s
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return math.Float64bits(v.f) == math.Float64bits(other.f)
	case KindBool:
		return v.b == other.b
	case KindBytes:
		return bytes.Equal(v.data, other.data)
	}
	return true
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindBytes:
		return fmt.Sprintf("%d bytes", len(v.data))
	}
	return "<invalid>"
}

// Extra is an insertion ordered mapping of instrument specific metadata.
// The zero value is empty and ready to use.
type Extra struct {
	keys   []string
	values map[string]Value
}

// Set stores v under key. An existing key keeps its position. Values not
// built by one of the Value constructors are rejected.
func (e *Extra) Set(key string, v Value) error {
	if _, ok := kindNameMap[v.kind]; !ok {
		return fmt.Errorf("%w: extra %q has invalid value kind %s", ErrValidation, key, v.kind)
	}
	if e.values == nil {
		e.values = make(map[string]Value)
	}
	if _, ok := e.values[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.values[key] = v
	return nil
}

// SetAny converts v with ValueOf and stores it.
func (e *Extra) SetAny(key string, v interface{}) error {
	value, err := ValueOf(v)
	if err != nil {
		return fmt.Errorf("extra %q: %w", key, err)
	}
	return e.Set(key, value)
}

func (e Extra) Get(key string) (Value, bool) {
	v, ok := e.values[key]
	return v, ok
}

func (e *Extra) Delete(key string) {
	if _, ok := e.values[key]; !ok {
		return
	}
	delete(e.values, key)
	for i, k := range e.keys {
		if k == key {
			e.keys = append(e.keys[:i:i], e.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (e Extra) Keys() []string {
	return append([]string{}, e.keys...)
}

func (e Extra) Len() int {
	return len(e.keys)
}

func (e Extra) Clone() Extra {
	var clone Extra
	for _, k := range e.keys {
		v := e.values[k]
		if v.kind == KindBytes {
			v = BytesValue(v.data)
		}
		clone.Set(k, v)
	}
	return clone
}

// Equal requires the same keys in the same order with equal values.
func (e Extra) Equal(other Extra) bool {
	if len(e.keys) != len(other.keys) {
		return false
	}
	for i, k := range e.keys {
		if other.keys[i] != k || !e.values[k].Equal(other.values[k]) {
			return false
		}
	}
	return true
}
