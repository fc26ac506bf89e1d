// Package util holds small helpers shared by the codec and the compositor:
// polar coordinates, natural ordering of channel names, text-safe encoding of
// binary metadata and filename sanitising.
package util

import (
	"encoding/base64"
	"errors"
	"math"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Car2Pol converts the point (x, y) to polar coordinates about the centre
// (xc, yc). The angle is measured counter-clockwise from the positive x axis
// and lies in [0, 2π), or [0, 360) when degrees is set.
func Car2Pol(x, y, xc, yc float64, degrees bool) (r, phi float64) {
	dx, dy := x-xc, y-yc
	r = math.Hypot(dx, dy)
	phi = math.Atan2(dy, dx)
	if phi < 0 {
		phi += 2 * math.Pi
	}
	if degrees {
		phi = phi * 180 / math.Pi
		if phi >= 360 {
			phi -= 360
		}
	}
	return r, phi
}

func naturalCollator() *collate.Collator {
	return collate.New(language.Und, collate.Numeric, collate.IgnoreCase)
}

// NaturalSort sorts list in place so that embedded numbers compare by value
// ("CD3" before "CD20") and case is ignored.
func NaturalSort(list []string) {
	c := naturalCollator()
	sort.SliceStable(list, func(i, j int) bool {
		if cmp := c.CompareString(list[i], list[j]); cmp != 0 {
			return cmp < 0
		}
		return list[i] < list[j]
	})
}

// SortChannelNames sorts target names in place the way they are listed in a
// panel: natural order, ignoring case and punctuation, so "HLA-DR" sorts next
// to "HLADR". Ties fall back to plain string order.
func SortChannelNames(names []string) {
	c := naturalCollator()
	keys := make(map[string]string, len(names))
	for _, name := range names {
		keys[name] = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, name)
	}

	sort.SliceStable(names, func(i, j int) bool {
		if cmp := c.CompareString(keys[names[i]], keys[names[j]]); cmp != 0 {
			return cmp < 0
		}
		return names[i] < names[j]
	})
}

// EncodedPrefix marks a metadata string holding base64 encoded bytes.
const EncodedPrefix = "b64:"

// ErrNotEncoded is returned by DecodeBytes for strings without EncodedPrefix.
var ErrNotEncoded = errors.New("util: string is not an encoded byte string")

// EncodeBytes returns a printable, explicitly tagged form of data.
func EncodeBytes(data []byte) string {
	return EncodedPrefix + base64.StdEncoding.EncodeToString(data)
}

// IsEncoded reports whether s was produced by EncodeBytes.
func IsEncoded(s string) bool {
	return strings.HasPrefix(s, EncodedPrefix)
}

// DecodeBytes is the inverse of EncodeBytes.
func DecodeBytes(s string) ([]byte, error) {
	if !IsEncoded(s) {
		return nil, ErrNotEncoded
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(s, EncodedPrefix))
}

// FormatForFilename turns a point or target name into something safe to use
// as a file name: accents are stripped, path separators become "-", spaces
// become "_" and any other character outside [A-Za-z0-9._+-] is dropped.
func FormatForFilename(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}

	var b strings.Builder
	for _, r := range stripped {
		switch {
		case r == '/' || r == '\\':
			b.WriteByte('-')
		case unicode.IsSpace(r):
			b.WriteByte('_')
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-' || r == '+':
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "_"
	}
	return out
}
