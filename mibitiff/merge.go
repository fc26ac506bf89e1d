package mibitiff

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/AlanRace/go-mibi/mibi"
)

// Merge reads every source and joins their channels, in source order, into
// one image. The sources must come from the same field of view and share
// shape and dtype; metadata is taken from the first.
func Merge(sources ...io.ReadSeeker) (*mibi.Image, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: nothing to merge", mibi.ErrValidation)
	}

	var merged *mibi.Image
	for i, source := range sources {
		img, err := Read(source)
		if err != nil {
			return nil, fmt.Errorf("mibitiff: source %d: %w", i, err)
		}

		if merged == nil {
			merged = img
			continue
		}
		if err := checkMergeable(merged, img); err != nil {
			return nil, fmt.Errorf("mibitiff: source %d: %w", i, err)
		}
		if err := merged.Append(img); err != nil {
			return nil, fmt.Errorf("mibitiff: source %d: %w", i, err)
		}
	}

	return merged, nil
}

func checkMergeable(base, img *mibi.Image) error {
	h, w := base.Shape()
	oh, ow := img.Shape()
	if h != oh || w != ow {
		return fmt.Errorf("%w: shape %dx%d, expected %dx%d", mibi.ErrMismatch, oh, ow, h, w)
	}
	if base.DType() != img.DType() {
		return fmt.Errorf("%w: dtype %s, expected %s", mibi.ErrMismatch, img.DType(), base.DType())
	}
	if !base.Metadata.SamePoint(img.Metadata) {
		return fmt.Errorf("%w: point %s/%s, expected %s/%s", mibi.ErrMismatch,
			img.Metadata.Run, img.Metadata.PointName(), base.Metadata.Run, base.Metadata.PointName())
	}
	return nil
}

// MergeFiles merges the MIBItiff files at paths and writes the result to out.
func MergeFiles(out string, opts *WriteOptions, paths ...string) error {
	sources := make([]io.ReadSeeker, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		sources = append(sources, f)
	}

	merged, err := Merge(sources...)
	if err != nil {
		return err
	}

	log.Printf("[mibitiff] writing %d channels from %d files to %s\n", merged.NumChannels(), len(paths), out)
	return WriteFile(out, merged, opts)
}
