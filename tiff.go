package tiff

import (
	"encoding/binary"
	"io"
)

// Classic TIFF directories: 16-bit entry count, 12-byte entries with a 4-byte
// value field, 32-bit offsets.

func readIFDOffset(reader io.Reader, endian binary.ByteOrder) (int64, error) {
	var offset uint32
	err := binary.Read(reader, endian, &offset)
	if err != nil {
		return 0, formatError(-1, "header", "unable to read first IFD offset: %v", err)
	}

	return int64(offset), nil
}

type classicTagData struct {
	TagID     uint16
	DataType  uint16
	DataCount uint32
	Value     [4]byte
}

func readIFD(seeker io.ReadSeeker, endian binary.ByteOrder, offset int64, page int) (*ImageFileDirectory, error) {
	var ifd ImageFileDirectory
	var numTags uint16
	var nextOffset uint32

	if _, err := seeker.Seek(offset, io.SeekStart); err != nil {
		return nil, formatError(page, "IFD", "unable to seek to directory: %v", err)
	}

	err := binary.Read(seeker, endian, &numTags)
	if err != nil {
		return nil, formatError(page, "IFD", "unable to read tag count: %v", err)
	}
	ifd.NumTags = uint64(numTags)

	raw := make([]classicTagData, numTags)
	err = binary.Read(seeker, endian, &raw)
	if err != nil {
		return nil, formatError(page, "IFD", "unable to read tags: %v", err)
	}

	err = binary.Read(seeker, endian, &nextOffset)
	if err != nil {
		return nil, formatError(page, "NextIFDOffset", "unable to read: %v", err)
	}
	ifd.NextIFDOffset = int64(nextOffset)

	entries := make([]tagData, len(raw))
	for i := range raw {
		entries[i] = tagData{
			TagID:     raw[i].TagID,
			DataType:  raw[i].DataType,
			DataCount: uint64(raw[i].DataCount),
			Value:     raw[i].Value[:],
		}
	}

	err = processTags(&ifd, seeker, endian, entries, page)
	if err != nil {
		return nil, err
	}

	return &ifd, nil
}
