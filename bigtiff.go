package tiff

import (
	"encoding/binary"
	"io"
)

func readBigIFDOffset(reader io.Reader, endian binary.ByteOrder) (int64, error) {
	var offsetSize, empty uint16
	var offset uint64
	err := binary.Read(reader, endian, &offsetSize)
	if err != nil {
		return 0, formatError(-1, "header", "unable to read BigTIFF offset size: %v", err)
	}
	if offsetSize != 8 {
		return 0, formatError(-1, "header", "unsupported BigTIFF offset size %d", offsetSize)
	}
	err = binary.Read(reader, endian, &empty)
	if err != nil {
		return 0, formatError(-1, "header", "unable to read BigTIFF header: %v", err)
	}
	err = binary.Read(reader, endian, &offset)
	if err != nil {
		return 0, formatError(-1, "header", "unable to read first IFD offset: %v", err)
	}

	return int64(offset), nil
}

// bigTagData captures the details of a tag as stored in a BigTIFF file.
type bigTagData struct {
	TagID     uint16 /* The tag identifier  */
	DataType  uint16 /* The scalar type of the data items  */
	DataCount uint64 /* The number of items in the tag data  */
	Value     [8]byte
}

func readBigIFD(seeker io.ReadSeeker, endian binary.ByteOrder, offset int64, page int) (*ImageFileDirectory, error) {
	var ifd ImageFileDirectory
	var numTags uint64
	var nextOffset uint64

	if _, err := seeker.Seek(offset, io.SeekStart); err != nil {
		return nil, formatError(page, "IFD", "unable to seek to directory: %v", err)
	}

	err := binary.Read(seeker, endian, &numTags)
	if err != nil {
		return nil, formatError(page, "IFD", "unable to read tag count: %v", err)
	}
	if numTags > 1<<16 {
		return nil, formatError(page, "IFD", "implausible tag count %d", numTags)
	}
	ifd.NumTags = numTags

	raw := make([]bigTagData, numTags)
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
			DataCount: raw[i].DataCount,
			Value:     raw[i].Value[:],
		}
	}

	err = processTags(&ifd, seeker, endian, entries, page)
	if err != nil {
		return nil, err
	}

	return &ifd, nil
}
