package tiff

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"sync"

	lzwwriter "github.com/hhrutter/lzw"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/image/tiff/lzw"
)

type CompressionID uint16

const (
	Uncompressed CompressionID = 1
	CCIT1D       CompressionID = 2
	CCITGroup3   CompressionID = 3
	CCITGroup4   CompressionID = 4
	LZW          CompressionID = 5
	JPEG         CompressionID = 6
	AdobeDeflate CompressionID = 8
	PackBits     CompressionID = 32773
	Deflate      CompressionID = 32946
	ZSTD         CompressionID = 50000
)

// Decompressor turns the stored bytes of one strip or tile back into raw
// sample data.
type Decompressor interface {
	Decompress(io.Reader) ([]byte, error)
}

// Compressor is the inverse of Decompressor, used when writing.
type Compressor interface {
	Compress([]byte) ([]byte, error)
}

type compressionMethod struct {
	name         string
	decompressor Decompressor
	compressor   Compressor
}

var (
	compressionMux     sync.RWMutex
	compressionMethods = map[CompressionID]*compressionMethod{}
	compressionNameMap = map[CompressionID]string{
		Uncompressed: "Uncompressed",
		CCIT1D:       "CCIT1D",
		CCITGroup3:   "CCITGroup3",
		CCITGroup4:   "CCITGroup4",
		LZW:          "LZW",
		JPEG:         "JPEG",
		AdobeDeflate: "AdobeDeflate",
		PackBits:     "PackBits",
		Deflate:      "Deflate",
		ZSTD:         "ZSTD",
	}
)

func init() {
	AddCompression(Uncompressed, "Uncompressed", NoCompression{}, NoCompression{})
	AddCompression(LZW, "LZW", &LZWCompression{}, &LZWCompression{})
	AddCompression(AdobeDeflate, "AdobeDeflate", &DeflateCompression{}, &DeflateCompression{})
	AddCompression(Deflate, "Deflate", &DeflateCompression{}, &DeflateCompression{})
	AddCompression(ZSTD, "ZSTD", &ZSTDCompression{}, &ZSTDCompression{})
	AddCompression(PackBits, "PackBits", PackBitsCompression{}, nil)
}

// AddCompression registers the codec used for a compression scheme. Either of
// decompressor or compressor may be nil when only one direction is supported.
func AddCompression(id CompressionID, name string, decompressor Decompressor, compressor Compressor) {
	compressionMux.Lock()
	defer compressionMux.Unlock()

	compressionNameMap[id] = name
	compressionMethods[id] = &compressionMethod{name: name, decompressor: decompressor, compressor: compressor}
}

func (compressionID CompressionID) String() string {
	compressionMux.RLock()
	defer compressionMux.RUnlock()

	if name, ok := compressionNameMap[compressionID]; ok {
		return name
	}
	return fmt.Sprintf("Compression%d", uint16(compressionID))
}

// GetDecompressor returns the registered decompressor for compressionID.
func GetDecompressor(compressionID CompressionID) (Decompressor, error) {
	compressionMux.RLock()
	defer compressionMux.RUnlock()

	method, ok := compressionMethods[compressionID]
	if !ok || method.decompressor == nil {
		return nil, fmt.Errorf("tiff: unsupported compression scheme %s", compressionID)
	}
	return method.decompressor, nil
}

// GetCompressor returns the registered compressor for compressionID.
func GetCompressor(compressionID CompressionID) (Compressor, error) {
	compressionMux.RLock()
	defer compressionMux.RUnlock()

	method, ok := compressionMethods[compressionID]
	if !ok || method.compressor == nil {
		return nil, fmt.Errorf("tiff: unsupported compression scheme %s for writing", compressionID)
	}
	return method.compressor, nil
}

type NoCompression struct{}

func (NoCompression) Decompress(r io.Reader) ([]byte, error) {
	return ioutil.ReadAll(r)
}

func (NoCompression) Compress(data []byte) ([]byte, error) {
	return data, nil
}

// PackBitsCompression decodes the Macintosh run length scheme. It is read only.
type PackBitsCompression struct{}

func (PackBitsCompression) Decompress(r io.Reader) ([]byte, error) {
	packed, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var out []byte
	for i := 0; i < len(packed); {
		n := int(int8(packed[i]))
		i++
		switch {
		case n >= 0:
			if i+n+1 > len(packed) {
				return nil, fmt.Errorf("tiff: PackBits literal run of %d bytes overruns data", n+1)
			}
			out = append(out, packed[i:i+n+1]...)
			i += n + 1
		case n != -128:
			if i >= len(packed) {
				return nil, fmt.Errorf("tiff: PackBits repeat run missing its byte")
			}
			for k := 0; k < 1-n; k++ {
				out = append(out, packed[i])
			}
			i++
		}
	}
	return out, nil
}

// LZWCompression implements the TIFF flavour of LZW, which switches code
// width one code early.
type LZWCompression struct{}

func (*LZWCompression) Decompress(r io.Reader) ([]byte, error) {
	readCloser := lzw.NewReader(r, lzw.MSB, 8)
	defer readCloser.Close()

	return ioutil.ReadAll(readCloser)
}

func (*LZWCompression) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writeCloser := lzwwriter.NewWriter(&buf, true)
	if _, err := writeCloser.Write(data); err != nil {
		writeCloser.Close()
		return nil, err
	}
	if err := writeCloser.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DeflateCompression handles zlib wrapped deflate streams, stored under both
// the Adobe and the legacy compression codes.
type DeflateCompression struct{}

func (*DeflateCompression) Decompress(r io.Reader) ([]byte, error) {
	readCloser, err := zlib.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer readCloser.Close()

	return ioutil.ReadAll(readCloser)
}

func (*DeflateCompression) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := zlib.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

type ZSTDCompression struct{}

var (
	zstdOnce    sync.Once
	zstdDecoder *zstd.Decoder
	zstdEncoder *zstd.Encoder
	zstdErr     error
)

func initZSTD() {
	zstdDecoder, zstdErr = zstd.NewReader(nil)
	if zstdErr != nil {
		return
	}
	zstdEncoder, zstdErr = zstd.NewWriter(nil)
}

func (*ZSTDCompression) Decompress(r io.Reader) ([]byte, error) {
	zstdOnce.Do(initZSTD)
	if zstdErr != nil {
		return nil, zstdErr
	}

	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}

	return zstdDecoder.DecodeAll(data, nil)
}

func (*ZSTDCompression) Compress(data []byte) ([]byte, error) {
	zstdOnce.Do(initZSTD)
	if zstdErr != nil {
		return nil, zstdErr
	}

	return zstdEncoder.EncodeAll(data, nil), nil
}
