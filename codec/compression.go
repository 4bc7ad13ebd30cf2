package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies a block payload compression algorithm (spec.md §4.1).
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseCompression maps a configuration string (spec.md §6 "compression"
// key) to a Compression value.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return CompressionNone, fmt.Errorf("codec: unknown compression %q", s)
	}
}

// minSavingsRatio is the minimum shrink factor required for a compressed
// payload to be kept; otherwise the block is stored uncompressed (spec.md
// §4.1: "applied only if it reduces size by at least 5%").
const minSavingsRatio = 0.95

// compress applies c to src and returns the resulting bytes alongside the
// Compression actually used (it falls back to CompressionNone if the
// requested algorithm does not shrink the payload by at least 5%).
func compress(c Compression, src []byte) ([]byte, Compression, error) {
	if c == CompressionNone || len(src) == 0 {
		return src, CompressionNone, nil
	}

	var out []byte
	var err error
	switch c {
	case CompressionLZ4:
		out, err = compressLZ4(src)
	case CompressionZstd:
		out, err = compressZstd(src)
	default:
		return nil, CompressionNone, fmt.Errorf("codec: unsupported compression %d", c)
	}
	if err != nil {
		return nil, CompressionNone, err
	}

	if float64(len(out)) > float64(len(src))*minSavingsRatio {
		return src, CompressionNone, nil
	}
	return out, c, nil
}

func decompress(c Compression, src []byte, uncompressedSize int) ([]byte, error) {
	switch c {
	case CompressionNone:
		return src, nil
	case CompressionLZ4:
		return decompressLZ4(src, uncompressedSize)
	case CompressionZstd:
		return decompressZstd(src)
	default:
		return nil, fmt.Errorf("codec: unsupported compression %d", c)
	}
}

func compressLZ4(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	return buf.Bytes(), nil
}

func decompressLZ4(src []byte, uncompressedSize int) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(src))
	out := make([]byte, uncompressedSize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	return out, nil
}

var zstdEncoder, _ = zstd.NewWriter(nil)
var zstdDecoder, _ = zstd.NewReader(nil)

func compressZstd(src []byte) ([]byte, error) {
	return zstdEncoder.EncodeAll(src, nil), nil
}

func decompressZstd(src []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}
