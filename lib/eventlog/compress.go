// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression algorithm used for a
// journal record payload. Tags are stored in record headers (1 byte
// each). These values are format constants — changing them breaks
// journal compatibility.
type CompressionTag uint8

const (
	// CompressionNone indicates an uncompressed payload. Events are
	// small; most individual records land here.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 indicates LZ4 block compression. Fast default
	// when a payload does shrink.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd indicates zstd compression at the default
	// level. Better ratios for large text-heavy payloads
	// (descriptions, bid messages).
	CompressionZstd CompressionTag = 2
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseCompressionTag parses a compression tag from its string
// representation.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression tag: %q", name)
	}
}

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead. Both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("eventlog: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("eventlog: zstd decoder initialization failed: " + err.Error())
	}
}

// errIncompressible is returned when the compressed output is not
// smaller than the input. The caller falls back to CompressionNone.
var errIncompressible = fmt.Errorf("payload is incompressible")

// compress compresses a payload with the requested algorithm. For
// CompressionNone it returns the input unchanged (no copy).
func compress(payload []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return payload, nil

	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(payload))
		destination := make([]byte, bound)
		written, err := lz4.CompressBlock(payload, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock returns 0 for incompressible input.
		if written == 0 || written >= len(payload) {
			return nil, errIncompressible
		}
		return destination[:written], nil

	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(payload, nil)
		if len(compressed) >= len(payload) {
			return nil, errIncompressible
		}
		return compressed, nil

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// decompress reverses compress. The rawSize must match the original
// payload length exactly; a mismatch is corruption.
func decompress(compressed []byte, tag CompressionTag, rawSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(compressed) != rawSize {
			return nil, fmt.Errorf("uncompressed payload: size %d does not match expected %d",
				len(compressed), rawSize)
		}
		return compressed, nil

	case CompressionLZ4:
		destination := make([]byte, rawSize)
		read, err := lz4.UncompressBlock(compressed, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != rawSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, rawSize)
		}
		return destination, nil

	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != rawSize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), rawSize)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}
