package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/snappy"
	"github.com/pierrec/lz4/v4"

	"github.com/embedworks/monocle/internal/common/configtypes"
)

// Every cache value starts with a one-byte marker naming how the rest
// is encoded. Readers never consult config, so the compression setting
// can change without invalidating existing entries.
const (
	markerRaw    byte = 0x00
	markerSnappy byte = 0x01
	markerLZ4    byte = 0x02
)

// DefaultMinCompressSize skips compression for values too small to
// benefit from it.
const DefaultMinCompressSize = 512

// ErrDecompression is returned when cache decompression fails.
// Use errors.Is(err, ErrDecompression) to check for decompression errors.
var ErrDecompression = errors.New("decompression failed")

// Compress encodes content for storage using the given algorithm.
// Returns the marked bytes and the algorithm actually applied (small
// values stay raw regardless of the setting).
func Compress(content []byte, algorithm string, minSize int) ([]byte, string, error) {
	if minSize <= 0 {
		minSize = DefaultMinCompressSize
	}

	if len(content) < minSize || algorithm == configtypes.CompressionNone || algorithm == "" {
		return withMarker(markerRaw, content), configtypes.CompressionNone, nil
	}

	switch algorithm {
	case configtypes.CompressionSnappy:
		compressed := snappy.Encode(nil, content)
		return withMarker(markerSnappy, compressed), configtypes.CompressionSnappy, nil

	case configtypes.CompressionLZ4:
		// Use LZ4 stream format which embeds size information
		var buf bytes.Buffer
		buf.WriteByte(markerLZ4)
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(content); err != nil {
			w.Close()
			return nil, "", fmt.Errorf("lz4 compression failed: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("lz4 compression close failed: %w", err)
		}
		return buf.Bytes(), configtypes.CompressionLZ4, nil

	default:
		// Unknown algorithm - treat as no compression
		return withMarker(markerRaw, content), configtypes.CompressionNone, nil
	}
}

// Decompress decodes a stored cache value based on its marker byte.
// Returns the content and the algorithm it was stored with.
func Decompress(data []byte) ([]byte, string, error) {
	if len(data) == 0 {
		return nil, configtypes.CompressionNone, fmt.Errorf("%w: empty cache value", ErrDecompression)
	}

	marker, payload := data[0], data[1:]

	switch marker {
	case markerRaw:
		return payload, configtypes.CompressionNone, nil

	case markerSnappy:
		decompressed, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, configtypes.CompressionSnappy, fmt.Errorf("%w: snappy: %v", ErrDecompression, err)
		}
		return decompressed, configtypes.CompressionSnappy, nil

	case markerLZ4:
		r := lz4.NewReader(bytes.NewReader(payload))
		decompressed, err := io.ReadAll(r)
		if err != nil {
			return nil, configtypes.CompressionLZ4, fmt.Errorf("%w: lz4: %v", ErrDecompression, err)
		}
		return decompressed, configtypes.CompressionLZ4, nil

	default:
		return nil, configtypes.CompressionNone, fmt.Errorf("%w: unknown marker 0x%02x", ErrDecompression, marker)
	}
}

func withMarker(marker byte, content []byte) []byte {
	out := make([]byte, 0, len(content)+1)
	out = append(out, marker)
	return append(out, content...)
}
