package mesh

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how the payload of a geometry file is compressed.
type Compression uint8

const (
	// CompressionNone stores the payload as-is.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD (better ratio).
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// ParseCompression maps "none", "lz4" and "zstd" to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("%w: compression %q", ErrUnsupported, s)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxRawSize))
	return dec
}

// compress returns the compressed payload and the compression actually used.
// Incompressible LZ4 input falls back to CompressionNone.
func compress(data []byte, c Compression) ([]byte, Compression, error) {
	switch c {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		out := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, out, nil)
		if err != nil {
			return nil, 0, err
		}
		if n == 0 {
			return data, CompressionNone, nil
		}
		return out[:n], CompressionLZ4, nil
	case CompressionZSTD:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, nil), CompressionZSTD, nil
	default:
		return nil, 0, fmt.Errorf("%w: compression %d", ErrUnsupported, c)
	}
}

const (
	// lz4MaxRatio bounds the expansion of an LZ4 block: one token byte can
	// describe at most 255 additional match bytes.
	lz4MaxRatio = 255
	// zstdMaxRatio bounds the expansion accepted from a zstd frame.
	zstdMaxRatio = 1 << 12
	// MaxRawSize is the largest decoded snapshot a geometry file may declare.
	MaxRawSize = 1 << 36
)

// checkRawLen rejects a declared decoded size that the payload cannot
// produce, before anything is allocated for it.
func checkRawLen(c Compression, rawLen, payloadLen uint64) error {
	if rawLen > MaxRawSize {
		return fmt.Errorf("%w: declared size %d exceeds %d", ErrCorrupt, rawLen, uint64(MaxRawSize))
	}
	var limit uint64
	switch c {
	case CompressionNone:
		if rawLen != payloadLen {
			return fmt.Errorf("%w: declared size %d, payload %d", ErrCorrupt, rawLen, payloadLen)
		}
		return nil
	case CompressionLZ4:
		limit = payloadLen*lz4MaxRatio + 16
	case CompressionZSTD:
		limit = payloadLen * zstdMaxRatio
	default:
		return nil
	}
	if rawLen > limit {
		return fmt.Errorf("%w: declared size %d too large for %s payload of %d bytes", ErrCorrupt, rawLen, c, payloadLen)
	}
	return nil
}

func decompress(data []byte, c Compression, rawLen uint64) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		out := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %w", ErrCorrupt, err)
		}
		if uint64(n) != rawLen {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(data, make([]byte, 0, min(rawLen, uint64(len(data))*8)))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %w", ErrCorrupt, err)
		}
		if uint64(len(out)) != rawLen {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: compression %d", ErrUnsupported, c)
	}
}
