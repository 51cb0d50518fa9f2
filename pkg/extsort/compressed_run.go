package extsort

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

const (
	// Compression type, stored in bits 1-3 of the header flags.
	compressionTypeNone = 0
	compressionTypeZstd = 1

	flagCompressed      = 1 << 0
	flagCompressionMask = 0x0E
)

// CompressionLevel is the zstd effort used for compressed run files.
type CompressionLevel int

const (
	// CompressionFastest prioritizes speed over ratio.
	CompressionFastest CompressionLevel = 1
	// CompressionDefault balances speed and ratio.
	CompressionDefault CompressionLevel = 3
	// CompressionBetter prioritizes ratio over speed.
	CompressionBetter CompressionLevel = 6
)

func (l CompressionLevel) String() string {
	switch l {
	case CompressionFastest:
		return "fastest"
	case CompressionDefault:
		return "default"
	case CompressionBetter:
		return "better"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

func compressionFlags(compressionType uint32) uint32 {
	if compressionType == compressionTypeNone {
		return 0
	}
	return flagCompressed | compressionType<<1
}

func newCompressor(w io.Writer, level CompressionLevel) (*zstd.Encoder, error) {
	zl := zstd.SpeedDefault
	switch level {
	case CompressionFastest:
		zl = zstd.SpeedFastest
	case CompressionBetter:
		zl = zstd.SpeedBetterCompression
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zl), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return enc, nil
}

func newDecompressor(r io.Reader) (*zstd.Decoder, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(true))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return dec, nil
}
