package phargo

import (
	"io"

	dsnetbzip2 "github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zlib"
)

// CompressionKind is a per-file compression method. The wire bit values
// match the entry flags table in the phar manifest format.
type CompressionKind int

const (
	// CompressionNone stores file content verbatim.
	CompressionNone CompressionKind = iota
	// CompressionZlib stores file content zlib-deflated (RFC 1950).
	//
	// Note this is plain zlib framing, not gzip (RFC 1952): phar's
	// "zlib" entry flag is the format PHP's own zlib.deflate stream
	// filter produces, which is zlib-wrapped, not gzip-wrapped.
	CompressionZlib
	// CompressionBzip2 stores file content bzip2-compressed.
	CompressionBzip2
)

const (
	compressionBitZlib  uint32 = 0x00001000
	compressionBitBzip2 uint32 = 0x00002000
	compressionBitMask  uint32 = compressionBitZlib | compressionBitBzip2
)

// compressionFromFlags recovers the compression kind from an entry's
// on-wire flags field.
func compressionFromFlags(flags uint32) CompressionKind {
	switch {
	case flags&compressionBitZlib != 0:
		return CompressionZlib
	case flags&compressionBitBzip2 != 0:
		return CompressionBzip2
	default:
		return CompressionNone
	}
}

// bit returns the flags bit this compression kind contributes to an
// entry's flags field (and, ORed across all entries, to global_flags).
func (c CompressionKind) bit() uint32 {
	switch c {
	case CompressionZlib:
		return compressionBitZlib
	case CompressionBzip2:
		return compressionBitBzip2
	default:
		return 0
	}
}

func (c CompressionKind) String() string {
	switch c {
	case CompressionZlib:
		return "zlib"
	case CompressionBzip2:
		return "bzip2"
	default:
		return "none"
	}
}

// decompressReader wraps r with the decompressor matching flags.
// Compression level is meaningless for reading; only the kind matters.
func decompressReader(flags uint32, r io.Reader) (io.Reader, error) {
	switch compressionFromFlags(flags) {
	case CompressionZlib:
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, newOpenErr(ErrIO, err)
		}
		return zr, nil
	case CompressionBzip2:
		br, err := dsnetbzip2.NewReader(r, nil)
		if err != nil {
			return nil, newOpenErr(ErrIO, err)
		}
		return br, nil
	default:
		return r, nil
	}
}

// compressWriter wraps w with the compressor for kind at the given
// level. The returned writer must be closed (flushing any trailer)
// before the caller relies on the bytes written to w being complete.
func compressWriter(kind CompressionKind, level int, w io.Writer) (io.WriteCloser, error) {
	switch kind {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionZlib:
		if level == 0 {
			level = zlib.DefaultCompression
		}
		zw, err := zlib.NewWriterLevel(w, level)
		if err != nil {
			return nil, newWriteErr(ErrUnsupportedCompression, err)
		}
		return zw, nil
	case CompressionBzip2:
		var cfg *dsnetbzip2.WriterConfig
		if level > 0 {
			cfg = &dsnetbzip2.WriterConfig{Level: level}
		}
		bw, err := dsnetbzip2.NewWriter(w, cfg)
		if err != nil {
			return nil, newWriteErr(ErrUnsupportedCompression, err)
		}
		return bw, nil
	default:
		return nil, newWriteErr(ErrUnsupportedCompression, nil)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
