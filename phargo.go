// Package phargo reads and writes archive files in the PHP "phar"
// container format: a self-executing script stub, a manifest
// describing member files, their concatenated payload bytes, and an
// optional cryptographic signature trailer.
package phargo

import (
	"errors"
	"io"
)

// readerAtAdapter wraps an io.ReaderAt (which has no notion of a
// current position) into a full io.ReadSeeker, so archives backed by
// something like a memory-mapped file or an S3 range-reader can still
// go through Open, which needs to seek while scanning.
type readerAtAdapter struct {
	reader io.ReaderAt
	offset int64
	size   int64
}

// newReaderAtSeeker adapts r into an io.ReadSeeker of the given total
// size, starting at offset 0.
func newReaderAtSeeker(r io.ReaderAt, size int64) io.ReadSeeker {
	return &readerAtAdapter{reader: r, size: size}
}

func (r *readerAtAdapter) Read(p []byte) (int, error) {
	n, err := r.reader.ReadAt(p, r.offset)
	r.offset += int64(n)
	return n, err
}

func (r *readerAtAdapter) Seek(offset int64, whence int) (int64, error) {
	var newOffset int64
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekCurrent:
		newOffset = r.offset + offset
	case io.SeekEnd:
		newOffset = r.size + offset
	default:
		return 0, errors.New("phargo: invalid whence")
	}
	if newOffset < 0 {
		return 0, errors.New("phargo: negative seek position")
	}
	r.offset = newOffset
	return r.offset, nil
}

// OpenReaderAt opens an archive backed by an io.ReaderAt of the given
// total size, per Open.
func OpenReaderAt(r io.ReaderAt, size int64, opts Options, idx FileIndex) (*Reader, error) {
	return Open(newReaderAtSeeker(r, size), opts, idx)
}
