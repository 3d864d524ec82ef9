package phargo

import (
	"bytes"
	"io"
	"os"
)

var stubTerminator = []byte("__HALT_COMPILER(); ?>\r\n")
var stubPrefix = []byte("<?php")

// Reader parses an existing phar archive and exposes its stub, alias,
// metadata, and member files through the FileIndex it was opened with.
type Reader struct {
	stream io.ReadSeeker

	Stub       Section
	NumFiles   uint32
	APIVersion uint16
	Signed     bool
	Alias      Section
	Metadata   Section

	index FileIndex
}

// OpenFile opens a phar archive from an *os.File, wrapping Open.
func OpenFile(file *os.File, opts Options, idx FileIndex) (*Reader, error) {
	return Open(file, opts, idx)
}

// Open parses stream as a phar archive according to opts, using idx to
// track member files. idx must be a fresh, unused FileIndex value; the
// returned Reader takes ownership of both idx and stream.
func Open(stream io.ReadSeeker, opts Options, idx FileIndex) (*Reader, error) {
	var engine signatureEngine = nullSignatureEngine{}
	var expectedDigest []byte
	var digestOffset int64
	verifying := opts.VerifySignature

	if verifying {
		end, err := stream.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, newOpenErr(ErrIO, err)
		}

		magic := make([]byte, 4)
		if _, err := stream.Seek(end-4, io.SeekStart); err != nil {
			return nil, newOpenErr(ErrIO, err)
		}
		if _, err := io.ReadFull(stream, magic); err != nil {
			return nil, newOpenErr(ErrIO, err)
		}
		if !bytes.Equal(magic, pharTerminator) {
			return nil, newOpenErr(ErrBrokenSignature, nil)
		}

		if _, err := stream.Seek(end-8, io.SeekStart); err != nil {
			return nil, newOpenErr(ErrIO, err)
		}
		kindID, err := readU32(stream)
		if err != nil {
			return nil, newOpenErr(ErrIO, err)
		}
		kind, ok := signatureKindFromID(kindID)
		if !ok {
			return nil, newOpenErr(ErrUnknownSignatureKind, nil)
		}
		engine, err = newSignatureEngine(kind)
		if err != nil {
			return nil, err
		}

		digestOffset = end - 8 - int64(kind.DigestSize())
		if digestOffset < 0 {
			return nil, newOpenErr(ErrBrokenSignature, nil)
		}
		expectedDigest = make([]byte, kind.DigestSize())
		if _, err := stream.Seek(digestOffset, io.SeekStart); err != nil {
			return nil, newOpenErr(ErrIO, err)
		}
		if _, err := io.ReadFull(stream, expectedDigest); err != nil {
			return nil, newOpenErr(ErrIO, err)
		}
	}

	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return nil, newOpenErr(ErrIO, err)
	}
	tee := newTeeReader(stream, engine)

	spill, err := newSpillSink(opts)
	if err != nil {
		return nil, newOpenErr(ErrIO, err)
	}

	stubBytes, err := scanUntil(tee, stubTerminator)
	if err != nil {
		return nil, newOpenErr(ErrNoHaltCompiler, err)
	}
	if !bytes.HasPrefix(stubBytes, stubPrefix) {
		return nil, newOpenErr(ErrIncorrectStubStart, nil)
	}
	var stubSection Section
	switch {
	case opts.CacheStub && spill != nil:
		stubSection = newSection(true, 0, spill)
		if err := stubSection.readFrom(bytes.NewReader(stubBytes), int64(len(stubBytes))); err != nil {
			return nil, newOpenErr(ErrIO, err)
		}
	case opts.CacheStub:
		stubSection = cachedSection(stubBytes)
	default:
		stubSection = rangeSection(0, int64(len(stubBytes)))
	}

	manifestLength, err := readU32(tee)
	if err != nil {
		return nil, newOpenErr(ErrIO, err)
	}
	if int64(manifestLength) > manifestLengthCap {
		return nil, newOpenErr(ErrManifestTooLong, nil)
	}
	payloadStart := tee.pos + int64(manifestLength)

	header, err := parseManifestHeader(tee, opts.CacheAlias, opts.CacheMetadata, spill)
	if err != nil {
		return nil, newOpenErr(ErrIO, err)
	}

	entryTableOffset := tee.pos
	idx.Init(header.NumFiles, entryTableOffset)

	if idx.ScanFiles() {
		cacheName := idx.RequiresName()
		cacheMeta := idx.RequiresMetadata()
		for i := uint32(0); i < header.NumFiles; i++ {
			offset := tee.pos
			entry, err := parseEntry(tee, cacheName, cacheMeta, spill)
			if err != nil {
				return nil, newOpenErr(ErrIO, err)
			}
			if err := idx.FeedEntry(offset, entry); err != nil {
				return nil, newOpenErr(ErrIO, err)
			}
		}
	} else {
		// No per-entry scan happened, so tee.pos is still sitting at the
		// entry table rather than the payload: discard (while still
		// hashing) through the entry records to reach the true payload
		// start, the same offset the scanning branch above would have
		// landed on.
		if _, err := io.CopyN(io.Discard, tee, payloadStart-tee.pos); err != nil {
			return nil, newOpenErr(ErrIO, err)
		}
	}

	contentStart := tee.pos
	idx.EndOfHeader(contentStart)

	if verifying {
		payloadLen := digestOffset - contentStart
		if payloadLen < 0 {
			return nil, newOpenErr(ErrContentTooLong, nil)
		}
		if _, err := io.CopyN(io.Discard, tee, payloadLen); err != nil {
			return nil, newOpenErr(ErrIO, err)
		}

		got := engine.Finalize()
		if !verifyDigest(got, expectedDigest) {
			return nil, newOpenErr(ErrBrokenSignature, nil)
		}
	}

	return &Reader{
		stream:     stream,
		Stub:       stubSection,
		NumFiles:   header.NumFiles,
		APIVersion: header.APIVersion,
		Signed:     header.IsSigned(),
		Alias:      header.Alias,
		Metadata:   header.GlobalMeta,
		index:      idx,
	}, nil
}

// StubBytes materializes the stub section.
func (r *Reader) StubBytes() ([]byte, error) { return r.Stub.AsMemory(r.stream) }

// AliasBytes materializes the alias section.
func (r *Reader) AliasBytes() ([]byte, error) { return r.Alias.AsMemory(r.stream) }

// MetadataBytes materializes the global metadata section.
func (r *Reader) MetadataBytes() ([]byte, error) { return r.Metadata.AsMemory(r.stream) }

// ForEachFile iterates member files in the order defined by the
// FileIndex this Reader was opened with, calling fn with each file's
// name and a reader over its decompressed content.
func (r *Reader) ForEachFile(fn func(name []byte, content io.Reader) error) error {
	return r.index.ForEachFile(r.stream, fn)
}

// Lookup returns the content byte range of the named member, if the
// Reader's FileIndex supports random access and the name exists.
func (r *Reader) Lookup(name []byte) (start, end int64, ok bool) {
	ra, supported := r.index.(RandomAccessIndex)
	if !supported {
		return 0, 0, false
	}
	return ra.Lookup(name)
}

// Open returns a reader over the decompressed content of the named
// member, if the Reader's FileIndex supports random access and the
// name exists.
func (r *Reader) Open(name []byte) (io.Reader, error) {
	ra, supported := r.index.(RandomAccessIndex)
	if !supported {
		return nil, newOpenErr(ErrIO, errUnsupportedLookup)
	}
	start, end, ok := ra.Lookup(name)
	if !ok {
		return nil, newOpenErr(ErrIO, errMemberNotFound)
	}
	if _, err := r.stream.Seek(start, io.SeekStart); err != nil {
		return nil, newOpenErr(ErrIO, err)
	}

	var flags uint32
	switch idx := r.index.(type) {
	case *NameIndex:
		flags, _ = idx.Flags(name)
	case *MetadataIndex:
		if e, ok := idx.Entry(name); ok {
			flags = e.Flags
		}
	}
	return decompressReader(flags, io.LimitReader(r.stream, end-start))
}
