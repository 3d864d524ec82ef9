package phargo

import (
	"hash/crc32"
	"io"
	"io/fs"
	"time"
)

// phargoWriter is the shared mutable state behind the staged writer
// types below. Each stage (WriterNeedStub, WriterNeedAlias, ...) wraps
// the same *phargoWriter and exposes only the methods valid for that
// point in the build, modeling the consuming state machine from a
// single shared struct rather than distinct value types per stage.
type phargoWriter struct {
	stream  io.ReadWriteSeeker
	sigKind SignatureKind

	manifestLenOffset int64
	afterManifestPos  int64
	globalFlags       uint32

	entries  []pendingEntry
	fedCount int
	poisoned bool
}

type pendingEntry struct {
	uncompressedSizeOffset int64 // offset of the reserved uncompressed_size field
	compressedSizeOffset   int64 // offset of the reserved compressed_size field; crc32 follows immediately
	compression            CompressionKind
	level                  int
}

// WriterNeedStub is the initial writer stage: it accepts exactly one
// stub() call before advancing.
type WriterNeedStub struct{ pw *phargoWriter }

// WriterNeedAlias accepts either an alias or, as a shortcut, skips
// straight to global metadata with an empty alias.
type WriterNeedAlias struct{ pw *phargoWriter }

// WriterNeedGlobalMeta accepts the archive-wide metadata blob.
type WriterNeedGlobalMeta struct{ pw *phargoWriter }

// WriterNeedEntries accepts zero or more entry declarations, then a
// contents() call to close out the manifest.
type WriterNeedEntries struct{ pw *phargoWriter }

// WriterContents accepts one feed() call per declared entry, in
// declaration order; the last feed also writes the signature trailer
// (with no declared entries, Contents has already written it).
type WriterContents struct{ pw *phargoWriter }

// Create begins writing a new phar archive to w, which must support
// reading, writing, and seeking (the signature pass re-reads everything
// already written). sigKind selects the digest algorithm for the
// trailer; every archive this writer produces is signed.
func Create(w io.ReadWriteSeeker, sigKind SignatureKind) *WriterNeedStub {
	return &WriterNeedStub{pw: &phargoWriter{stream: w, sigKind: sigKind}}
}

// Stub writes the stub bytes verbatim (the caller is responsible for
// ending them with the literal __HALT_COMPILER(); ?>\r\n terminator)
// and reserves the fixed manifest header fields that can't be filled
// in until later: manifest_length, num_files, and global_flags.
// api_version is written immediately since it never changes.
func (s *WriterNeedStub) Stub(stub []byte) (*WriterNeedAlias, error) {
	pw := s.pw
	if _, err := pw.stream.Write(stub); err != nil {
		return nil, newWriteErr(ErrWriteIO, err)
	}

	pos, err := pw.stream.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, newWriteErr(ErrWriteIO, err)
	}
	pw.manifestLenOffset = pos

	if err := writeU32(pw.stream, 0); err != nil { // manifest_length placeholder
		return nil, newWriteErr(ErrWriteIO, err)
	}
	if err := writeU32(pw.stream, 0); err != nil { // num_files placeholder
		return nil, newWriteErr(ErrWriteIO, err)
	}
	if err := writeU16(pw.stream, apiVersion); err != nil {
		return nil, newWriteErr(ErrWriteIO, err)
	}
	if err := writeU32(pw.stream, 0); err != nil { // global_flags placeholder
		return nil, newWriteErr(ErrWriteIO, err)
	}

	return &WriterNeedAlias{pw}, nil
}

// Alias writes the archive alias.
func (s *WriterNeedAlias) Alias(alias []byte) (*WriterNeedGlobalMeta, error) {
	if err := writeBstr(s.pw.stream, alias); err != nil {
		return nil, newWriteErr(ErrWriteIO, err)
	}
	return &WriterNeedGlobalMeta{s.pw}, nil
}

// Metadata writes an empty alias followed by the archive-wide metadata,
// skipping the explicit Alias() call.
func (s *WriterNeedAlias) Metadata(metadata []byte) (*WriterNeedEntries, error) {
	if err := writeBstr(s.pw.stream, nil); err != nil {
		return nil, newWriteErr(ErrWriteIO, err)
	}
	return (&WriterNeedGlobalMeta{s.pw}).Metadata(metadata)
}

// Metadata writes the archive-wide metadata blob.
func (s *WriterNeedGlobalMeta) Metadata(metadata []byte) (*WriterNeedEntries, error) {
	if uint64(len(metadata)) > 0xFFFFFFFF {
		return nil, newWriteErr(ErrMetadataTooLong, nil)
	}
	if err := writeBstr(s.pw.stream, metadata); err != nil {
		return nil, newWriteErr(ErrWriteIO, err)
	}
	return &WriterNeedEntries{s.pw}, nil
}

// Entry declares one member file's header. Its content must later be
// supplied via WriterContents.Feed, in the same order entries were
// declared here. level is the compression level (ignored for
// CompressionNone); pass 0 to use each backend's default.
func (s *WriterNeedEntries) Entry(name []byte, mode fs.FileMode, modTime time.Time, compression CompressionKind, level int, metadata []byte) (*WriterNeedEntries, error) {
	pw := s.pw
	if uint64(len(name)) > 0xFFFFFFFF {
		return nil, newWriteErr(ErrNameTooLong, nil)
	}
	if uint64(len(metadata)) > 0xFFFFFFFF {
		return nil, newWriteErr(ErrMetadataTooLong, nil)
	}

	if err := writeBstr(pw.stream, name); err != nil {
		return nil, newWriteErr(ErrWriteIO, err)
	}

	uncompressedSizeOffset, err := pw.stream.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, newWriteErr(ErrWriteIO, err)
	}
	if err := writeU32(pw.stream, 0); err != nil { // uncompressed_size placeholder
		return nil, newWriteErr(ErrWriteIO, err)
	}
	if err := writeU32(pw.stream, uint32(modTime.Unix())); err != nil {
		return nil, newWriteErr(ErrWriteIO, err)
	}
	compressedSizeOffset, err := pw.stream.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, newWriteErr(ErrWriteIO, err)
	}
	if err := writeU32(pw.stream, 0); err != nil { // compressed_size placeholder
		return nil, newWriteErr(ErrWriteIO, err)
	}
	if err := writeU32(pw.stream, 0); err != nil { // crc32 placeholder
		return nil, newWriteErr(ErrWriteIO, err)
	}

	flags := uint32(mode.Perm()) & entryPermMask
	flags |= compression.bit()
	if err := writeU32(pw.stream, flags); err != nil {
		return nil, newWriteErr(ErrWriteIO, err)
	}
	if err := writeBstr(pw.stream, metadata); err != nil {
		return nil, newWriteErr(ErrWriteIO, err)
	}

	pw.globalFlags |= compression.bit()
	pw.entries = append(pw.entries, pendingEntry{
		uncompressedSizeOffset: uncompressedSizeOffset,
		compressedSizeOffset:   compressedSizeOffset,
		compression:            compression,
		level:                  level,
	})
	return s, nil
}

// Contents closes out entry declarations, patches manifest_length,
// num_files and global_flags back into the reserved header fields, and
// advances to feeding content. If no entries were declared, it also
// writes the signature trailer.
func (s *WriterNeedEntries) Contents() (*WriterContents, error) {
	pw := s.pw
	if uint64(len(pw.entries)) > 0xFFFFFFFF {
		return nil, newWriteErr(ErrTooManyEntries, nil)
	}

	afterPos, err := pw.stream.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, newWriteErr(ErrWriteIO, err)
	}
	manifestLength := afterPos - (pw.manifestLenOffset + 4)
	if manifestLength > manifestLengthCap {
		return nil, newWriteErr(ErrManifestTooLarge, nil)
	}

	if _, err := pw.stream.Seek(pw.manifestLenOffset, io.SeekStart); err != nil {
		return nil, newWriteErr(ErrWriteIO, err)
	}
	if err := writeU32(pw.stream, uint32(manifestLength)); err != nil {
		return nil, newWriteErr(ErrWriteIO, err)
	}
	if err := writeU32(pw.stream, uint32(len(pw.entries))); err != nil {
		return nil, newWriteErr(ErrWriteIO, err)
	}
	if _, err := pw.stream.Seek(2, io.SeekCurrent); err != nil { // api_version, already correct
		return nil, newWriteErr(ErrWriteIO, err)
	}
	if err := writeU32(pw.stream, pw.globalFlags|globalFlagSignature); err != nil {
		return nil, newWriteErr(ErrWriteIO, err)
	}

	if _, err := pw.stream.Seek(afterPos, io.SeekStart); err != nil {
		return nil, newWriteErr(ErrWriteIO, err)
	}
	pw.afterManifestPos = afterPos

	if len(pw.entries) == 0 {
		// No Feed call follows, so the signature trailer is written here.
		if err := pw.writeSignature(); err != nil {
			return nil, err
		}
	}

	return &WriterContents{pw}, nil
}

// countWriter counts bytes written to it without storing them.
type countWriter struct{ n int64 }

func (c *countWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

// Feed streams one member's uncompressed content, compressing it per
// that entry's declared kind and back-patching its reserved
// uncompressed_size, compressed_size, and crc32 fields. Once every
// declared entry has been fed, this call also writes the signature
// trailer. Calling Feed more times than entries were declared returns
// ErrFeedTooMany without disturbing writer state; calling it again
// after any Feed call has failed returns ErrFeedAfterError.
func (s *WriterContents) Feed(content io.Reader) (*WriterContents, error) {
	pw := s.pw
	if pw.poisoned {
		return s, newWriteErr(ErrFeedAfterError, nil)
	}
	if pw.fedCount >= len(pw.entries) {
		return s, newWriteErr(ErrFeedTooMany, nil)
	}

	entry := pw.entries[pw.fedCount]
	if err := pw.feedOne(entry, content); err != nil {
		pw.poisoned = true
		return s, err
	}
	pw.fedCount++

	if pw.fedCount == len(pw.entries) {
		if err := pw.writeSignature(); err != nil {
			pw.poisoned = true
			return s, err
		}
	}
	return s, nil
}

func (pw *phargoWriter) feedOne(entry pendingEntry, content io.Reader) error {
	start, err := pw.stream.Seek(0, io.SeekCurrent)
	if err != nil {
		return newWriteErr(ErrWriteIO, err)
	}

	crc := crc32.NewIEEE()
	var uncompressed countWriter
	tee := io.TeeReader(content, io.MultiWriter(crc, &uncompressed))

	cw, err := compressWriter(entry.compression, entry.level, pw.stream)
	if err != nil {
		return err
	}
	if _, err := io.Copy(cw, tee); err != nil {
		return newWriteErr(ErrWriteIO, err)
	}
	if err := cw.Close(); err != nil {
		return newWriteErr(ErrWriteIO, err)
	}

	end, err := pw.stream.Seek(0, io.SeekCurrent)
	if err != nil {
		return newWriteErr(ErrWriteIO, err)
	}
	compressedSize := end - start
	if uncompressed.n > 0xFFFFFFFF || compressedSize > 0xFFFFFFFF {
		return newWriteErr(ErrContentTooLarge, nil)
	}

	if _, err := pw.stream.Seek(entry.uncompressedSizeOffset, io.SeekStart); err != nil {
		return newWriteErr(ErrWriteIO, err)
	}
	if err := writeU32(pw.stream, uint32(uncompressed.n)); err != nil {
		return newWriteErr(ErrWriteIO, err)
	}

	if _, err := pw.stream.Seek(entry.compressedSizeOffset, io.SeekStart); err != nil {
		return newWriteErr(ErrWriteIO, err)
	}
	if err := writeU32(pw.stream, uint32(compressedSize)); err != nil {
		return newWriteErr(ErrWriteIO, err)
	}
	if err := writeU32(pw.stream, crc.Sum32()); err != nil {
		return newWriteErr(ErrWriteIO, err)
	}

	if _, err := pw.stream.Seek(end, io.SeekStart); err != nil {
		return newWriteErr(ErrWriteIO, err)
	}
	return nil
}

func (pw *phargoWriter) writeSignature() error {
	endOfPayload, err := pw.stream.Seek(0, io.SeekCurrent)
	if err != nil {
		return newWriteErr(ErrWriteIO, err)
	}

	engine, err := newSignatureEngine(pw.sigKind)
	if err != nil {
		return newWriteErr(ErrWriteIO, err)
	}

	if _, err := pw.stream.Seek(0, io.SeekStart); err != nil {
		return newWriteErr(ErrWriteIO, err)
	}
	if _, err := io.CopyN(engine, pw.stream, endOfPayload); err != nil {
		return newWriteErr(ErrWriteIO, err)
	}
	digest := engine.Finalize()

	if _, err := pw.stream.Seek(endOfPayload, io.SeekStart); err != nil {
		return newWriteErr(ErrWriteIO, err)
	}
	if _, err := pw.stream.Write(digest); err != nil {
		return newWriteErr(ErrWriteIO, err)
	}
	if err := writeU32(pw.stream, uint32(pw.sigKind)); err != nil {
		return newWriteErr(ErrWriteIO, err)
	}
	if _, err := pw.stream.Write(pharTerminator); err != nil {
		return newWriteErr(ErrWriteIO, err)
	}
	return nil
}
