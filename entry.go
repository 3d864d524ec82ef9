package phargo

import (
	"io"
	"io/fs"
	"path"
	"time"
)

const (
	entryPermMask    = 0x000001FF
	entryPermMaskUsr = 0x000001C0
	entryPermShftUsr = 6
	entryPermMaskGrp = 0x00000038
	entryPermShftGrp = 3
	entryPermMaskOth = 0x00000007
)

// Entry is one parsed per-file manifest record. Name and Metadata are
// deferred Sections: if the owning reader was configured not to cache
// them, accessing their bytes seeks back into the backing stream.
type Entry struct {
	Name             Section
	UncompressedSize uint32
	Timestamp        uint32 // raw u32 seconds, wrapping for pre-epoch times; see ModTime
	CompressedSize   uint32
	CRC32            uint32
	Flags            uint32
	Metadata         Section

	// contentStart is not assigned anywhere in this package and stays
	// zero; content ranges are tracked by the FileIndex instead.
	contentStart int64
}

// ModTime interprets Timestamp as Unix seconds.
func (e *Entry) ModTime() time.Time {
	return time.Unix(int64(int32(e.Timestamp)), 0)
}

// Mode returns the POSIX permission bits stored in the low 9 bits of Flags.
func (e *Entry) Mode() fs.FileMode {
	perm := e.Flags & entryPermMask
	usr := (perm & entryPermMaskUsr) >> entryPermShftUsr
	grp := (perm & entryPermMaskGrp) >> entryPermShftGrp
	oth := perm & entryPermMaskOth
	return fs.FileMode(usr<<6 | grp<<3 | oth)
}

// Compression reports which compression kind this entry's content uses.
func (e *Entry) Compression() CompressionKind {
	return compressionFromFlags(e.Flags)
}

// entryFileInfo adapts an Entry to fs.FileInfo, using its materialized name.
type entryFileInfo struct {
	name string
	e    *Entry
}

func (fi entryFileInfo) Name() string       { return path.Base(fi.name) }
func (fi entryFileInfo) Size() int64        { return int64(fi.e.UncompressedSize) }
func (fi entryFileInfo) ModTime() time.Time { return fi.e.ModTime() }
func (fi entryFileInfo) IsDir() bool        { return false }
func (fi entryFileInfo) Sys() any           { return fi.e }
func (fi entryFileInfo) Mode() fs.FileMode  { return fi.e.Mode() }

// FileInfo returns an fs.FileInfo for the entry, given its already
// materialized name bytes.
func (e *Entry) FileInfo(name []byte) fs.FileInfo {
	return entryFileInfo{name: string(name), e: e}
}

// parseEntry reads one manifest entry from r, which must be positioned
// at the start of the entry's length-prefixed name. cacheName and
// cacheMetadata control whether the corresponding Section materializes
// eagerly (required by some FileIndex variants) or stays offset-backed.
//
// r must support io.Seeker so offset-backed Sections can record their
// (start,end) without reading the bytes.
func parseEntry(r interface {
	io.Reader
	io.Seeker
}, cacheName, cacheMetadata bool, spill *spillSink) (*Entry, error) {
	nameLen, err := readU32(r)
	if err != nil {
		return nil, err
	}
	namePos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	name := newSection(cacheName, namePos, spill)
	if err := name.readFrom(r, int64(nameLen)); err != nil {
		return nil, err
	}

	uncompressedSize, err := readU32(r)
	if err != nil {
		return nil, err
	}
	timestamp, err := readU32(r)
	if err != nil {
		return nil, err
	}
	compressedSize, err := readU32(r)
	if err != nil {
		return nil, err
	}
	crc32, err := readU32(r)
	if err != nil {
		return nil, err
	}
	flags, err := readU32(r)
	if err != nil {
		return nil, err
	}

	metaLen, err := readU32(r)
	if err != nil {
		return nil, err
	}
	metaPos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	metadata := newSection(cacheMetadata, metaPos, spill)
	if err := metadata.readFrom(r, int64(metaLen)); err != nil {
		return nil, err
	}

	return &Entry{
		Name:             name,
		UncompressedSize: uncompressedSize,
		Timestamp:        timestamp,
		CompressedSize:   compressedSize,
		CRC32:            crc32,
		Flags:            flags,
		Metadata:         metadata,
	}, nil
}
