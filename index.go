package phargo

import (
	"io"
	"sort"
)

// FileIndex is the polymorphic storage strategy a Reader uses to track
// member files, trading memory for access patterns. Concrete variants
// below realize a fixed, closed set of choices rather than an
// open-ended plugin surface: callers pick a constructor, not a type to
// implement.
type FileIndex interface {
	// ScanFiles reports whether the reader should parse per-entry
	// manifest records at all during the initial pass.
	ScanFiles() bool
	// RequiresName forces the entry's name Section to be cached.
	RequiresName() bool
	// RequiresMetadata forces the entry's metadata Section to be cached.
	RequiresMetadata() bool
	// Init is called once the entry count and the manifest's entry
	// table offset are known, before any per-entry scan happens. It
	// lets index variants that skip scanning (NoIndex) still learn
	// enough to support later on-demand iteration.
	Init(numFiles uint32, entryTableOffset int64)
	// FeedEntry is called once per entry during manifest parse, only
	// when ScanFiles returns true.
	FeedEntry(offset int64, e *Entry) error
	// EndOfHeader is called once the first payload byte's offset is known.
	EndOfHeader(offset int64)
	// ForEachFile iterates member files in this index's order, calling
	// fn with each file's name and a reader over its decompressed content.
	ForEachFile(r io.ReadSeeker, fn func(name []byte, content io.Reader) error) error
}

// RandomAccessIndex is the subfamily of FileIndex that supports looking
// up a member's content range by name.
type RandomAccessIndex interface {
	FileIndex
	// Lookup returns the [start,end) byte range of the named member's
	// (possibly compressed) content within the backing stream, and
	// whether a member with that name exists.
	Lookup(name []byte) (start, end int64, ok bool)
}

// baseIndex provides the no-op defaults most FileIndex variants share.
type baseIndex struct{}

func (baseIndex) RequiresName() bool     { return false }
func (baseIndex) RequiresMetadata() bool { return false }
func (baseIndex) Init(uint32, int64)     {}

// --- NoIndex --------------------------------------------------------

// NoIndex records only the file count and the manifest's entry-table
// offset, re-scanning the manifest on demand for iteration. It uses
// constant memory regardless of archive size, at the cost of
// re-parsing every entry header on each ForEachFile call.
type NoIndex struct {
	baseIndex
	numFiles         uint32
	entryTableOffset int64
	contentOffset    int64
}

func NewNoIndex() *NoIndex { return &NoIndex{} }

func (idx *NoIndex) ScanFiles() bool { return false }

func (idx *NoIndex) Init(numFiles uint32, entryTableOffset int64) {
	idx.numFiles = numFiles
	idx.entryTableOffset = entryTableOffset
}

func (idx *NoIndex) FeedEntry(int64, *Entry) error { return nil }

func (idx *NoIndex) EndOfHeader(offset int64) { idx.contentOffset = offset }

func (idx *NoIndex) ForEachFile(r io.ReadSeeker, fn func(name []byte, content io.Reader) error) error {
	manifestPos := idx.entryTableOffset
	contentPos := idx.contentOffset

	for i := uint32(0); i < idx.numFiles; i++ {
		if _, err := r.Seek(manifestPos, io.SeekStart); err != nil {
			return err
		}
		entry, err := parseEntry(r, true, false, nil)
		if err != nil {
			return err
		}
		manifestPos, err = r.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}

		name, err := entry.Name.AsMemory(r)
		if err != nil {
			return err
		}
		if _, err := r.Seek(contentPos, io.SeekStart); err != nil {
			return err
		}
		content, err := decompressReader(entry.Flags, io.LimitReader(r, int64(entry.CompressedSize)))
		if err != nil {
			return err
		}
		if err := fn(name, content); err != nil {
			return err
		}
		contentPos += int64(entry.CompressedSize)
	}
	return nil
}

// --- OffsetOnlyIndex --------------------------------------------------

type offsetEntry struct {
	name      Section
	flags     uint32
	endOffset int64
}

// OffsetOnlyIndex stores an ordered list of (name, flags, end-offset)
// triples, one per entry, with end offsets measured from the start of
// the payload region, using O(n*m) memory where m is 1 if names
// are not cached or the name length if they are. Supports sequential
// iteration only, not random lookup.
type OffsetOnlyIndex struct {
	baseIndex
	contentOffset int64
	entries       []offsetEntry
}

func NewOffsetOnlyIndex() *OffsetOnlyIndex { return &OffsetOnlyIndex{} }

func (idx *OffsetOnlyIndex) ScanFiles() bool { return true }

func (idx *OffsetOnlyIndex) FeedEntry(_ int64, e *Entry) error {
	var prev int64
	if n := len(idx.entries); n > 0 {
		prev = idx.entries[n-1].endOffset
	}
	idx.entries = append(idx.entries, offsetEntry{
		name:      e.Name,
		flags:     e.Flags,
		endOffset: prev + int64(e.CompressedSize),
	})
	return nil
}

func (idx *OffsetOnlyIndex) EndOfHeader(offset int64) { idx.contentOffset = offset }

func (idx *OffsetOnlyIndex) ForEachFile(r io.ReadSeeker, fn func(name []byte, content io.Reader) error) error {
	var start int64
	for _, e := range idx.entries {
		name, err := e.name.AsMemory(r)
		if err != nil {
			return err
		}
		if _, err := r.Seek(idx.contentOffset+start, io.SeekStart); err != nil {
			return err
		}
		content, err := decompressReader(e.flags, io.LimitReader(r, e.endOffset-start))
		if err != nil {
			return err
		}
		if err := fn(name, content); err != nil {
			return err
		}
		start = e.endOffset
	}
	return nil
}

// --- generic keyed record store --------------------------------------

// recordStore is the shared generic core behind the name-keyed and
// metadata-keyed index variants: a hashed backing (arbitrary iteration
// order, like a Go map) or an ordered backing (lexicographic iteration
// by name), chosen at construction.
type recordStore[V any] struct {
	ordered bool
	m       map[string]V
	keys    []string // only maintained when ordered
}

func newRecordStore[V any](ordered bool) *recordStore[V] {
	return &recordStore[V]{ordered: ordered, m: make(map[string]V)}
}

// set inserts or overwrites the value for name. Duplicate names are
// "last wins", matching unordered-insertion semantics.
func (s *recordStore[V]) set(name string, v V) {
	if _, exists := s.m[name]; !exists && s.ordered {
		i := sort.SearchStrings(s.keys, name)
		s.keys = append(s.keys, "")
		copy(s.keys[i+1:], s.keys[i:])
		s.keys[i] = name
	}
	s.m[name] = v
}

func (s *recordStore[V]) get(name string) (V, bool) {
	v, ok := s.m[name]
	return v, ok
}

// forEach visits every record. Order is lexicographic by name if the
// store is ordered, otherwise Go's unspecified map iteration order.
func (s *recordStore[V]) forEach(fn func(name string, v V) error) error {
	if s.ordered {
		for _, k := range s.keys {
			if err := fn(k, s.m[k]); err != nil {
				return err
			}
		}
		return nil
	}
	for k, v := range s.m {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

// --- NameHashIndex / NameOrderedIndex ---------------------------------

type nameRecord struct {
	flags      uint32
	start, end int64
}

// NameIndex indexes member files by name for random-access lookup,
// keeping only (flags, content-range) per file, not the full Entry.
//
// FeedEntry runs before the content-section offset is known (entries
// are parsed while still inside the manifest), so ranges are first
// recorded relative to the start of the payload region and then
// shifted to absolute stream offsets once EndOfHeader reports where
// that region begins.
type NameIndex struct {
	baseIndex
	store      *recordStore[nameRecord]
	lastOffset int64
}

// NewNameHashIndex returns a NameIndex whose iteration order is the
// unspecified order of a Go map.
func NewNameHashIndex() *NameIndex { return &NameIndex{store: newRecordStore[nameRecord](false)} }

// NewNameOrderedIndex returns a NameIndex that iterates in lexicographic
// name order.
func NewNameOrderedIndex() *NameIndex { return &NameIndex{store: newRecordStore[nameRecord](true)} }

func (idx *NameIndex) ScanFiles() bool    { return true }
func (idx *NameIndex) RequiresName() bool { return true }

func (idx *NameIndex) EndOfHeader(offset int64) {
	_ = idx.store.forEach(func(name string, rec nameRecord) error {
		rec.start += offset
		rec.end += offset
		idx.store.set(name, rec)
		return nil
	})
}

func (idx *NameIndex) FeedEntry(_ int64, e *Entry) error {
	name, err := e.Name.AsMemory(nil)
	if err != nil {
		return err
	}
	start := idx.lastOffset
	end := start + int64(e.CompressedSize)
	idx.lastOffset = end
	idx.store.set(string(name), nameRecord{flags: e.Flags, start: start, end: end})
	return nil
}

func (idx *NameIndex) Lookup(name []byte) (start, end int64, ok bool) {
	rec, ok := idx.store.get(string(name))
	if !ok {
		return 0, 0, false
	}
	return rec.start, rec.end, true
}

// Flags returns the on-wire entry flags of the named member, if present.
func (idx *NameIndex) Flags(name []byte) (uint32, bool) {
	rec, ok := idx.store.get(string(name))
	if !ok {
		return 0, false
	}
	return rec.flags, true
}

func (idx *NameIndex) ForEachFile(r io.ReadSeeker, fn func(name []byte, content io.Reader) error) error {
	return idx.store.forEach(func(name string, rec nameRecord) error {
		if _, err := r.Seek(rec.start, io.SeekStart); err != nil {
			return err
		}
		content, err := decompressReader(rec.flags, io.LimitReader(r, rec.end-rec.start))
		if err != nil {
			return err
		}
		return fn([]byte(name), content)
	})
}

// --- MetadataHashIndex / MetadataOrderedIndex -------------------------

type metaRecord struct {
	entry      *Entry
	start, end int64
}

// MetadataIndex indexes member files by name for random-access lookup,
// retaining the full Entry record (including metadata) for each file.
//
// Like NameIndex, FeedEntry records ranges relative to the start of the
// payload region; EndOfHeader shifts every stored range to an absolute
// stream offset once that region's start is known.
type MetadataIndex struct {
	baseIndex
	store      *recordStore[metaRecord]
	lastOffset int64
}

// NewMetadataHashIndex returns a MetadataIndex with Go-map iteration order.
func NewMetadataHashIndex() *MetadataIndex {
	return &MetadataIndex{store: newRecordStore[metaRecord](false)}
}

// NewMetadataOrderedIndex returns a MetadataIndex with lexicographic
// name iteration order.
func NewMetadataOrderedIndex() *MetadataIndex {
	return &MetadataIndex{store: newRecordStore[metaRecord](true)}
}

func (idx *MetadataIndex) ScanFiles() bool        { return true }
func (idx *MetadataIndex) RequiresName() bool     { return true }
func (idx *MetadataIndex) RequiresMetadata() bool { return true }

func (idx *MetadataIndex) EndOfHeader(offset int64) {
	_ = idx.store.forEach(func(name string, rec metaRecord) error {
		rec.start += offset
		rec.end += offset
		idx.store.set(name, rec)
		return nil
	})
}

func (idx *MetadataIndex) FeedEntry(_ int64, e *Entry) error {
	name, err := e.Name.AsMemory(nil)
	if err != nil {
		return err
	}
	start := idx.lastOffset
	end := start + int64(e.CompressedSize)
	idx.lastOffset = end
	idx.store.set(string(name), metaRecord{entry: e, start: start, end: end})
	return nil
}

func (idx *MetadataIndex) Lookup(name []byte) (start, end int64, ok bool) {
	rec, ok := idx.store.get(string(name))
	if !ok {
		return 0, 0, false
	}
	return rec.start, rec.end, true
}

// Entry returns the full manifest Entry for name, if present.
func (idx *MetadataIndex) Entry(name []byte) (*Entry, bool) {
	rec, ok := idx.store.get(string(name))
	if !ok {
		return nil, false
	}
	return rec.entry, true
}

func (idx *MetadataIndex) ForEachFile(r io.ReadSeeker, fn func(name []byte, content io.Reader) error) error {
	return idx.store.forEach(func(name string, rec metaRecord) error {
		if _, err := r.Seek(rec.start, io.SeekStart); err != nil {
			return err
		}
		content, err := decompressReader(rec.entry.Flags, io.LimitReader(r, rec.end-rec.start))
		if err != nil {
			return err
		}
		return fn([]byte(name), content)
	})
}
