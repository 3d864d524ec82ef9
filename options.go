package phargo

import "io"

// Options configures how Open parses an archive. The zero value skips
// every cache and signature verification; use DefaultOptions for the
// cache-and-verify-everything behavior the teacher's reader always had,
// or set fields individually for a leaner reader.
type Options struct {
	// CacheStub materializes the stub bytes in memory instead of
	// leaving them offset-backed.
	CacheStub bool
	// CacheAlias materializes the alias bytes in memory.
	CacheAlias bool
	// CacheMetadata materializes the global metadata bytes in memory.
	CacheMetadata bool
	// VerifySignature runs the streaming signature verification
	// protocol described in §4.7. Disabling it skips reading and
	// hashing the payload region entirely.
	VerifySignature bool
	// Buffer controls where cached Sections are held during parsing.
	Buffer BufferPolicy
}

// DefaultOptions returns the Options every field of which defaults to
// true/verifying, matching the reference parse protocol.
func DefaultOptions() Options {
	return Options{
		CacheStub:       true,
		CacheAlias:      true,
		CacheMetadata:   true,
		VerifySignature: true,
	}
}

// BufferKind selects how a Reader buffers large deferred sections.
type BufferKind int

const (
	// BufferNone uses no side file: like BufferMemory, sections that
	// the Cache* options or the FileIndex ask to cache are held in
	// memory, and the others stay offset-backed.
	BufferNone BufferKind = iota
	// BufferMemory materializes sections into an in-process byte slice.
	BufferMemory
	// BufferFiles spills sections to a temporary file obtained from Factory.
	BufferFiles
)

// BufferPolicy is a caller-supplied strategy for buffering cached
// sections, regardless of their size; it is strictly a space/time
// tradeoff and never changes parsed byte content.
type BufferPolicy struct {
	Kind BufferKind
	// Factory creates a temporary read/write/seek file when Kind is
	// BufferFiles; it is called once per Open. If it is nil, cached
	// sections are held in memory. Ignored for other kinds.
	Factory func() (io.ReadWriteSeeker, error)
}
