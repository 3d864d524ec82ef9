package phargo

import "io"

// spillSink is the BufferFiles backing store: a single append-only file
// shared by every cached Section in one Open call, so a caller-supplied
// Factory is invoked once per parse rather than once per section. pos
// tracks the next append offset; readRange reseeks the file for
// unrelated reads, so append always reseeks back to pos first.
type spillSink struct {
	file io.ReadWriteSeeker
	pos  int64
}

func (s *spillSink) append(p []byte) (start, end int64, err error) {
	if _, err := s.file.Seek(s.pos, io.SeekStart); err != nil {
		return 0, 0, err
	}
	if _, err := s.file.Write(p); err != nil {
		return 0, 0, err
	}
	start = s.pos
	s.pos += int64(len(p))
	return start, s.pos, nil
}

func (s *spillSink) readRange(start, end int64) ([]byte, error) {
	buf := make([]byte, end-start)
	if _, err := s.file.Seek(start, io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(s.file, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// newSpillSink builds the shared spillSink for one Open call, if opts
// requests BufferFiles and supplies a Factory. Returns a nil sink
// otherwise, meaning "cache to memory" for any Section that asks to be
// cached at all.
func newSpillSink(opts Options) (*spillSink, error) {
	if opts.Buffer.Kind != BufferFiles || opts.Buffer.Factory == nil {
		return nil, nil
	}
	f, err := opts.Buffer.Factory()
	if err != nil {
		return nil, err
	}
	return &spillSink{file: f}, nil
}

// Section is a deferred byte-range descriptor: a fully materialized
// in-memory buffer, a range spilled to a shared side file (see
// spillSink, selected by BufferPolicy), or an (start, end) offset pair
// into the original backing stream. It lets the reader avoid loading
// large stub, alias, metadata or name blobs until the caller actually
// asks for them.
type Section struct {
	cached     []byte
	cachedSet  bool
	spill      *spillSink
	start, end int64
}

// newSection creates a Section that starts empty at the given stream
// offset. If cache is true, bytes fed via readFrom accumulate either in
// a shared spill file (when spill is non-nil) or in memory; otherwise
// only the offset range into the original stream is tracked.
func newSection(cache bool, start int64, spill *spillSink) Section {
	if cache && spill != nil {
		return Section{spill: spill}
	}
	if cache {
		return Section{cached: []byte{}, cachedSet: true, start: start, end: start}
	}
	return Section{start: start, end: start}
}

// cachedSection wraps an already fully-known buffer.
func cachedSection(b []byte) Section {
	return Section{cached: b, cachedSet: true}
}

// rangeSection builds an offset-backed Section over [start, end) without
// touching any stream; used when the bytes have already been read once
// (e.g. scanning the stub terminator) but caching was not requested.
func rangeSection(start, end int64) Section {
	return Section{start: start, end: end}
}

// readFrom reads exactly n bytes from r, either buffering them (if the
// Section is cached) or seeking past them (if backed by a Seeker) / or
// discarding them (if r is not seekable).
func (s *Section) readFrom(r io.Reader, n int64) error {
	if s.spill != nil {
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		start, end, err := s.spill.append(buf)
		if err != nil {
			return err
		}
		s.start, s.end = start, end
		return nil
	}
	if s.cachedSet {
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		s.cached = append(s.cached, buf...)
		return nil
	}
	if seeker, ok := r.(io.Seeker); ok {
		if _, err := seeker.Seek(n, io.SeekCurrent); err != nil {
			return err
		}
	} else if _, err := io.CopyN(io.Discard, r, n); err != nil {
		return err
	}
	s.end += n
	return nil
}

// Len reports the byte length of the section.
func (s Section) Len() int64 {
	if s.cachedSet {
		return int64(len(s.cached))
	}
	return s.end - s.start
}

// CopyTo writes the section's bytes to w, seeking back into src (or the
// spill file) if the section is not held in memory.
func (s Section) CopyTo(src io.ReadSeeker, w io.Writer) error {
	if s.cachedSet {
		_, err := w.Write(s.cached)
		return err
	}
	if s.spill != nil {
		buf, err := s.spill.readRange(s.start, s.end)
		if err != nil {
			return err
		}
		_, err = w.Write(buf)
		return err
	}
	if _, err := src.Seek(s.start, io.SeekStart); err != nil {
		return err
	}
	_, err := io.CopyN(w, src, s.end-s.start)
	return err
}

// AsMemory returns the section's bytes, materializing from the spill
// file or by seeking back into src and reading if the section was not
// cached in memory while parsing.
func (s Section) AsMemory(src io.ReadSeeker) ([]byte, error) {
	if s.cachedSet {
		return s.cached, nil
	}
	if s.spill != nil {
		return s.spill.readRange(s.start, s.end)
	}
	buf := make([]byte, s.end-s.start)
	if _, err := src.Seek(s.start, io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(src, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
