package phargo

import (
	"errors"
	"io"
	"io/fs"
	"strings"
	"time"
)

var fixedModTime = time.Unix(1_700_000_000, 0)

// memFile is a minimal in-memory io.ReadWriteSeeker backing the
// round-trip tests: writer output needs to be read back within the
// same process without touching disk.
type memFile struct {
	data []byte
	pos  int64
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = m.pos + offset
	case io.SeekEnd:
		newPos = int64(len(m.data)) + offset
	default:
		return 0, errors.New("memFile: invalid whence")
	}
	if newPos < 0 {
		return 0, errors.New("memFile: negative seek position")
	}
	m.pos = newPos
	return newPos, nil
}

const simpleStub = "<?php __HALT_COMPILER(); ?>\r\n"

type fixtureEntry struct {
	name        string
	mode        fs.FileMode
	compression CompressionKind
	level       int
	metadata    []byte
	content     string
}

func buildArchive(sig SignatureKind, globalMeta []byte, entries []fixtureEntry) (*memFile, error) {
	f := &memFile{}
	needAlias, err := Create(f, sig).Stub([]byte(simpleStub))
	if err != nil {
		return nil, err
	}
	needEntries, err := needAlias.Metadata(globalMeta)
	if err != nil {
		return nil, err
	}

	stage := needEntries
	for _, e := range entries {
		stage, err = stage.Entry([]byte(e.name), e.mode, fixedModTime, e.compression, e.level, e.metadata)
		if err != nil {
			return nil, err
		}
	}

	contents, err := stage.Contents()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		contents, err = contents.Feed(strings.NewReader(e.content))
		if err != nil {
			return nil, err
		}
	}
	return f, nil
}
