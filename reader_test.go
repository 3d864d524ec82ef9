package phargo

import (
	"io"
	"testing"
)

func TestOpenZeroEntryArchive(t *testing.T) {
	f, err := buildArchive(SignatureSHA256, []byte("s:3:\"met\";"), nil)
	if err != nil {
		t.Fatalf("build: %s", err)
	}

	r, err := Open(f, DefaultOptions(), NewNameOrderedIndex())
	if err != nil {
		t.Fatalf("open: %s", err)
	}
	if r.NumFiles != 0 {
		t.Fatalf("want 0 files, got %d", r.NumFiles)
	}
	meta, err := r.MetadataBytes()
	if err != nil {
		t.Fatalf("metadata: %s", err)
	}
	if string(meta) != `s:3:"met";` {
		t.Fatalf("wrong metadata: %q", meta)
	}
}

func TestOpenPlainTwoEntries(t *testing.T) {
	entries := []fixtureEntry{
		{name: "foo", mode: 0o664, compression: CompressionNone, content: "bar"},
		{name: "qux", mode: 0o664, compression: CompressionNone, content: "corge"},
	}
	f, err := buildArchive(SignatureSHA256, []byte(`s:3:"met";`), entries)
	if err != nil {
		t.Fatalf("build: %s", err)
	}

	r, err := Open(f, DefaultOptions(), NewNameOrderedIndex())
	if err != nil {
		t.Fatalf("open: %s", err)
	}
	if r.NumFiles != 2 {
		t.Fatalf("want 2 files, got %d", r.NumFiles)
	}

	got := map[string]string{}
	err = r.ForEachFile(func(name []byte, content io.Reader) error {
		b, err := io.ReadAll(content)
		if err != nil {
			return err
		}
		got[string(name)] = string(b)
		return nil
	})
	if err != nil {
		t.Fatalf("for each: %s", err)
	}
	if got["foo"] != "bar" || got["qux"] != "corge" {
		t.Fatalf("wrong contents: %v", got)
	}

	stub, err := r.StubBytes()
	if err != nil {
		t.Fatalf("stub: %s", err)
	}
	if string(stub) != simpleStub {
		t.Fatalf("wrong stub: %q", stub)
	}
}

func TestOpenSignatureMismatch(t *testing.T) {
	entries := []fixtureEntry{
		{name: "foo", mode: 0o664, compression: CompressionNone, content: "bar"},
		{name: "qux", mode: 0o664, compression: CompressionNone, content: "corge"},
	}
	f, err := buildArchive(SignatureSHA256, nil, entries)
	if err != nil {
		t.Fatalf("build: %s", err)
	}

	// Flip the payload's last byte, just before the signature trailer.
	trailerLen := SignatureSHA256.DigestSize() + 4 + len(pharTerminator)
	flipPos := len(f.data) - trailerLen - 1
	f.data[flipPos] ^= 0xFF

	if _, err := Open(&memFile{data: append([]byte(nil), f.data...)}, DefaultOptions(), NewNameOrderedIndex()); err == nil {
		t.Fatal("expected signature verification failure")
	} else if oe, ok := err.(*OpenError); !ok || oe.Kind != ErrBrokenSignature {
		t.Fatalf("expected ErrBrokenSignature, got %v", err)
	}

	laxOpts := DefaultOptions()
	laxOpts.VerifySignature = false
	if _, err := Open(&memFile{data: append([]byte(nil), f.data...)}, laxOpts, NewNameOrderedIndex()); err != nil {
		t.Fatalf("unverified open should still succeed: %s", err)
	}
}

func TestOpenManifestTooLong(t *testing.T) {
	f := &memFile{}
	if _, err := f.Write([]byte(simpleStub)); err != nil {
		t.Fatal(err)
	}
	if err := writeU32(f, 0x00100001); err != nil { // 1 MiB + 1
		t.Fatal(err)
	}

	opts := DefaultOptions()
	opts.VerifySignature = false // isolate the manifest-length check from trailer parsing
	if _, err := Open(f, opts, NewNameOrderedIndex()); err == nil {
		t.Fatal("expected ManifestTooLong")
	} else if oe, ok := err.(*OpenError); !ok || oe.Kind != ErrManifestTooLong {
		t.Fatalf("expected ErrManifestTooLong, got %v", err)
	}
}

func TestNameIndexLookup(t *testing.T) {
	entries := []fixtureEntry{
		{name: "foo", mode: 0o664, compression: CompressionNone, content: "bar"},
		{name: "qux", mode: 0o664, compression: CompressionNone, content: "corge"},
	}
	f, err := buildArchive(SignatureSHA256, nil, entries)
	if err != nil {
		t.Fatalf("build: %s", err)
	}

	r, err := Open(f, DefaultOptions(), NewNameHashIndex())
	if err != nil {
		t.Fatalf("open: %s", err)
	}

	content, err := r.Open([]byte("qux"))
	if err != nil {
		t.Fatalf("open member: %s", err)
	}
	b, err := io.ReadAll(content)
	if err != nil {
		t.Fatalf("read member: %s", err)
	}
	if string(b) != "corge" {
		t.Fatalf("wrong content: %q", b)
	}

	if _, _, ok := r.Lookup([]byte("missing")); ok {
		t.Fatal("lookup should report missing name as not found")
	}
}

func TestOpenWithFileBufferPolicy(t *testing.T) {
	entries := []fixtureEntry{
		{name: "foo", mode: 0o664, compression: CompressionNone, content: "bar"},
		{name: "qux", mode: 0o664, compression: CompressionNone, content: "corge"},
	}
	f, err := buildArchive(SignatureSHA256, []byte(`s:3:"met";`), entries)
	if err != nil {
		t.Fatalf("build: %s", err)
	}

	spillFile := &memFile{}
	opts := DefaultOptions()
	opts.Buffer = BufferPolicy{
		Kind:    BufferFiles,
		Factory: func() (io.ReadWriteSeeker, error) { return spillFile, nil },
	}

	r, err := Open(f, opts, NewNameOrderedIndex())
	if err != nil {
		t.Fatalf("open: %s", err)
	}

	meta, err := r.MetadataBytes()
	if err != nil {
		t.Fatalf("metadata: %s", err)
	}
	if string(meta) != `s:3:"met";` {
		t.Fatalf("wrong metadata: %q", meta)
	}
	if len(spillFile.data) == 0 {
		t.Fatal("expected cached sections to spill into the buffer file")
	}

	got := map[string]string{}
	err = r.ForEachFile(func(name []byte, content io.Reader) error {
		b, err := io.ReadAll(content)
		if err != nil {
			return err
		}
		got[string(name)] = string(b)
		return nil
	})
	if err != nil {
		t.Fatalf("for each: %s", err)
	}
	if got["foo"] != "bar" || got["qux"] != "corge" {
		t.Fatalf("wrong contents: %v", got)
	}
}

func TestNoIndexIteration(t *testing.T) {
	entries := []fixtureEntry{
		{name: "foo", mode: 0o664, compression: CompressionNone, content: "bar"},
		{name: "qux", mode: 0o664, compression: CompressionNone, content: "corge"},
	}
	f, err := buildArchive(SignatureSHA256, nil, entries)
	if err != nil {
		t.Fatalf("build: %s", err)
	}

	r, err := Open(f, DefaultOptions(), NewNoIndex())
	if err != nil {
		t.Fatalf("open: %s", err)
	}

	got := map[string]string{}
	err = r.ForEachFile(func(name []byte, content io.Reader) error {
		b, err := io.ReadAll(content)
		if err != nil {
			return err
		}
		got[string(name)] = string(b)
		return nil
	})
	if err != nil {
		t.Fatalf("for each: %s", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 files, got %d", len(got))
	}
	if got["foo"] != "bar" || got["qux"] != "corge" {
		t.Fatalf("wrong contents: %v", got)
	}
}

func TestOffsetOnlyIndexIteration(t *testing.T) {
	entries := []fixtureEntry{
		{name: "foo", mode: 0o664, compression: CompressionNone, content: "bar"},
		{name: "qux", mode: 0o664, compression: CompressionNone, content: "corge"},
	}
	f, err := buildArchive(SignatureSHA256, nil, entries)
	if err != nil {
		t.Fatalf("build: %s", err)
	}

	r, err := Open(f, DefaultOptions(), NewOffsetOnlyIndex())
	if err != nil {
		t.Fatalf("open: %s", err)
	}

	got := map[string]string{}
	err = r.ForEachFile(func(name []byte, content io.Reader) error {
		b, err := io.ReadAll(content)
		if err != nil {
			return err
		}
		got[string(name)] = string(b)
		return nil
	})
	if err != nil {
		t.Fatalf("for each: %s", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 files, got %d", len(got))
	}
	if got["foo"] != "bar" || got["qux"] != "corge" {
		t.Fatalf("wrong contents: %v", got)
	}
}

func TestMetadataIndexLookupAndIteration(t *testing.T) {
	entries := []fixtureEntry{
		{name: "foo", mode: 0o664, compression: CompressionNone, metadata: []byte(`s:3:"foo";`), content: "bar"},
		{name: "qux", mode: 0o664, compression: CompressionNone, metadata: []byte(`s:3:"qux";`), content: "corge"},
	}

	for _, newIdx := range []func() *MetadataIndex{NewMetadataHashIndex, NewMetadataOrderedIndex} {
		f, err := buildArchive(SignatureSHA256, nil, entries)
		if err != nil {
			t.Fatalf("build: %s", err)
		}

		r, err := Open(f, DefaultOptions(), newIdx())
		if err != nil {
			t.Fatalf("open: %s", err)
		}

		content, err := r.Open([]byte("qux"))
		if err != nil {
			t.Fatalf("open member: %s", err)
		}
		b, err := io.ReadAll(content)
		if err != nil {
			t.Fatalf("read member: %s", err)
		}
		if string(b) != "corge" {
			t.Fatalf("wrong content: %q", b)
		}

		if _, _, ok := r.Lookup([]byte("missing")); ok {
			t.Fatal("lookup should report missing name as not found")
		}

		idx := r.index.(*MetadataIndex)
		entry, ok := idx.Entry([]byte("foo"))
		if !ok {
			t.Fatal("expected entry for foo")
		}
		meta, err := entry.Metadata.AsMemory(nil)
		if err != nil {
			t.Fatalf("entry metadata: %s", err)
		}
		if string(meta) != `s:3:"foo";` {
			t.Fatalf("wrong entry metadata: %q", meta)
		}

		got := map[string]string{}
		err = r.ForEachFile(func(name []byte, content io.Reader) error {
			b, err := io.ReadAll(content)
			if err != nil {
				return err
			}
			got[string(name)] = string(b)
			return nil
		})
		if err != nil {
			t.Fatalf("for each: %s", err)
		}
		if got["foo"] != "bar" || got["qux"] != "corge" {
			t.Fatalf("wrong contents: %v", got)
		}
	}
}
