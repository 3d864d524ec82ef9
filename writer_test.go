package phargo

import (
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"
)

var errInjectedReadFailure = errors.New("injected read failure")

func roundTrip(t *testing.T, f *memFile, want map[string]string, wantGlobalFlags uint32) {
	t.Helper()
	r, err := Open(f, DefaultOptions(), NewNameOrderedIndex())
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
	if len(got) != len(want) {
		t.Fatalf("want %d files, got %d: %v", len(want), len(got), got)
	}
	for name, content := range want {
		if got[name] != content {
			t.Errorf("%s: want %q, got %q", name, content, got[name])
		}
	}

	// global_flags follows the stub, manifest_length, num_files and api_version.
	flagsOff := len(simpleStub) + 4 + 4 + 2
	if gotFlags := binary.LittleEndian.Uint32(f.data[flagsOff:]) & compressionBitMask; gotFlags != wantGlobalFlags {
		t.Errorf("global flags: want %#x, got %#x", wantGlobalFlags, gotFlags)
	}
}

func TestWriterRoundTripPlain(t *testing.T) {
	entries := []fixtureEntry{
		{name: "foo", mode: 0o664, compression: CompressionNone, content: "bar"},
		{name: "qux", mode: 0o664, compression: CompressionNone, content: "corge"},
	}
	f, err := buildArchive(SignatureSHA256, []byte(`s:3:"met";`), entries)
	if err != nil {
		t.Fatalf("build: %s", err)
	}
	roundTrip(t, f, map[string]string{"foo": "bar", "qux": "corge"}, 0)
}

func TestWriterRoundTripZlib(t *testing.T) {
	entries := []fixtureEntry{
		{name: "foo", mode: 0o664, compression: CompressionZlib, level: 9, content: "bar"},
		{name: "qux", mode: 0o664, compression: CompressionZlib, level: 9, content: "corge"},
	}
	f, err := buildArchive(SignatureSHA256, nil, entries)
	if err != nil {
		t.Fatalf("build: %s", err)
	}
	roundTrip(t, f, map[string]string{"foo": "bar", "qux": "corge"}, compressionBitZlib)
}

func TestWriterMixedCompression(t *testing.T) {
	entries := []fixtureEntry{
		{name: "foo", mode: 0o664, compression: CompressionZlib, level: 9, content: "bar"},
		{name: "qux", mode: 0o664, compression: CompressionBzip2, level: 9, content: "corge"},
	}
	f, err := buildArchive(SignatureSHA256, nil, entries)
	if err != nil {
		t.Fatalf("build: %s", err)
	}
	roundTrip(t, f, map[string]string{"foo": "bar", "qux": "corge"}, compressionBitZlib|compressionBitBzip2)
}

func TestWriterEmptyFileRoundTrips(t *testing.T) {
	for _, kind := range []CompressionKind{CompressionNone, CompressionZlib, CompressionBzip2} {
		entries := []fixtureEntry{{name: "empty", mode: 0o664, compression: kind, level: 9, content: ""}}
		f, err := buildArchive(SignatureSHA256, nil, entries)
		if err != nil {
			t.Fatalf("build (%s): %s", kind, err)
		}
		roundTrip(t, f, map[string]string{"empty": ""}, kind.bit())
	}
}

func TestWriterFeedTooMany(t *testing.T) {
	f := &memFile{}
	needAlias, err := Create(f, SignatureSHA256).Stub([]byte(simpleStub))
	if err != nil {
		t.Fatalf("stub: %s", err)
	}
	needEntries, err := needAlias.Metadata(nil)
	if err != nil {
		t.Fatalf("metadata: %s", err)
	}
	needEntries, err = needEntries.Entry([]byte("foo"), 0o664, fixedModTime, CompressionNone, 0, nil)
	if err != nil {
		t.Fatalf("entry 1: %s", err)
	}
	needEntries, err = needEntries.Entry([]byte("qux"), 0o664, fixedModTime, CompressionNone, 0, nil)
	if err != nil {
		t.Fatalf("entry 2: %s", err)
	}
	contents, err := needEntries.Contents()
	if err != nil {
		t.Fatalf("contents: %s", err)
	}

	contents, err = contents.Feed(strings.NewReader("bar"))
	if err != nil {
		t.Fatalf("feed 1: %s", err)
	}
	contents, err = contents.Feed(strings.NewReader("corge"))
	if err != nil {
		t.Fatalf("feed 2: %s", err)
	}

	_, err = contents.Feed(strings.NewReader("extra"))
	if we, ok := err.(*WriteError); !ok || we.Kind != ErrFeedTooMany {
		t.Fatalf("expected ErrFeedTooMany, got %v", err)
	}
}

func TestWriterFeedAfterError(t *testing.T) {
	f := &memFile{}
	needAlias, err := Create(f, SignatureSHA256).Stub([]byte(simpleStub))
	if err != nil {
		t.Fatalf("stub: %s", err)
	}
	needEntries, err := needAlias.Metadata(nil)
	if err != nil {
		t.Fatalf("metadata: %s", err)
	}
	needEntries, err = needEntries.Entry([]byte("foo"), 0o664, fixedModTime, CompressionZlib, 0, nil)
	if err != nil {
		t.Fatalf("entry: %s", err)
	}
	contents, err := needEntries.Contents()
	if err != nil {
		t.Fatalf("contents: %s", err)
	}

	// Force the feed to fail by handing it a content reader whose
	// first read returns an error.
	_, err = contents.Feed(errReader{})
	if err == nil {
		t.Fatal("expected feed to fail")
	}

	_, err = contents.Feed(strings.NewReader("retry"))
	if we, ok := err.(*WriteError); !ok || we.Kind != ErrFeedAfterError {
		t.Fatalf("expected ErrFeedAfterError, got %v", err)
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errInjectedReadFailure }
