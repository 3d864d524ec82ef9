package phargo

import "io"

const (
	// apiVersion is the fixed api_version field this library writes.
	apiVersion uint16 = 0x0011

	globalFlagSignature uint32 = 0x00010000
	manifestLengthCap   int64  = 1 << 20 // 1 MiB, per §3 invariant
)

// manifestHeader is the fixed-layout part of the manifest: everything
// between manifest_length and the first entry record.
type manifestHeader struct {
	NumFiles    uint32
	APIVersion  uint16
	GlobalFlags uint32
	Alias       Section
	GlobalMeta  Section
}

// IsSigned reports whether global_flags declares a signature trailer.
func (h manifestHeader) IsSigned() bool { return h.GlobalFlags&globalFlagSignature != 0 }

// parseManifestHeader reads the fixed fields of the manifest from r,
// which must be positioned immediately after the manifest_length field.
// r is not limited to manifest_length bytes: the alias and metadata
// lengths are read as declared, even if they run past the manifest's
// end. cacheAlias and
// cacheMeta control whether the alias/global metadata Sections
// materialize eagerly or stay offset-backed.
func parseManifestHeader(r interface {
	io.Reader
	io.Seeker
}, cacheAlias, cacheMeta bool, spill *spillSink) (manifestHeader, error) {
	numFiles, err := readU32(r)
	if err != nil {
		return manifestHeader{}, err
	}
	api, err := readU16(r)
	if err != nil {
		return manifestHeader{}, err
	}
	globalFlags, err := readU32(r)
	if err != nil {
		return manifestHeader{}, err
	}

	aliasLen, err := readU32(r)
	if err != nil {
		return manifestHeader{}, err
	}
	aliasPos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return manifestHeader{}, err
	}
	alias := newSection(cacheAlias, aliasPos, spill)
	if err := alias.readFrom(r, int64(aliasLen)); err != nil {
		return manifestHeader{}, err
	}

	metaLen, err := readU32(r)
	if err != nil {
		return manifestHeader{}, err
	}
	metaPos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return manifestHeader{}, err
	}
	meta := newSection(cacheMeta, metaPos, spill)
	if err := meta.readFrom(r, int64(metaLen)); err != nil {
		return manifestHeader{}, err
	}

	return manifestHeader{
		NumFiles:    numFiles,
		APIVersion:  api,
		GlobalFlags: globalFlags,
		Alias:       alias,
		GlobalMeta:  meta,
	}, nil
}
