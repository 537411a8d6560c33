package archive

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/rocm/kpack/kpackerr"
)

// Compression scheme identifiers (spec.md §3).
const (
	schemeNone    = "none"
	schemeZstd    = "zstd-per-kernel"
	maxNumKernels = 1 << 20 // safety cap, spec.md §3
)

// KernelEntry is the per-(binary, arch) index entry (spec.md §3).
type KernelEntry struct {
	Ordinal      uint32
	OriginalSize uint64
	Type         string
}

// BlobInfo is the absolute file coordinates of one uncompressed kernel
// (spec.md §3), used when CompressionScheme == "none".
type BlobInfo struct {
	Offset uint64
	Size   uint64
}

// toc is the decoded table of contents (spec.md §3's "TOC (decoded)").
type toc struct {
	CompressionScheme string
	GfxArches         []string
	Entries           map[string]map[string]KernelEntry // binary -> arch -> entry
	Blobs             []BlobInfo                        // iff CompressionScheme == "none"
	ZstdOffset        uint64                             // iff CompressionScheme == "zstd-per-kernel"
	ZstdSize          uint64                             // iff CompressionScheme == "zstd-per-kernel"

	// binaryOrder lists the toc mapping's keys for binary-name enumeration
	// (spec.md §4.1). The order is fixed when the TOC is decoded; it is Go
	// map iteration order, not the key order of the encoded mapping.
	binaryOrder []string
}

var tocDecMode = func() cbor.DecMode {
	m, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("archive: cbor decode mode initialization failed: " + err.Error())
	}
	return m
}()

// decodeTOC parses the self-describing TOC region. Any decoding failure
// (not valid CBOR at all) returns kpackerr.MsgpackParseFailed; structural
// mismatches (non-keyed top-level, missing required field, wrong shape)
// return kpackerr.InvalidFormat, per spec.md §4.1 step 7.
func decodeTOC(data []byte) (*toc, error) {
	const op = "archive.decodeTOC"

	var top any
	if err := tocDecMode.Unmarshal(data, &top); err != nil {
		return nil, kpackerr.New(kpackerr.MsgpackParseFailed, op, err)
	}
	raw, ok := top.(map[string]any)
	if !ok {
		return nil, kpackerr.New(kpackerr.InvalidFormat, op, nil)
	}

	scheme, ok := raw["compression_scheme"].(string)
	if !ok || (scheme != schemeNone && scheme != schemeZstd) {
		return nil, kpackerr.New(kpackerr.InvalidFormat, op, nil)
	}

	rawArches, ok := raw["gfx_arches"].([]any)
	if !ok {
		return nil, kpackerr.New(kpackerr.InvalidFormat, op, nil)
	}
	arches := make([]string, 0, len(rawArches))
	for _, a := range rawArches {
		s, ok := a.(string)
		if !ok {
			return nil, kpackerr.New(kpackerr.InvalidFormat, op, nil)
		}
		arches = append(arches, s)
	}

	entries, order, err := decodeTOCMapping(raw["toc"])
	if err != nil {
		return nil, err
	}

	t := &toc{
		CompressionScheme: scheme,
		GfxArches:         arches,
		Entries:           entries,
		binaryOrder:       order,
	}

	switch scheme {
	case schemeNone:
		blobs, err := decodeBlobs(raw["blobs"])
		if err != nil {
			return nil, err
		}
		t.Blobs = blobs
	case schemeZstd:
		offset, ok1 := toUint64(raw["zstd_offset"])
		size, ok2 := toUint64(raw["zstd_size"])
		if !ok1 || !ok2 {
			return nil, kpackerr.New(kpackerr.InvalidFormat, op, nil)
		}
		t.ZstdOffset = offset
		t.ZstdSize = size
	}

	if err := validateTOCReferences(t); err != nil {
		return nil, err
	}

	return t, nil
}

// decodeTOCMapping decodes the "toc" field: binary -> arch -> KernelEntry,
// and returns the binary names for enumeration in Go map iteration order;
// the encoded key order of the mapping is not preserved.
func decodeTOCMapping(v any) (map[string]map[string]KernelEntry, []string, error) {
	const op = "archive.decodeTOC"

	rawToc, ok := v.(map[string]any)
	if !ok {
		return nil, nil, kpackerr.New(kpackerr.InvalidFormat, op, nil)
	}

	entries := make(map[string]map[string]KernelEntry, len(rawToc))
	order := make([]string, 0, len(rawToc))
	for binary, rawArchMap := range rawToc {
		archMap, ok := rawArchMap.(map[string]any)
		if !ok {
			return nil, nil, kpackerr.New(kpackerr.InvalidFormat, op, nil)
		}
		decoded := make(map[string]KernelEntry, len(archMap))
		for arch, rawEntry := range archMap {
			entry, err := decodeKernelEntry(rawEntry)
			if err != nil {
				return nil, nil, err
			}
			decoded[arch] = entry
		}
		entries[binary] = decoded
		order = append(order, binary)
	}
	return entries, order, nil
}

func decodeKernelEntry(v any) (KernelEntry, error) {
	const op = "archive.decodeTOC"

	m, ok := v.(map[string]any)
	if !ok {
		return KernelEntry{}, kpackerr.New(kpackerr.InvalidFormat, op, nil)
	}
	ordinal, ok1 := toUint64(m["ordinal"])
	originalSize, ok2 := toUint64(m["original_size"])
	typ, ok3 := m["type"].(string)
	if !ok1 || !ok2 || !ok3 {
		return KernelEntry{}, kpackerr.New(kpackerr.InvalidFormat, op, nil)
	}
	return KernelEntry{
		Ordinal:      uint32(ordinal),
		OriginalSize: originalSize,
		Type:         typ,
	}, nil
}

func decodeBlobs(v any) ([]BlobInfo, error) {
	const op = "archive.decodeTOC"

	rawBlobs, ok := v.([]any)
	if !ok {
		return nil, kpackerr.New(kpackerr.InvalidFormat, op, nil)
	}
	blobs := make([]BlobInfo, 0, len(rawBlobs))
	for _, rb := range rawBlobs {
		m, ok := rb.(map[string]any)
		if !ok {
			return nil, kpackerr.New(kpackerr.InvalidFormat, op, nil)
		}
		offset, ok1 := toUint64(m["offset"])
		size, ok2 := toUint64(m["size"])
		if !ok1 || !ok2 {
			return nil, kpackerr.New(kpackerr.InvalidFormat, op, nil)
		}
		blobs = append(blobs, BlobInfo{Offset: offset, Size: size})
	}
	return blobs, nil
}

// validateTOCReferences checks, for the "none" scheme, that every
// (binary, arch) entry's ordinal indexes into Blobs; blob offsets and sizes
// are not checked here. For the zstd scheme nothing is checked here:
// per-frame bounds are checked when the frame index is built
// (buildCompressedState), since that requires the blob bytes, and an
// out-of-range ordinal is reported as KernelNotFound by decompressZstd.
func validateTOCReferences(t *toc) error {
	const op = "archive.decodeTOC"

	if t.CompressionScheme == schemeNone {
		for _, archMap := range t.Entries {
			for _, entry := range archMap {
				if entry.Ordinal >= uint32(len(t.Blobs)) {
					return kpackerr.New(kpackerr.InvalidFormat, op, nil)
				}
			}
		}
	}
	return nil
}

// toUint64 converts a CBOR-decoded numeric any (uint64 or int64) to
// uint64, reporting whether the conversion is valid (non-negative).
func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}
