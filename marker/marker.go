// Package marker decodes the small self-describing record embedded in a
// host binary that tells the loader which TOC key to look up and where to
// search for archives.
package marker

import (
	"bytes"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/rocm/kpack/kpackerr"
)

// Marker is the decoded form of spec.md §4.6's marker record.
type Marker struct {
	// KernelName is the binary-name key used for TOC lookup inside each
	// archive.
	KernelName string
	// SearchPaths is a non-empty list of archive paths, each either
	// absolute or relative to the host binary's file path.
	SearchPaths []string
}

// decMode mirrors the self-describing-map decoding convention used
// elsewhere in the corpus for CBOR (see lib/codec/cbor.go): map-typed
// fields decode into map[string]any so shape mismatches are visible to
// hand-written validation rather than hidden behind struct tags.
var decMode = func() cbor.DecMode {
	m, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("marker: cbor decode mode initialization failed: " + err.Error())
	}
	return m
}()

// Decode parses a marker record. data may contain more bytes than the true
// encoding — the decoder stops at the encoded value's end, per spec.md
// §4.6. Any shape mismatch, non-keyed top-level value, or empty
// kpack_search_paths returns kpackerr.InvalidMetadata. Bytes that aren't
// valid CBOR at all return kpackerr.MsgpackParseFailed.
func Decode(data []byte) (*Marker, error) {
	const op = "marker.Decode"

	// A plain Unmarshal requires data to hold exactly one encoded item and
	// rejects trailing bytes with ExtraneousDataError; a Decoder reads one
	// item at a time and stops there, which is what a marker embedded in a
	// host binary (always followed by unrelated bytes) needs.
	var top any
	if err := decMode.NewDecoder(bytes.NewReader(data)).Decode(&top); err != nil {
		return nil, kpackerr.New(kpackerr.MsgpackParseFailed, op, err)
	}
	raw, ok := top.(map[string]any)
	if !ok {
		return nil, kpackerr.New(kpackerr.InvalidMetadata, op, nil)
	}

	kernelName, ok := raw["kernel_name"].(string)
	if !ok {
		return nil, kpackerr.New(kpackerr.InvalidMetadata, op, nil)
	}

	rawPaths, ok := raw["kpack_search_paths"].([]any)
	if !ok || len(rawPaths) == 0 {
		return nil, kpackerr.New(kpackerr.InvalidMetadata, op, nil)
	}
	paths := make([]string, 0, len(rawPaths))
	for _, p := range rawPaths {
		s, ok := p.(string)
		if !ok {
			return nil, kpackerr.New(kpackerr.InvalidMetadata, op, nil)
		}
		paths = append(paths, s)
	}

	return &Marker{KernelName: kernelName, SearchPaths: paths}, nil
}

// Encode is provided for tests that need to synthesize a marker; it is not
// part of the loader's runtime surface (markers are produced by the
// out-of-scope offline transformation tool).
func Encode(m Marker) ([]byte, error) {
	raw := map[string]any{
		"kernel_name":        m.KernelName,
		"kpack_search_paths": toAnySlice(m.SearchPaths),
	}
	return cbor.Marshal(raw)
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
