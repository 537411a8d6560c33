package archive

import (
	"io"

	"github.com/rocm/kpack/kpackerr"
)

// decompressNoop returns a byte-exact copy of the ordinal-th blob.
// expected_size is not cross-checked here (spec.md §4.2, §9 open
// question) — callers needing end-to-end assurance rely on the compressed
// path's equality check.
func decompressNoop(r io.ReadSeeker, blobs []BlobInfo, ordinal uint32) ([]byte, error) {
	const op = "archive.decompressNoop"

	if int(ordinal) >= len(blobs) {
		return nil, kpackerr.New(kpackerr.KernelNotFound, op, nil)
	}
	blob := blobs[ordinal]

	if _, err := r.Seek(int64(blob.Offset), io.SeekStart); err != nil {
		return nil, kpackerr.New(kpackerr.IOError, op, err)
	}

	buf := make([]byte, blob.Size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, kpackerr.New(kpackerr.IOError, op, err)
	}
	return buf, nil
}
