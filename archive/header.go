package archive

import (
	"encoding/binary"
	"io"

	"github.com/rocm/kpack/kpackerr"
)

// headerSize is the fixed size of the archive header (spec.md §3).
const headerSize = 16

var magic = [4]byte{'K', 'P', 'A', 'K'}

// supportedVersion is the single version this reader accepts.
const supportedVersion uint32 = 1

// header is the decoded form of the 16-byte fixed header.
type header struct {
	magic     [4]byte
	version   uint32
	tocOffset uint64
}

// readHeader reads and validates the 16-byte header from r, which must be
// positioned at the start of the file. fileSize is the total size of the
// backing file, used to validate tocOffset.
func readHeader(r io.Reader, fileSize int64) (header, error) {
	const op = "archive.readHeader"

	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return header{}, kpackerr.New(kpackerr.InvalidFormat, op, err)
	}

	var h header
	copy(h.magic[:], buf[0:4])
	h.version = binary.LittleEndian.Uint32(buf[4:8])
	h.tocOffset = binary.LittleEndian.Uint64(buf[8:16])

	if h.magic != magic {
		return header{}, kpackerr.New(kpackerr.InvalidFormat, op, nil)
	}
	if h.version != supportedVersion {
		return header{}, kpackerr.New(kpackerr.UnsupportedVersion, op, nil)
	}
	if h.tocOffset < headerSize || h.tocOffset >= uint64(fileSize) {
		return header{}, kpackerr.New(kpackerr.InvalidFormat, op, nil)
	}

	return h, nil
}
