package archive

import (
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/rocm/kpack/kpackerr"
)

// maxZstdBlobSize is the safety cap on the compression blob's physical
// size (spec.md §4.3 step 1).
const maxZstdBlobSize = 4 << 30 // 4 GiB

// frame records one kernel's compressed byte range within the
// compression blob (spec.md §4.3's frame index).
type frame struct {
	offset uint64 // offset within the blob
	size   uint64 // compressed size
}

// compressedState holds everything the zstd-per-kernel codec needs once
// open() has built it: the blob bytes and the parsed frame index, plus a
// reusable decompressor context. All access is already serialized by the
// owning Archive's mutex (spec.md §4.4, §5).
type compressedState struct {
	blob    []byte
	frames  []frame
	decoder *zstd.Decoder
}

// buildCompressedState reads the full compression blob at t.ZstdOffset and
// parses its frame index, per spec.md §4.3. tocOffset is the archive
// header's toc_offset; the blob must fit entirely before it (spec.md §3's
// zstd_offset + zstd_size <= toc_offset invariant).
func buildCompressedState(r io.ReadSeeker, t *toc, tocOffset uint64) (*compressedState, error) {
	const op = "archive.buildFrameIndex"

	if t.ZstdSize > maxZstdBlobSize {
		return nil, kpackerr.New(kpackerr.InvalidFormat, op, nil)
	}
	if t.ZstdSize < 4 {
		return nil, kpackerr.New(kpackerr.InvalidFormat, op, nil)
	}
	if t.ZstdOffset+t.ZstdSize > tocOffset {
		return nil, kpackerr.New(kpackerr.InvalidFormat, op, nil)
	}

	if _, err := r.Seek(int64(t.ZstdOffset), io.SeekStart); err != nil {
		return nil, kpackerr.New(kpackerr.IOError, op, err)
	}
	blob := make([]byte, t.ZstdSize)
	if _, err := io.ReadFull(r, blob); err != nil {
		return nil, kpackerr.New(kpackerr.IOError, op, err)
	}

	numKernels := binary.LittleEndian.Uint32(blob[0:4])
	if numKernels > maxNumKernels {
		return nil, kpackerr.New(kpackerr.InvalidFormat, op, nil)
	}

	frames := make([]frame, 0, numKernels)
	cursor := uint64(4)
	for i := uint32(0); i < numKernels; i++ {
		if cursor+4 > uint64(len(blob)) {
			return nil, kpackerr.New(kpackerr.InvalidFormat, op, nil)
		}
		frameSize := uint64(binary.LittleEndian.Uint32(blob[cursor : cursor+4]))
		cursor += 4
		if cursor+frameSize > uint64(len(blob)) {
			return nil, kpackerr.New(kpackerr.InvalidFormat, op, nil)
		}
		frames = append(frames, frame{offset: cursor, size: frameSize})
		cursor += frameSize
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, kpackerr.New(kpackerr.OutOfMemory, op, err)
	}

	return &compressedState{blob: blob, frames: frames, decoder: dec}, nil
}

func (s *compressedState) close() {
	if s.decoder != nil {
		s.decoder.Close()
	}
}

// decompressZstd decompresses the ordinal-th frame into a buffer of
// exactly expectedSize, per spec.md §4.3.
func (s *compressedState) decompressZstd(ordinal uint32, expectedSize uint64) ([]byte, error) {
	const op = "archive.decompressZstd"

	if int(ordinal) >= len(s.frames) {
		return nil, kpackerr.New(kpackerr.KernelNotFound, op, nil)
	}
	f := s.frames[ordinal]
	compressed := s.blob[f.offset : f.offset+f.size]

	dst := make([]byte, 0, expectedSize)
	out, err := s.decoder.DecodeAll(compressed, dst)
	if err != nil {
		return nil, kpackerr.New(kpackerr.DecompressionFailed, op, err)
	}
	if uint64(len(out)) != expectedSize {
		return nil, kpackerr.New(kpackerr.DecompressionFailed, op, nil)
	}
	return out, nil
}
