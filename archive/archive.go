// Package archive implements the kpack archive reader: header validation,
// TOC decoding, and the NoOp / per-kernel-compressed codecs, bound behind
// a single per-archive handle (spec.md §4.1–§4.4).
package archive

import (
	"io"
	"iter"
	"os"
	"sync"

	"github.com/rocm/kpack/kpackerr"
)

// Archive is an open, in-memory handle on a kpack file: the backing file
// handle, the decoded TOC, enumeration lists, and any compression-scheme
// state. All kernel-producing operations are serialized by mu (spec.md
// §3's "Archive (in-memory handle)", §5).
type Archive struct {
	mu sync.Mutex

	file *os.File
	rs   *bufferedReadSeeker

	toc *toc

	compressed *compressedState // non-nil iff toc.CompressionScheme == schemeZstd

	closed bool
}

// Open validates the header, decodes the TOC, and (for the compressed
// scheme) eagerly reads the compression blob and builds its frame index,
// per spec.md §4.1.
func Open(path string) (*Archive, error) {
	const op = "archive.Open"

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kpackerr.New(kpackerr.FileNotFound, op, err)
		}
		return nil, kpackerr.New(kpackerr.IOError, op, err)
	}

	a, err := openFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return a, nil
}

func openFile(f *os.File) (*Archive, error) {
	const op = "archive.Open"

	info, err := f.Stat()
	if err != nil {
		return nil, kpackerr.New(kpackerr.IOError, op, err)
	}
	fileSize := info.Size()

	rs := newBufferedReadSeeker(f, 64*1024)

	h, err := readHeader(rs, fileSize)
	if err != nil {
		return nil, err
	}

	if _, err := rs.Seek(int64(h.tocOffset), io.SeekStart); err != nil {
		return nil, kpackerr.New(kpackerr.IOError, op, err)
	}
	tocBytes := make([]byte, fileSize-int64(h.tocOffset))
	if _, err := io.ReadFull(rs, tocBytes); err != nil {
		return nil, kpackerr.New(kpackerr.IOError, op, err)
	}

	t, err := decodeTOC(tocBytes)
	if err != nil {
		return nil, err
	}

	a := &Archive{file: f, rs: rs, toc: t}

	if t.CompressionScheme == schemeZstd {
		cs, err := buildCompressedState(rs, t, h.tocOffset)
		if err != nil {
			return nil, err
		}
		a.compressed = cs
	}

	return a, nil
}

// Close releases the backing file handle and any compressor context. The
// caller must ensure no other goroutine is executing an operation on this
// handle concurrently (spec.md §3, §5).
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.compressed != nil {
		a.compressed.close()
	}
	if err := a.file.Close(); err != nil {
		return kpackerr.New(kpackerr.IOError, "archive.Close", err)
	}
	return nil
}

// ArchitectureCount returns the number of architectures in presentation
// order (spec.md §4.1).
func (a *Archive) ArchitectureCount() int {
	return len(a.toc.GfxArches)
}

// Architecture returns the name of the index-th architecture.
// kpackerr.InvalidArgument is returned for an out-of-range index.
func (a *Archive) Architecture(index int) (string, error) {
	if index < 0 || index >= len(a.toc.GfxArches) {
		return "", kpackerr.New(kpackerr.InvalidArgument, "archive.Architecture", nil)
	}
	return a.toc.GfxArches[index], nil
}

// Architectures returns an iterator over architecture names in TOC order.
func (a *Archive) Architectures() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, name := range a.toc.GfxArches {
			if !yield(name) {
				return
			}
		}
	}
}

// BinaryCount returns the number of distinct binaries referenced by the
// TOC (spec.md §4.1).
func (a *Archive) BinaryCount() int {
	return len(a.toc.binaryOrder)
}

// Binary returns the name of the index-th binary. The order is fixed when
// the archive is opened; it does not follow the encoded key order of the
// TOC mapping. kpackerr.InvalidArgument is returned for an out-of-range
// index.
func (a *Archive) Binary(index int) (string, error) {
	if index < 0 || index >= len(a.toc.binaryOrder) {
		return "", kpackerr.New(kpackerr.InvalidArgument, "archive.Binary", nil)
	}
	return a.toc.binaryOrder[index], nil
}

// Binaries returns an iterator over binary names in the same order as
// Binary.
func (a *Archive) Binaries() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, name := range a.toc.binaryOrder {
			if !yield(name) {
				return
			}
		}
	}
}

// HasArchitecture reports whether arch appears in this archive's
// architecture list, without allocating.
func (a *Archive) HasArchitecture(arch string) bool {
	for _, name := range a.toc.GfxArches {
		if name == arch {
			return true
		}
	}
	return false
}

// GetKernel is the Archive Facade operation of spec.md §4.4: look up
// (binary, arch) in the TOC and dispatch to the codec indicated by the
// archive's compression scheme, returning a freshly allocated,
// caller-owned buffer.
func (a *Archive) GetKernel(binary, arch string) ([]byte, error) {
	const op = "archive.GetKernel"

	if binary == "" || arch == "" {
		return nil, kpackerr.New(kpackerr.InvalidArgument, op, nil)
	}

	archMap, ok := a.toc.Entries[binary]
	if !ok {
		return nil, kpackerr.New(kpackerr.KernelNotFound, op, nil)
	}
	entry, ok := archMap[arch]
	if !ok {
		return nil, kpackerr.New(kpackerr.KernelNotFound, op, nil)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.toc.CompressionScheme {
	case schemeNone:
		return decompressNoop(a.rs, a.toc.Blobs, entry.Ordinal)
	case schemeZstd:
		return a.compressed.decompressZstd(entry.Ordinal, entry.OriginalSize)
	default:
		return nil, kpackerr.New(kpackerr.NotImplemented, op, nil)
	}
}
