// Package kpackfixture synthesizes kpack archive byte streams for tests,
// the way fs/gguf/gguf_test.go's createBinFile synthesizes a GGUF fixture
// in Go rather than shipping a binary blob.
package kpackfixture

import (
	"bytes"
	"encoding/binary"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

const headerSize = 16

func header(tocOffset uint64) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], "KPAK")
	binary.LittleEndian.PutUint32(buf[4:8], 1)
	binary.LittleEndian.PutUint64(buf[8:16], tocOffset)
	return buf
}

// padded returns prefix followed by (total-len(prefix)) filler bytes.
func padded(prefix string, total int) []byte {
	out := make([]byte, total)
	copy(out, prefix)
	for i := len(prefix); i < total; i++ {
		out[i] = byte('.')
	}
	return out
}

// NoopFixture matches spec.md S1–S3: two architectures (gfx900, gfx906),
// two binaries (lib/libtest.so, bin/testapp).
func NoopFixture() []byte {
	kernel1 := padded("KERNEL1_GFX900_DATA", 119)
	kernel2 := padded("KERNEL2_GFX906_DATA", 219)
	kernel3 := padded("KERNEL3_APP_GFX900", 168)

	var payload bytes.Buffer
	payload.Write(kernel1) // ordinal 0
	payload.Write(kernel2) // ordinal 1
	payload.Write(kernel3) // ordinal 2

	tocOffset := uint64(headerSize + payload.Len())

	raw := map[string]any{
		"compression_scheme": "none",
		"gfx_arches":         []any{"gfx900", "gfx906"},
		"toc": map[string]any{
			"lib/libtest.so": map[string]any{
				"gfx900": map[string]any{"ordinal": uint64(0), "original_size": uint64(119), "type": "blob"},
				"gfx906": map[string]any{"ordinal": uint64(1), "original_size": uint64(219), "type": "blob"},
			},
			"bin/testapp": map[string]any{
				"gfx900": map[string]any{"ordinal": uint64(2), "original_size": uint64(168), "type": "blob"},
			},
		},
		"blobs": []any{
			map[string]any{"offset": uint64(headerSize + 0), "size": uint64(119)},
			map[string]any{"offset": uint64(headerSize + 119), "size": uint64(219)},
			map[string]any{"offset": uint64(headerSize + 119 + 219), "size": uint64(168)},
		},
	}

	tocBytes, err := cbor.Marshal(raw)
	if err != nil {
		panic(err)
	}

	var out bytes.Buffer
	out.Write(header(tocOffset))
	out.Write(payload.Bytes())
	out.Write(tocBytes)
	return out.Bytes()
}

// ZstdFixture matches spec.md S4: one architecture (gfx1100), one binary
// (lib/libhip.so), compression_scheme "zstd-per-kernel".
func ZstdFixture() []byte {
	original := padded("HIP_KERNEL_GFX1100_", 1019)

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		panic(err)
	}
	compressed := enc.EncodeAll(original, nil)
	enc.Close()

	var blob bytes.Buffer
	numKernels := uint32(1)
	frameSizeBuf := make([]byte, 4)
	countBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(countBuf, numKernels)
	blob.Write(countBuf)
	binary.LittleEndian.PutUint32(frameSizeBuf, uint32(len(compressed)))
	blob.Write(frameSizeBuf)
	blob.Write(compressed)

	zstdOffset := uint64(headerSize)
	zstdSize := uint64(blob.Len())
	tocOffset := zstdOffset + zstdSize

	raw := map[string]any{
		"compression_scheme": "zstd-per-kernel",
		"gfx_arches":         []any{"gfx1100"},
		"toc": map[string]any{
			"lib/libhip.so": map[string]any{
				"gfx1100": map[string]any{"ordinal": uint64(0), "original_size": uint64(1019), "type": "blob"},
			},
		},
		"zstd_offset": zstdOffset,
		"zstd_size":   zstdSize,
	}

	tocBytes, err := cbor.Marshal(raw)
	if err != nil {
		panic(err)
	}

	var out bytes.Buffer
	out.Write(header(tocOffset))
	out.Write(blob.Bytes())
	out.Write(tocBytes)
	return out.Bytes()
}
