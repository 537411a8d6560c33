package archive

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rocm/kpack/kpackerr"
)

func makeHeaderBytes(magicBytes [4]byte, version uint32, tocOffset uint64) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], magicBytes[:])
	binary.LittleEndian.PutUint32(buf[4:8], version)
	binary.LittleEndian.PutUint64(buf[8:16], tocOffset)
	return buf
}

func TestReadHeaderValid(t *testing.T) {
	buf := makeHeaderBytes(magic, supportedVersion, 32)
	h, err := readHeader(bytes.NewReader(buf), 64)
	require.NoError(t, err)
	require.Equal(t, magic, h.magic)
	require.Equal(t, supportedVersion, h.version)
	require.EqualValues(t, 32, h.tocOffset)
}

func TestReadHeaderBadMagic(t *testing.T) {
	buf := makeHeaderBytes([4]byte{'N', 'O', 'P', 'E'}, supportedVersion, 32)
	_, err := readHeader(bytes.NewReader(buf), 64)
	require.True(t, kpackerr.Is(err, kpackerr.InvalidFormat))
}

func TestReadHeaderBadVersion(t *testing.T) {
	buf := makeHeaderBytes(magic, 2, 32)
	_, err := readHeader(bytes.NewReader(buf), 64)
	require.True(t, kpackerr.Is(err, kpackerr.UnsupportedVersion))
}

func TestReadHeaderTocOffsetBeyondFileSize(t *testing.T) {
	buf := makeHeaderBytes(magic, supportedVersion, 1000)
	_, err := readHeader(bytes.NewReader(buf), 64)
	require.True(t, kpackerr.Is(err, kpackerr.InvalidFormat))
}

func TestReadHeaderTocOffsetInsideHeader(t *testing.T) {
	buf := makeHeaderBytes(magic, supportedVersion, 4)
	_, err := readHeader(bytes.NewReader(buf), 64)
	require.True(t, kpackerr.Is(err, kpackerr.InvalidFormat))
}

func TestReadHeaderTruncated(t *testing.T) {
	buf := makeHeaderBytes(magic, supportedVersion, 32)
	_, err := readHeader(bytes.NewReader(buf[:8]), 64)
	require.True(t, kpackerr.Is(err, kpackerr.InvalidFormat))
}
