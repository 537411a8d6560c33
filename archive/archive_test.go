package archive_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rocm/kpack/archive"
	"github.com/rocm/kpack/internal/kpackfixture"
	"github.com/rocm/kpack/kpackerr"
)

func writeFixture(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.kpack")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestNoopArchiveEnumeration(t *testing.T) {
	path := writeFixture(t, kpackfixture.NoopFixture())
	a, err := archive.Open(path)
	require.NoError(t, err)
	defer a.Close()

	require.Equal(t, 2, a.ArchitectureCount())
	arch0, err := a.Architecture(0)
	require.NoError(t, err)
	require.Equal(t, "gfx900", arch0)
	arch1, err := a.Architecture(1)
	require.NoError(t, err)
	require.Equal(t, "gfx906", arch1)

	require.Equal(t, 2, a.BinaryCount())
}

func TestNoopArchitectureOutOfRange(t *testing.T) {
	path := writeFixture(t, kpackfixture.NoopFixture())
	a, err := archive.Open(path)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Architecture(2)
	require.True(t, kpackerr.Is(err, kpackerr.InvalidArgument))
}

func TestNoopGetKernel(t *testing.T) {
	path := writeFixture(t, kpackfixture.NoopFixture())
	a, err := archive.Open(path)
	require.NoError(t, err)
	defer a.Close()

	buf, err := a.GetKernel("lib/libtest.so", "gfx900")
	require.NoError(t, err)
	require.Len(t, buf, 119)
	require.Equal(t, "KERNEL1_GFX900_DATA", string(buf[:19]))

	buf, err = a.GetKernel("lib/libtest.so", "gfx906")
	require.NoError(t, err)
	require.Len(t, buf, 219)
	require.Equal(t, "KERNEL2_GFX906_DATA", string(buf[:19]))

	buf, err = a.GetKernel("bin/testapp", "gfx900")
	require.NoError(t, err)
	require.Len(t, buf, 168)
	require.Equal(t, "KERNEL3_APP_GFX900", string(buf[:18]))
}

func TestNoopGetKernelNotFound(t *testing.T) {
	path := writeFixture(t, kpackfixture.NoopFixture())
	a, err := archive.Open(path)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.GetKernel("lib/libtest.so", "gfx908")
	require.True(t, kpackerr.Is(err, kpackerr.KernelNotFound))

	_, err = a.GetKernel("nonexistent/binary", "gfx900")
	require.True(t, kpackerr.Is(err, kpackerr.KernelNotFound))
}

func TestZstdGetKernel(t *testing.T) {
	path := writeFixture(t, kpackfixture.ZstdFixture())
	a, err := archive.Open(path)
	require.NoError(t, err)
	defer a.Close()

	buf, err := a.GetKernel("lib/libhip.so", "gfx1100")
	require.NoError(t, err)
	require.Len(t, buf, 1019)
	require.Equal(t, "HIP_KERNEL_GFX1100_", string(buf[:19]))
}

func TestGetKernelInvalidArgument(t *testing.T) {
	path := writeFixture(t, kpackfixture.NoopFixture())
	a, err := archive.Open(path)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.GetKernel("", "gfx900")
	require.True(t, kpackerr.Is(err, kpackerr.InvalidArgument))
}

func TestOpenFileNotFound(t *testing.T) {
	_, err := archive.Open(filepath.Join(t.TempDir(), "missing.kpack"))
	require.True(t, kpackerr.Is(err, kpackerr.FileNotFound))
}

func TestOpenCraftedHeaders(t *testing.T) {
	t.Run("bad magic", func(t *testing.T) {
		data := kpackfixture.NoopFixture()
		data[0] = 'X'
		data[1] = 'X'
		data[2] = 'X'
		data[3] = 'X'
		path := writeFixture(t, data)
		_, err := archive.Open(path)
		require.True(t, kpackerr.Is(err, kpackerr.InvalidFormat))
	})

	t.Run("bad version", func(t *testing.T) {
		data := kpackfixture.NoopFixture()
		data[4], data[5], data[6], data[7] = 231, 3, 0, 0 // version 999
		path := writeFixture(t, data)
		_, err := archive.Open(path)
		require.True(t, kpackerr.Is(err, kpackerr.UnsupportedVersion))
	})

	t.Run("toc offset beyond file size", func(t *testing.T) {
		data := make([]byte, 20)
		copy(data[0:4], "KPAK")
		data[4] = 1 // version
		data[8] = 0xff
		data[9] = 0xff
		data[10] = 0x0f // toc_offset far beyond the 20-byte file
		path := writeFixture(t, data)
		_, err := archive.Open(path)
		require.True(t, kpackerr.Is(err, kpackerr.InvalidFormat))
	})

	t.Run("truncated header", func(t *testing.T) {
		path := writeFixture(t, make([]byte, 8))
		_, err := archive.Open(path)
		require.True(t, kpackerr.Is(err, kpackerr.InvalidFormat))
	})
}

func TestConcurrentGetKernel(t *testing.T) {
	path := writeFixture(t, kpackfixture.NoopFixture())
	a, err := archive.Open(path)
	require.NoError(t, err)
	defer a.Close()

	const iterations = 50
	done := make(chan error, iterations*2)
	for i := 0; i < iterations; i++ {
		go func() {
			buf, err := a.GetKernel("lib/libtest.so", "gfx900")
			if err == nil && string(buf[:19]) != "KERNEL1_GFX900_DATA" {
				err = errors.New("unexpected gfx900 kernel contents")
			}
			done <- err
		}()
		go func() {
			buf, err := a.GetKernel("lib/libtest.so", "gfx906")
			if err == nil && string(buf[:19]) != "KERNEL2_GFX906_DATA" {
				err = errors.New("unexpected gfx906 kernel contents")
			}
			done <- err
		}()
	}
	for i := 0; i < iterations*2; i++ {
		require.NoError(t, <-done)
	}
}
