package kpackerr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rocm/kpack/kpackerr"
)

func TestIsMatchesKind(t *testing.T) {
	err := kpackerr.New(kpackerr.KernelNotFound, "archive.GetKernel", nil)
	require.True(t, kpackerr.Is(err, kpackerr.KernelNotFound))
	require.False(t, kpackerr.Is(err, kpackerr.IOError))
}

func TestIsUnwrapsThroughFmtErrorf(t *testing.T) {
	err := kpackerr.New(kpackerr.IOError, "archive.Open", errors.New("disk exploded"))
	wrapped := fmt.Errorf("context: %w", err)
	require.True(t, kpackerr.Is(wrapped, kpackerr.IOError))
}

func TestOf(t *testing.T) {
	kind, ok := kpackerr.Of(kpackerr.New(kpackerr.ArchNotFound, "x", nil))
	require.True(t, ok)
	require.Equal(t, kpackerr.ArchNotFound, kind)

	_, ok = kpackerr.Of(errors.New("plain error"))
	require.False(t, ok)
}

func TestErrorStringIncludesOpAndKind(t *testing.T) {
	err := kpackerr.New(kpackerr.InvalidFormat, "archive.Open", nil)
	require.Contains(t, err.Error(), "archive.Open")
	require.Contains(t, err.Error(), "INVALID_FORMAT")
}
