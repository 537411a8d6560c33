//go:build linux

package pathdiscovery_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rocm/kpack/kpackerr"
	"github.com/rocm/kpack/pathdiscovery"
)

func TestDiscoverResolvesOwnBinary(t *testing.T) {
	// The test binary itself is always mapped, so the address of this very
	// function should resolve to a non-empty path.
	addr := uintptr(reflect.ValueOf(TestDiscoverResolvesOwnBinary).Pointer())

	path, _, err := pathdiscovery.Discover(addr)
	require.NoError(t, err)
	require.NotEmpty(t, path)
}

func TestDiscoverNoMapping(t *testing.T) {
	_, _, err := pathdiscovery.Discover(0)
	require.True(t, kpackerr.Is(err, kpackerr.PathDiscoveryFailed))
}
