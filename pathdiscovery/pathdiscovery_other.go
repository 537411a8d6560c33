//go:build !linux

package pathdiscovery

import "github.com/rocm/kpack/kpackerr"

var platform Discoverer = unsupportedDiscoverer{}

// unsupportedDiscoverer is the stub for platforms without a loaded-module
// table this package knows how to read, matching the teacher's own
// no-op-per-platform pattern (discover/gpu_bsd.go, discover/gpu_darwin.go).
type unsupportedDiscoverer struct{}

func (unsupportedDiscoverer) Discover(addr uintptr) (string, uint64, error) {
	return "", 0, kpackerr.New(kpackerr.NotImplemented, "pathdiscovery.Discover", nil)
}
