//go:build linux

package pathdiscovery

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/rocm/kpack/kpackerr"
)

var platform Discoverer = linuxDiscoverer{}

// linuxDiscoverer resolves addresses by scanning /proc/self/maps, the same
// kind of /proc-table probing discover/cpu_linux.go uses for CPU
// capability detection elsewhere in the corpus.
type linuxDiscoverer struct{}

func (linuxDiscoverer) Discover(addr uintptr) (string, uint64, error) {
	const op = "pathdiscovery.Discover"

	f, err := os.Open("/proc/self/maps")
	if err != nil {
		return "", 0, kpackerr.New(kpackerr.PathDiscoveryFailed, op, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		rng := strings.SplitN(fields[0], "-", 2)
		if len(rng) != 2 {
			continue
		}
		start, err1 := strconv.ParseUint(rng[0], 16, 64)
		end, err2 := strconv.ParseUint(rng[1], 16, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		if uint64(addr) < start || uint64(addr) >= end {
			continue
		}
		path := fields[len(fields)-1]
		if path == "" || strings.HasPrefix(path, "[") {
			continue
		}
		fileOffset, err := strconv.ParseUint(fields[2], 16, 64)
		if err != nil {
			return "", 0, kpackerr.New(kpackerr.PathDiscoveryFailed, op, err)
		}
		return path, fileOffset + (uint64(addr) - start), nil
	}
	if err := sc.Err(); err != nil {
		return "", 0, kpackerr.New(kpackerr.PathDiscoveryFailed, op, err)
	}
	return "", 0, kpackerr.New(kpackerr.PathDiscoveryFailed, op, nil)
}
