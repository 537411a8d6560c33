// Package kpackcache implements the process-wide archive cache and the
// arch-first search across cached archives (spec.md §4.5–§4.7).
package kpackcache

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/rocm/kpack/archive"
	"github.com/rocm/kpack/kpackenv"
	"github.com/rocm/kpack/kpackerr"
	"github.com/rocm/kpack/marker"
)

// Cache is the process-level collaborator of spec.md §3's "Cache
// (in-memory)": an immutable environment snapshot plus memoized open
// archives, keyed by canonical path, guarded by a single mutex that is
// never held across a kernel fetch.
type Cache struct {
	env kpackenv.Snapshot

	mu       sync.Mutex
	archives map[string]*archive.Archive
	archSets map[string]map[string]struct{} // canonical path -> arch name set
}

// New snapshots the current environment and returns an empty, ready-to-use
// cache. New itself is not thread-safe (spec.md §4.5); the returned Cache
// is thread-safe thereafter.
func New() *Cache {
	return &Cache{
		env:      kpackenv.New(),
		archives: make(map[string]*archive.Archive),
		archSets: make(map[string]map[string]struct{}),
	}
}

// Close closes every memoized archive and releases cache state. The
// caller must ensure no concurrent users (spec.md §4.5, §5).
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, a := range c.archives {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.archives = make(map[string]*archive.Archive)
	c.archSets = make(map[string]map[string]struct{})
	return firstErr
}

// ArchiveCount returns the number of distinct canonical archive paths
// currently memoized. Exposed for tests verifying cache memoization
// (spec.md §8 testable property 4); not part of the C-ABI-shaped surface.
func (c *Cache) ArchiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.archives)
}

// LoadCodeObject is spec.md §4.6's load_code_object: parse markerBytes,
// resolve search paths, open-and-cache archives, and perform the
// arch-first search, returning a freshly allocated, caller-owned buffer.
func (c *Cache) LoadCodeObject(markerBytes []byte, binaryPath string, archList []string) ([]byte, error) {
	const op = "kpackcache.LoadCodeObject"

	if markerBytes == nil || binaryPath == "" || len(archList) == 0 {
		return nil, kpackerr.New(kpackerr.InvalidArgument, op, nil)
	}

	if c.env.Disabled {
		slog.Debug("kpack: cache disabled, load_code_object short-circuited")
		return nil, kpackerr.New(kpackerr.NotImplemented, op, nil)
	}

	m, err := marker.Decode(markerBytes)
	if err != nil {
		return nil, err
	}
	if c.env.Debug {
		slog.Debug("kpack: marker parsed", "kernel_name", m.KernelName, "search_paths", m.SearchPaths)
	}

	searchPaths := resolveSearchPaths(c.env, *m, binaryPath)
	if c.env.Debug {
		slog.Debug("kpack: search paths resolved", "paths", searchPaths)
	}

	var validCanonical []string
	for _, p := range searchPaths {
		canon, err := canonicalPath(p)
		if err != nil {
			continue
		}
		if _, _, ok := c.resolveArchive(canon); ok {
			validCanonical = append(validCanonical, canon)
		}
	}

	if len(validCanonical) == 0 {
		return nil, kpackerr.New(kpackerr.ArchiveNotFound, op, nil)
	}

	// Arch-first search: outer loop architecture, inner loop archive, so
	// the highest-priority architecture wins even if it's only present in
	// a later-listed archive (spec.md §4.6, testable property 3).
	for _, arch := range archList {
		for _, canon := range validCanonical {
			c.mu.Lock()
			a := c.archives[canon]
			archs := c.archSets[canon]
			c.mu.Unlock()

			if _, ok := archs[arch]; !ok {
				continue
			}

			buf, err := a.GetKernel(m.KernelName, arch)
			if err != nil {
				if kpackerr.Is(err, kpackerr.KernelNotFound) {
					continue
				}
				return nil, err
			}
			if c.env.Debug {
				slog.Debug("kpack: kernel located", "binary", m.KernelName, "arch", arch, "archive", canon)
			}
			return buf, nil
		}
	}

	return nil, kpackerr.New(kpackerr.ArchNotFound, op, nil)
}

// resolveArchive reuses a memoized archive for canon, or opens and
// memoizes it if the file exists and opens successfully. It holds the
// cache mutex for the entire check-or-open sequence so that only one
// archive is ever opened for a given canonical path, even under
// concurrent first use (spec.md §4.6 step 5, testable property 4).
func (c *Cache) resolveArchive(canon string) (*archive.Archive, map[string]struct{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if a, ok := c.archives[canon]; ok {
		return a, c.archSets[canon], true
	}

	if _, err := os.Stat(canon); err != nil {
		return nil, nil, false
	}

	a, err := archive.Open(canon)
	if err != nil {
		if c.env.Debug {
			slog.Debug("kpack: archive open failed, skipping", "path", canon, "error", err)
		}
		return nil, nil, false
	}

	archs := make(map[string]struct{}, a.ArchitectureCount())
	for i := 0; i < a.ArchitectureCount(); i++ {
		name, _ := a.Architecture(i)
		archs[name] = struct{}{}
	}

	c.archives[canon] = a
	c.archSets[canon] = archs
	if c.env.Debug {
		slog.Debug("kpack: archive opened and cached", "path", canon, "architectures", len(archs))
	}
	return a, archs, true
}

// resolveSearchPaths builds the effective search path list (spec.md §4.6
// step 4): an exclusive override list, or the prefix list followed by the
// marker's paths resolved against binaryPath's parent directory.
func resolveSearchPaths(env kpackenv.Snapshot, m marker.Marker, binaryPath string) []string {
	if len(env.OverridePaths) > 0 {
		out := make([]string, len(env.OverridePaths))
		copy(out, env.OverridePaths)
		return out
	}

	out := make([]string, 0, len(env.PrefixPaths)+len(m.SearchPaths))
	out = append(out, env.PrefixPaths...)

	baseDir := filepath.Dir(binaryPath)
	for _, p := range m.SearchPaths {
		if filepath.IsAbs(p) {
			out = append(out, filepath.Clean(p))
		} else {
			out = append(out, filepath.Clean(filepath.Join(baseDir, p)))
		}
	}
	return out
}

// canonicalPath resolves path to an absolute, symlink-resolved form used
// as the cache key. If the path doesn't exist yet (or symlink resolution
// fails for another reason), the cleaned absolute path is used as-is.
func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

// EnumerateArchitectures opens archivePath, invokes fn once per
// architecture in TOC order, and closes the archive before returning
// (spec.md §4.7). fn returning false halts enumeration early.
func EnumerateArchitectures(archivePath string, fn func(arch string) bool) error {
	a, err := archive.Open(archivePath)
	if err != nil {
		return err
	}
	defer a.Close()

	for i := 0; i < a.ArchitectureCount(); i++ {
		name, _ := a.Architecture(i)
		if !fn(name) {
			break
		}
	}
	return nil
}
