// Package kpackenv snapshots the process environment that governs archive
// search at cache-construction time. The snapshot is immutable afterward;
// nothing in this package re-reads the environment later.
package kpackenv

import (
	"os"
	"path/filepath"
	"strings"
)

// Names of the environment variables read by Snapshot. Kept as exported
// constants so callers (and tests) can refer to the exact names without
// repeating string literals.
const (
	OverridePathVar = "KPACK_SEARCH_PATH_OVERRIDE"
	PrefixPathVar   = "KPACK_SEARCH_PATH_PREFIX"
	DisableVar      = "KPACK_DISABLE"
	DebugVar        = "KPACK_DEBUG"
)

// Snapshot holds the environment state captured once when a cache is
// created. Multiple caches may hold distinct snapshots.
type Snapshot struct {
	OverridePaths []string
	PrefixPaths   []string
	Disabled      bool
	Debug         bool
}

// New reads the current process environment and returns an immutable
// Snapshot. Path lists are split on the platform path separator with empty
// components discarded, matching spec.md's override/prefix path rules.
func New() Snapshot {
	return Snapshot{
		OverridePaths: splitPathList(os.Getenv(OverridePathVar)),
		PrefixPaths:   splitPathList(os.Getenv(PrefixPathVar)),
		Disabled:      truthy(os.Getenv(DisableVar)),
		Debug:         truthy(os.Getenv(DebugVar)),
	}
}

func splitPathList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, string(filepath.ListSeparator)) {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// truthy implements the spec's boolean env-var rule: true iff the variable
// is set, non-empty, and its first character isn't '0'. This is
// deliberately not strconv.ParseBool — "1", "yes", "true" and "0" are all
// meant to behave the same bespoke way here.
func truthy(v string) bool {
	return v != "" && v[0] != '0'
}
