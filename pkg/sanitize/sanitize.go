// Package sanitize defends the commit step against pollution: files present
// in a proposed snapshot that no change request accounts for.
package sanitize

import (
	"sort"

	"autopatch/pkg/change"
	"autopatch/pkg/config"
)

// Result reports what sanitization kept and removed.
type Result struct {
	Snapshot change.Snapshot
	// Removed lists dropped paths in sorted order. Removal is observable
	// for telemetry but never aborts the remaining commit.
	Removed []string
}

// Sanitize filters snapshot against the originating batch and the repo
// policy. A path is kept if any request names it (as target or declared
// relevant file) or if an allow pattern matches; blocked directories are
// dropped unconditionally. Pure and idempotent: sanitizing an already
// sanitized snapshot returns it unchanged with an empty removed set.
func Sanitize(snapshot change.Snapshot, batch change.Batch, policy *config.RepoPolicy) Result {
	kept := make(change.Snapshot, len(snapshot))
	var removed []string

	for path, fc := range snapshot {
		if keep(path, batch, policy) {
			kept[path] = fc
			continue
		}
		removed = append(removed, path)
	}

	sort.Strings(removed)
	return Result{Snapshot: kept, Removed: removed}
}

func keep(path string, batch change.Batch, policy *config.RepoPolicy) bool {
	if policy != nil && policy.BlocksPath(path) {
		return false
	}
	if batch.Names(path) {
		return true
	}
	return policy != nil && policy.AllowsPath(path)
}
