package change

import "sort"

// FileChange holds the proposed new contents of one file alongside the
// contents it replaces. OriginalContents is empty for created files.
type FileChange struct {
	Contents         string
	OriginalContents string
}

// Snapshot maps file path to its proposed change. It represents the
// cumulative proposed state across all rounds for the current branch and is
// the carry-forward baseline handed into each new synthesis round.
type Snapshot map[string]FileChange

// Clone returns an independent copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for path, fc := range s {
		out[path] = fc
	}
	return out
}

// Merge returns a new snapshot with entries from next overwriting same-path
// entries of s. Entries untouched by next persist unchanged, so later rounds
// build on, never discard, earlier edits.
func (s Snapshot) Merge(next Snapshot) Snapshot {
	out := s.Clone()
	for path, fc := range next {
		out[path] = fc
	}
	return out
}

// Paths returns the snapshot's file paths in sorted order.
func (s Snapshot) Paths() []string {
	paths := make([]string, 0, len(s))
	for path := range s {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Contents flattens the snapshot to path→new contents, the shape the
// committer consumes.
func (s Snapshot) Contents() map[string]string {
	out := make(map[string]string, len(s))
	for path, fc := range s {
		out[path] = fc.Contents
	}
	return out
}
