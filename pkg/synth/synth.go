// Package synth defines the change-synthesizer contract and its LLM-backed
// implementation. A synthesizer takes a batch of change requests plus the
// cumulative snapshot from earlier rounds and proposes new file contents.
// It never commits and never retries; both belong to the orchestrator.
package synth

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"autopatch/pkg/change"
)

// Synthesizer proposes file contents for a batch of change requests.
//
// The returned snapshot may be empty, which means "no changes produced"
// and is not an error. priorSnapshot is the baseline the synthesizer must
// extend, never replace: contents there supersede what is on disk.
//
// Failure modes are the typed errors of this package: TokenBudgetError,
// InvalidRequestError, SynthesisError.
type Synthesizer interface {
	Synthesize(ctx context.Context, batch change.Batch, description string, repo RepoReader, prior change.Snapshot) (change.Snapshot, error)
}

// RepoReader is the synthesizer's read-only view of the working tree.
type RepoReader interface {
	// ReadFile returns the contents of a repository-relative path.
	ReadFile(ctx context.Context, path string) (string, error)
	// ListFiles returns every tracked repository-relative path.
	ListFiles(ctx context.Context) ([]string, error)
}

// DirReader reads a checked-out repository from the local filesystem.
type DirReader struct {
	Root string
}

// NewDirReader creates a reader rooted at dir.
func NewDirReader(dir string) *DirReader {
	return &DirReader{Root: dir}
}

// ReadFile implements RepoReader.
func (d *DirReader) ReadFile(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(filepath.Join(d.Root, filepath.FromSlash(path)))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ListFiles implements RepoReader. Dot-directories (.git and friends) are
// skipped.
func (d *DirReader) ListFiles(_ context.Context) ([]string, error) {
	var files []string
	err := filepath.WalkDir(d.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := entry.Name()
		if entry.IsDir() {
			if path != d.Root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		rel, err := filepath.Rel(d.Root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
