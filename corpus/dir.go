package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirSource enumerates PDF files under a local directory.
type DirSource struct {
	// Root is the directory to scan.
	Root string
	// Pattern is a file glob matched against names relative to Root.
	// Empty means "*.pdf". The walk is recursive only when the pattern
	// contains a path separator (e.g. "**" is not supported; "sub/*.pdf" is).
	Pattern string
}

// Enumerate walks the directory and returns matching files sorted by path.
func (s *DirSource) Enumerate(ctx context.Context) ([]Ref, error) {
	pattern := s.Pattern
	if pattern == "" {
		pattern = "*.pdf"
	}

	info, err := os.Stat(s.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", ErrSourceUnavailable, s.Root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrSourceUnavailable, s.Root)
	}

	var refs []Ref
	err = filepath.WalkDir(s.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.Root, p)
		if err != nil {
			return err
		}
		match, err := filepath.Match(pattern, filepath.ToSlash(rel))
		if err != nil {
			return fmt.Errorf("pattern %q: %w", pattern, err)
		}
		// A bare file pattern should also match files in subdirectories.
		if !match && !strings.ContainsRune(pattern, '/') {
			match, _ = filepath.Match(pattern, d.Name())
		}
		if match {
			refs = append(refs, Ref{ID: idFromPath(rel), Origin: p})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: walk %s: %v", ErrSourceUnavailable, s.Root, err)
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Origin < refs[j].Origin })
	return refs, nil
}

// Load reads one file from disk.
func (s *DirSource) Load(_ context.Context, ref Ref) (Document, error) {
	data, err := os.ReadFile(ref.Origin)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", ref.Origin, err)
	}
	return Document{ID: ref.ID, Data: data, Origin: ref.Origin, Size: int64(len(data))}, nil
}
