package corpus

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ZipSource enumerates PDF files inside a zip archive container.
//
// The archive is reopened per load so a Source stays restartable without
// holding a file handle for the lifetime of the run.
type ZipSource struct {
	// Path is the archive on disk.
	Path string
}

// Enumerate lists archive entries ending in .pdf, sorted by entry name.
func (s *ZipSource) Enumerate(ctx context.Context) ([]Ref, error) {
	zr, err := zip.OpenReader(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: open archive %s: %v", ErrSourceUnavailable, s.Path, err)
	}
	defer zr.Close()

	var refs []Ref
	for _, f := range zr.File {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".pdf") {
			continue
		}
		refs = append(refs, Ref{ID: idFromPath(f.Name), Origin: f.Name})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Origin < refs[j].Origin })
	return refs, nil
}

// Load extracts one entry's bytes from the archive.
func (s *ZipSource) Load(_ context.Context, ref Ref) (Document, error) {
	zr, err := zip.OpenReader(s.Path)
	if err != nil {
		return Document{}, fmt.Errorf("open archive %s: %w", s.Path, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != ref.Origin {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return Document{}, fmt.Errorf("open entry %s: %w", ref.Origin, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return Document{}, fmt.Errorf("read entry %s: %w", ref.Origin, err)
		}
		return Document{ID: ref.ID, Data: data, Origin: s.Path + "!" + ref.Origin, Size: int64(len(data))}, nil
	}
	return Document{}, fmt.Errorf("entry %s not found in %s", ref.Origin, s.Path)
}
