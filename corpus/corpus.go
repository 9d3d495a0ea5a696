// Package corpus enumerates source documents for a pipeline run.
//
// A Source yields a deterministic, finite, restartable sequence of document
// references: the same source descriptor always enumerates the same documents
// in the same order. Shard assignment depends on that ordering, so every
// implementation sorts its references before returning them.
//
// Enumeration is cheap; Load fetches one document's bytes on demand. A source
// that cannot be enumerated at all fails with ErrSourceUnavailable, which is
// fatal to the run. A single document that cannot be loaded is not: callers
// record the failure and move on.
package corpus

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrSourceUnavailable signals that the source itself cannot be enumerated.
// Unlike per-document load failures, this aborts the whole run.
var ErrSourceUnavailable = errors.New("source unavailable")

// Document is one input unit. It is owned by the shard processing it and is
// never shared; the pipeline discards it after extraction.
type Document struct {
	ID     string // stable identifier derived from the source path
	Data   []byte
	Origin string // path or URL the bytes came from
	Size   int64
}

// Ref is a lightweight handle to a document, produced by enumeration.
type Ref struct {
	ID     string
	Origin string
}

// Source is a corpus of PDF documents.
type Source interface {
	// Enumerate returns all document references in a stable order.
	Enumerate(ctx context.Context) ([]Ref, error)
	// Load fetches the bytes for one reference.
	Load(ctx context.Context, ref Ref) (Document, error)
}

// idFromPath derives a stable document ID from a source-relative path:
// the extension is dropped and path separators become underscores, so the
// ID is safe to reuse as a file name in the output tree.
func idFromPath(p string) string {
	p = strings.TrimPrefix(path.Clean(strings.ReplaceAll(p, "\\", "/")), "/")
	if ext := path.Ext(p); ext != "" {
		p = p[:len(p)-len(ext)]
	}
	return strings.ReplaceAll(p, "/", "_")
}
