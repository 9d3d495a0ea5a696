// Package backend implements the two extraction variants behind one contract.
//
// A document routed by the classifier is handed to exactly one Extractor:
// the structured-text variant parses the PDF's internal structure directly
// (fast, CPU-bound, deterministic); the OCR variant renders page images and
// submits them to a vision-language inference service (slow, GPU-bound on
// the service side, subject to transient backend failures).
//
// Both variants return partial results rather than discarding work when some
// pages succeed and others fail, and neither treats "no extractable text" as
// a fault: an empty result is a valid success. Unrecoverable failures
// surface as errors wrapping ErrBackendUnavailable or ErrTimeout so the
// pipeline can tell retryable conditions apart from everything else.
package backend

import (
	"context"
	"errors"

	"github.com/hazyhaar/pdfmill/classifier"
	"github.com/hazyhaar/pdfmill/corpus"
)

// ErrBackendUnavailable marks a transient inference-backend failure
// unrelated to document content. The pipeline retries these.
var ErrBackendUnavailable = errors.New("extraction backend unavailable")

// ErrTimeout marks an extraction that exceeded its deadline.
// The pipeline retries these.
var ErrTimeout = errors.New("extraction timed out")

// Status tags an extraction result.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusFailed         Status = "failed"
	StatusRetriedSuccess Status = "retried_success"
)

// PageResult is the per-page artifact of an extraction.
type PageResult struct {
	Number    int    `json:"number"`
	Text      string `json:"text"`
	ImagePath string `json:"image_path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Result is the document-level extraction outcome. Partial is set when some
// pages failed while others succeeded; the document still counts as a
// success with reduced content.
type Result struct {
	ID        string            `json:"id"`
	Route     classifier.Route  `json:"route"`
	Text      string            `json:"text"`
	PageCount int               `json:"page_count"`
	Pages     []PageResult      `json:"pages,omitempty"`
	Status    Status            `json:"status"`
	Partial   bool              `json:"partial,omitempty"`
}

// Extractor is the common contract of both variants: document in,
// extracted text plus metadata out. Implementations respect ctx deadlines
// and are safe for concurrent use across a shard's documents.
type Extractor interface {
	Extract(ctx context.Context, doc corpus.Document) (Result, error)
}

// Retryable reports whether err is a transient condition worth retrying.
func Retryable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable) || errors.Is(err, ErrTimeout)
}
