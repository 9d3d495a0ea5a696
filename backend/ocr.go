package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/hazyhaar/pdfmill/classifier"
	"github.com/hazyhaar/pdfmill/corpus"
)

// transcriber is the slice of VisionClient the extractor needs.
type transcriber interface {
	TranscribePage(ctx context.Context, img PageImage) (string, error)
}

// OCRExtractor renders a document's pages to images and submits each image
// to the vision inference service. The semaphore bounds in-flight inference
// requests across every document and shard sharing this extractor, so the
// service never sees more than the configured concurrency regardless of how
// wide the pipeline fans out.
type OCRExtractor struct {
	client   transcriber
	render   Renderer
	sem      *semaphore.Weighted
	pagesDir string
	maxPages int
	logger   *slog.Logger
}

// OCROptions tunes an OCRExtractor.
type OCROptions struct {
	// MaxConcurrent caps simultaneous inference requests. Zero means 4.
	MaxConcurrent int64
	// PagesDir, when non-empty, receives one image file per rendered page
	// for audit. Files are named <id>.page_NNNN.<ext>.
	PagesDir string
	// MaxPages limits how many pages per document are rendered and
	// transcribed. Zero means all pages.
	MaxPages int
	// Render overrides the default page renderer.
	Render Renderer
}

// NewOCRExtractor wires the vision client behind the Extractor contract.
func NewOCRExtractor(client *VisionClient, opts OCROptions, logger *slog.Logger) *OCRExtractor {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.Render == nil {
		opts.Render = PDFPageImages
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRExtractor{
		client:   client,
		render:   opts.Render,
		sem:      semaphore.NewWeighted(opts.MaxConcurrent),
		pagesDir: opts.PagesDir,
		maxPages: opts.MaxPages,
		logger:   logger,
	}
}

// Extract implements Extractor. Pages are transcribed concurrently under the
// shared semaphore. A document where every submitted page hit a backend
// fault returns a retryable error; anything less is a partial success.
func (e *OCRExtractor) Extract(ctx context.Context, doc corpus.Document) (Result, error) {
	images, total, err := e.render(doc, e.maxPages)
	if err != nil {
		return Result{}, fmt.Errorf("render %s: %w", doc.ID, err)
	}

	res := Result{
		ID:        doc.ID,
		Route:     classifier.RouteOCR,
		PageCount: total,
		Status:    StatusSuccess,
	}
	if len(images) == 0 {
		e.logger.Debug("no page images to transcribe", "id", doc.ID, "pages", total)
		return res, nil
	}

	pages := make([]PageResult, len(images))
	errs := make([]error, len(images))
	var wg sync.WaitGroup
	for i, img := range images {
		pages[i] = PageResult{Number: img.Number}
		if e.pagesDir != "" {
			path, err := e.savePage(doc.ID, img)
			if err != nil {
				e.logger.Warn("page image not saved", "id", doc.ID, "page", img.Number, "error", err)
			} else {
				pages[i].ImagePath = path
			}
		}

		wg.Add(1)
		go func(i int, img PageImage) {
			defer wg.Done()
			if err := e.sem.Acquire(ctx, 1); err != nil {
				errs[i] = fmt.Errorf("%w: %v", ErrTimeout, err)
				pages[i].Error = errs[i].Error()
				return
			}
			defer e.sem.Release(1)

			text, err := e.client.TranscribePage(ctx, img)
			if err != nil {
				errs[i] = err
				pages[i].Error = err.Error()
				return
			}
			pages[i].Text = text
		}(i, img)
	}
	wg.Wait()

	// Fault classification works on the error values, not the recorded
	// strings; a transcript merely mentioning a fault message must not count.
	failed := 0
	backendFaults := 0
	for _, err := range errs {
		if err == nil {
			continue
		}
		failed++
		if Retryable(err) {
			backendFaults++
		}
	}

	sortPages(pages)
	var sb strings.Builder
	for _, pr := range pages {
		if pr.Error == "" && pr.Text != "" {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(pr.Text)
		}
	}
	res.Pages = pages
	res.Text = sb.String()

	if failed == len(pages) && backendFaults > 0 {
		return Result{}, fmt.Errorf("transcribe %s: %w: all %d pages failed", doc.ID, ErrBackendUnavailable, len(pages))
	}
	if failed > 0 {
		res.Partial = true
	}
	return res, nil
}

// savePage writes one rendered page image under pagesDir.
func (e *OCRExtractor) savePage(id string, img PageImage) (string, error) {
	if err := os.MkdirAll(e.pagesDir, 0755); err != nil {
		return "", err
	}
	ext := img.Format
	if ext == "" {
		ext = "bin"
	}
	path := filepath.Join(e.pagesDir, fmt.Sprintf("%s.page_%04d.%s", id, img.Number, ext))
	if err := os.WriteFile(path, img.Data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// sortPages orders results by page number. Renderers already emit pages in
// order; this guards custom renderers.
func sortPages(pages []PageResult) {
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
}
