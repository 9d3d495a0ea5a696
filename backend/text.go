package backend

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/hazyhaar/pdfmill/classifier"
	"github.com/hazyhaar/pdfmill/corpus"
)

// TextExtractor pulls text straight out of the PDF's content streams. It is
// the fast path for documents the classifier judged to carry a usable text
// layer. Pages that fail to decode are recorded per page and the rest of the
// document is still extracted.
type TextExtractor struct {
	logger *slog.Logger
}

// NewTextExtractor returns a structured-text extractor. A nil logger falls
// back to slog.Default().
func NewTextExtractor(logger *slog.Logger) *TextExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextExtractor{logger: logger}
}

// Extract implements Extractor. Document-level parse failures are terminal
// for the document; they do not wrap ErrBackendUnavailable because retrying
// the same bytes cannot help.
func (e *TextExtractor) Extract(ctx context.Context, doc corpus.Document) (Result, error) {
	reader, err := openPDF(doc.Data)
	if err != nil {
		return Result{}, fmt.Errorf("parse %s: %w", doc.ID, err)
	}

	res := Result{
		ID:        doc.ID,
		Route:     classifier.RouteText,
		PageCount: reader.NumPage(),
		Status:    StatusSuccess,
	}

	var sb strings.Builder
	failed := 0
	for pageNr := 1; pageNr <= res.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("%w: %s page %d: %v", ErrTimeout, doc.ID, pageNr, err)
		}

		pr := PageResult{Number: pageNr}
		text, err := pageText(reader, pageNr)
		if err != nil {
			failed++
			pr.Error = err.Error()
			e.logger.Debug("page extraction failed", "id", doc.ID, "page", pageNr, "error", err)
		} else {
			pr.Text = text
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				sb.WriteString(text)
			}
		}
		res.Pages = append(res.Pages, pr)
	}

	res.Text = sb.String()
	if failed > 0 && failed < res.PageCount {
		res.Partial = true
	}
	if failed == res.PageCount && res.PageCount > 0 {
		return Result{}, fmt.Errorf("extract %s: all %d pages failed", doc.ID, res.PageCount)
	}
	return res, nil
}

// openPDF wraps the reader construction in a recover because the parser
// panics on some malformed cross-reference tables instead of returning an
// error.
func openPDF(raw []byte) (r *pdf.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("pdf parser panic: %v", p)
		}
	}()
	return pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
}

// pageText decodes one page's plain text, again guarding against parser
// panics on damaged streams.
func pageText(r *pdf.Reader, pageNr int) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("pdf parser panic: %v", p)
		}
	}()
	page := r.Page(pageNr)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d is null", pageNr)
	}
	return page.GetPlainText(nil)
}
