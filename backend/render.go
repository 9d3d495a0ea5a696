package backend

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/hazyhaar/pdfmill/corpus"
)

// PageImage is one page's raster payload, ready to be submitted to the
// vision service or persisted for audit.
type PageImage struct {
	Number int
	Data   []byte
	Format string
}

// Renderer converts a document into per-page images, up to maxPages pages
// (0 means all). It returns the images together with the document's total
// page count.
type Renderer func(doc corpus.Document, maxPages int) ([]PageImage, int, error)

// PDFPageImages is the default Renderer. It pulls each page's embedded
// image XObjects and keeps the largest one per page, which for scanned
// documents is the full-page scan itself. Pages without any image are
// skipped; the OCR extractor records them as empty pages.
func PDFPageImages(doc corpus.Document, maxPages int) ([]PageImage, int, error) {
	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(doc.Data), conf)
	if err != nil {
		return nil, 0, fmt.Errorf("pdfcpu read %s: %w", doc.ID, err)
	}
	total := pctx.PageCount

	limit := total
	if maxPages > 0 && maxPages < limit {
		limit = maxPages
	}

	var images []PageImage
	for pageNr := 1; pageNr <= limit; pageNr++ {
		img, ok, err := largestPageImage(pctx, pageNr)
		if err != nil {
			return nil, 0, fmt.Errorf("render %s page %d: %w", doc.ID, pageNr, err)
		}
		if !ok {
			continue
		}
		img.Number = pageNr
		images = append(images, img)
	}
	return images, total, nil
}

func largestPageImage(pctx *model.Context, pageNr int) (PageImage, bool, error) {
	extracted, err := pdfcpu.ExtractPageImages(pctx, pageNr, false)
	if err != nil {
		return PageImage{}, false, err
	}

	var best PageImage
	found := false
	for _, img := range extracted {
		data, err := io.ReadAll(img)
		if err != nil {
			return PageImage{}, false, err
		}
		if !found || len(data) > len(best.Data) {
			best = PageImage{Data: data, Format: img.FileType}
			found = true
		}
	}
	return best, found, nil
}
