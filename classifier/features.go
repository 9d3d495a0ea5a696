package classifier

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/hazyhaar/pdfmill/corpus"
)

// FeatureCount is the width of the vector produced by Features. The model
// artifact must be trained on the same layout.
const FeatureCount = 7

// ClassificationError marks a document whose features could not be computed,
// typically because the PDF structure is corrupt. Such documents are recorded
// as failed and excluded from both extraction paths, never defaulted to a
// route.
type ClassificationError struct {
	ID  string
	Err error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify %s: %v", e.ID, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// Features derives the structural feature vector for a document:
//
//	0  page count
//	1  file size in KiB
//	2  image XObjects per page
//	3  distinct font objects
//	4  content-stream bytes per page
//	5  text-show operators per page
//	6  indirect objects per page
//
// Only structure and metadata are probed; the document's text is never
// assembled here.
func Features(doc corpus.Document) ([]float64, error) {
	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(doc.Data), conf)
	if err != nil {
		return nil, &ClassificationError{ID: doc.ID, Err: fmt.Errorf("pdfcpu read: %w", err)}
	}
	if pctx.PageCount == 0 {
		return nil, &ClassificationError{ID: doc.ID, Err: fmt.Errorf("no pages")}
	}
	pages := float64(pctx.PageCount)

	images := 0
	contentBytes := 0
	textOps := 0
	for pageNr := 1; pageNr <= pctx.PageCount; pageNr++ {
		images += len(pdfcpu.ImageObjNrs(pctx, pageNr))

		r, err := pdfcpu.ExtractPageContent(pctx, pageNr)
		if err != nil || r == nil {
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil {
			continue
		}
		contentBytes += len(data)
		textOps += countTextOps(data)
	}

	fonts := 0
	if pctx.Optimize != nil {
		fonts = len(pctx.Optimize.FontObjects)
	}

	objects := 0
	if pctx.Size != nil {
		objects = *pctx.Size
	}

	return []float64{
		pages,
		float64(len(doc.Data)) / 1024,
		float64(images) / pages,
		float64(fonts),
		float64(contentBytes) / pages,
		float64(textOps) / pages,
		float64(objects) / pages,
	}, nil
}

// countTextOps counts Tj/TJ text-show operators in a decoded content stream.
// The count is approximate (a literal " Tj " inside a string would match) but
// it is a density signal for the classifier, not a parse.
func countTextOps(stream []byte) int {
	count := 0
	for i := 0; i+1 < len(stream); i++ {
		if stream[i] != 'T' || (stream[i+1] != 'j' && stream[i+1] != 'J') {
			continue
		}
		if !opBoundary(stream, i-1, true) || !opBoundary(stream, i+2, false) {
			continue
		}
		count++
	}
	return count
}

// opBoundary reports whether the byte at index i delimits an operator token.
// Out-of-range indexes count as boundaries. before distinguishes the byte
// preceding the token, where PDF string/array delimiters also terminate.
func opBoundary(stream []byte, i int, before bool) bool {
	if i < 0 || i >= len(stream) {
		return true
	}
	switch stream[i] {
	case ' ', '\n', '\r', '\t':
		return true
	case ')', ']':
		return before
	}
	return false
}
