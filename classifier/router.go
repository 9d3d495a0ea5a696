package classifier

import (
	"log/slog"

	"github.com/hazyhaar/pdfmill/corpus"
)

// Route is the extraction path chosen for a document.
type Route string

const (
	// RouteText sends the document to the structured-text extractor.
	RouteText Route = "text"
	// RouteOCR sends the document to the vision-model OCR extractor.
	RouteOCR Route = "ocr"
)

// DefaultThreshold is the routing threshold observed in production runs.
// It is a configuration default, not a tuned constant.
const DefaultThreshold = 0.5

// Decision is the routing outcome for one document. The invariant is
// Route == RouteOCR exactly when OCRProbability >= the router's threshold;
// the boundary case routes to OCR.
type Decision struct {
	ID             string  `json:"id"`
	OCRProbability float64 `json:"ocr_probability"`
	Route          Route   `json:"route"`
}

// Router applies the loaded model and threshold rule to documents.
// It is read-only after construction and safe to share across shards.
type Router struct {
	model     *Model
	threshold float64
	logger    *slog.Logger
}

// NewRouter builds a router around a loaded model. A non-positive threshold
// falls back to DefaultThreshold.
func NewRouter(m *Model, threshold float64, logger *slog.Logger) *Router {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{model: m, threshold: threshold, logger: logger}
}

// Threshold reports the routing threshold in effect.
func (r *Router) Threshold() float64 { return r.threshold }

// Route classifies one document. Feature extraction failures surface as
// *ClassificationError; the caller records the document as failed.
func (r *Router) Route(doc corpus.Document) (Decision, error) {
	features, err := Features(doc)
	if err != nil {
		return Decision{}, err
	}
	p := r.model.Score(features)

	route := RouteText
	if p >= r.threshold {
		route = RouteOCR
	}
	r.logger.Debug("routed document", "id", doc.ID, "ocr_probability", p, "route", route)

	return Decision{ID: doc.ID, OCRProbability: p, Route: route}, nil
}
