// Package pipeline orchestrates the three processing stages over a PDF
// corpus: classification (route every document to a text or OCR path),
// text extraction and OCR extraction. Work is partitioned into statically
// owned shards; each (stage, shard) pair writes one gzip JSONL output file
// and one completion marker, and re-runs skip everything already marked.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hazyhaar/pdfmill/backend"
	"github.com/hazyhaar/pdfmill/classifier"
	"github.com/hazyhaar/pdfmill/corpus"
	"github.com/hazyhaar/pdfmill/observability"
	"github.com/hazyhaar/pdfmill/sched"
	"github.com/hazyhaar/pdfmill/stats"
)

// Pipeline wires a corpus source, the routing classifier and both
// extraction backends behind a shard scheduler.
type Pipeline struct {
	cfg     *Config
	source  corpus.Source
	router  *classifier.Router
	textExt backend.Extractor
	ocrExt  backend.Extractor
	markers *sched.Markers
	sched   *sched.Scheduler
	health  func(context.Context) (*observability.HeartbeatStatus, error)
	logger  *slog.Logger
}

// Option customises pipeline construction.
type Option func(*Pipeline)

// WithSource overrides the source derived from the config.
func WithSource(src corpus.Source) Option {
	return func(p *Pipeline) { p.source = src }
}

// WithExtractors overrides both extraction backends. Used by tests and by
// the MCP surface to inject fakes.
func WithExtractors(text, ocr backend.Extractor) Option {
	return func(p *Pipeline) { p.textExt = text; p.ocrExt = ocr }
}

// WithEvents routes shard lifecycle events, typically to the run ledger.
func WithEvents(ev sched.Events) Option {
	return func(p *Pipeline) {
		p.sched = sched.NewScheduler(p.cfg.Workers, p.markers, ev, p.logger)
	}
}

// WithWorkerHealth surfaces the worker's latest heartbeat on the status
// endpoints. The function typically wraps observability.LatestHeartbeat
// against the ledger database.
func WithWorkerHealth(fn func(context.Context) (*observability.HeartbeatStatus, error)) Option {
	return func(p *Pipeline) { p.health = fn }
}

// New builds a pipeline from config. The classifier model is loaded from
// cfg.ModelPath; the source comes from cfg.Source unless overridden.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	model, err := classifier.LoadModel(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	p := &Pipeline{
		cfg:     cfg,
		router:  classifier.NewRouter(model, cfg.Threshold, logger),
		markers: sched.NewMarkers(filepath.Join(cfg.OutputDir, "completions")),
		logger:  logger,
	}
	p.sched = sched.NewScheduler(cfg.Workers, p.markers, nil, logger)

	p.source, err = newSource(cfg.Source)
	if err != nil {
		return nil, err
	}

	p.textExt = backend.NewTextExtractor(logger)
	vision := backend.NewVisionClient(
		cfg.Vision.BaseURL, cfg.Vision.Model,
		cfg.Vision.MaxTokens, cfg.Vision.Temperature, logger)
	p.ocrExt = backend.NewOCRExtractor(vision, backend.OCROptions{
		MaxConcurrent: int64(cfg.Vision.MaxConcurrent),
		PagesDir:      filepath.Join(cfg.OutputDir, "ocr_pages"),
		MaxPages:      cfg.Vision.MaxPages,
	}, logger)

	for _, o := range opts {
		o(p)
	}
	return p, nil
}

func newSource(sc SourceConfig) (corpus.Source, error) {
	switch sc.Type {
	case "dir":
		pattern := sc.Pattern
		if pattern == "" {
			pattern = "*.pdf"
		}
		return &corpus.DirSource{Root: sc.Path, Pattern: pattern}, nil
	case "zip":
		return &corpus.ZipSource{Path: sc.Path}, nil
	case "remote":
		return &corpus.RemoteSource{ListingURL: sc.URL}, nil
	default:
		return nil, fmt.Errorf("unsupported source type %q", sc.Type)
	}
}

// Report summarises a completed run.
type Report struct {
	Documents int                       `json:"documents"`
	Totals    map[string]stats.Snapshot `json:"totals"`
	Shards    []stats.Snapshot          `json:"shards"`
}

// Run executes all three stages in order. An unreachable source is fatal;
// individual document failures are recorded and counted, never fatal. The
// returned error is non-nil when the source failed or at least one shard
// failed, but the report is valid either way.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	refs, err := p.source.Enumerate(ctx)
	if err != nil {
		if errors.Is(err, corpus.ErrSourceUnavailable) {
			return nil, fmt.Errorf("corpus source unavailable: %w", err)
		}
		return nil, fmt.Errorf("enumerate corpus: %w", err)
	}
	if p.cfg.PDFLimit > 0 && len(refs) > p.cfg.PDFLimit {
		refs = refs[:p.cfg.PDFLimit]
	}
	p.logger.Info("corpus enumerated", "documents", len(refs), "shards", p.cfg.NumTasks)

	for _, d := range LayoutDirs {
		if err := os.MkdirAll(filepath.Join(p.cfg.OutputDir, d), 0755); err != nil {
			return nil, fmt.Errorf("prepare output layout: %w", err)
		}
	}

	var stageErrs []error
	if err := p.sched.RunStage(ctx, StageClassification, p.cfg.NumTasks, func(ctx context.Context, shard sched.Shard) error {
		return p.classifyShard(ctx, shard, refs)
	}); err != nil {
		stageErrs = append(stageErrs, err)
	}

	if err := p.sched.RunStage(ctx, StageText, p.cfg.NumTasks, func(ctx context.Context, shard sched.Shard) error {
		return p.extractShard(ctx, shard, StageText, classifier.RouteText, p.textExt)
	}); err != nil {
		stageErrs = append(stageErrs, err)
	}

	if err := p.sched.RunStage(ctx, StageOCR, p.cfg.NumTasks, func(ctx context.Context, shard sched.Shard) error {
		return p.extractShard(ctx, shard, StageOCR, classifier.RouteOCR, p.ocrExt)
	}); err != nil {
		stageErrs = append(stageErrs, err)
	}

	report, err := p.Report()
	if err != nil {
		stageErrs = append(stageErrs, err)
	}
	if report != nil {
		report.Documents = len(refs)
		if err := stats.SaveTotals(filepath.Join(p.cfg.OutputDir, "stats"), report.Totals); err != nil {
			stageErrs = append(stageErrs, err)
		}
	}
	return report, errors.Join(stageErrs...)
}

// Report aggregates the persisted per-shard snapshots into totals. It works
// on whatever is on disk, so it is valid after partial runs too.
func (p *Pipeline) Report() (*Report, error) {
	shards, err := stats.LoadDir(filepath.Join(p.cfg.OutputDir, "stats"))
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}
	return &Report{
		Totals: stats.Merge(shards),
		Shards: shards,
	}, nil
}

// ClearStage removes a stage's completion markers so the next run redoes it.
func (p *Pipeline) ClearStage(stage string) error {
	return p.markers.Clear(stage)
}

// stagePath names a (stage, shard) output file.
func (p *Pipeline) stagePath(stage string, shard sched.Shard) string {
	return filepath.Join(p.cfg.OutputDir, stage, shard.Name()+".jsonl.gz")
}

// failurePath names a (stage, shard) failure file.
func (p *Pipeline) failurePath(stage string, shard sched.Shard) string {
	return filepath.Join(p.cfg.OutputDir, "failures", stage+"."+shard.Name()+".jsonl.gz")
}

// inputDir is where classification mirrors the PDFs of a route.
func (p *Pipeline) inputDir(route classifier.Route) string {
	return filepath.Join(p.cfg.OutputDir, string(route)+"_input")
}
