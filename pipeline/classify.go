package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/pdfmill/classifier"
	"github.com/hazyhaar/pdfmill/corpus"
	"github.com/hazyhaar/pdfmill/jsonl"
	"github.com/hazyhaar/pdfmill/sched"
	"github.com/hazyhaar/pdfmill/stats"
)

// classifyShard routes every document this shard owns and mirrors its bytes
// into the input directory of the chosen path. Documents that cannot be
// loaded or classified become failure records; they reach neither
// extraction path.
func (p *Pipeline) classifyShard(ctx context.Context, shard sched.Shard, refs []corpus.Ref) error {
	start := time.Now()
	out, err := jsonl.NewWriter(p.stagePath(StageClassification, shard))
	if err != nil {
		return err
	}

	var counters stats.Counters
	var failures []FailureRecord

	for i, ref := range refs {
		if !shard.Owns(i) {
			continue
		}
		if err := ctx.Err(); err != nil {
			out.Abort()
			return err
		}
		counters.Processed++

		doc, err := p.source.Load(ctx, ref)
		if err != nil {
			counters.Failed++
			failures = append(failures, FailureRecord{
				ID: ref.ID, Stage: StageClassification,
				Error: fmt.Sprintf("load: %v", err),
			})
			p.logger.Warn("document load failed", "id", ref.ID, "error", err)
			continue
		}

		dec, err := p.router.Route(doc)
		if err != nil {
			counters.Failed++
			failures = append(failures, FailureRecord{
				ID: ref.ID, Stage: StageClassification, Error: err.Error(),
			})
			continue
		}

		if err := p.mirrorInput(dec, doc); err != nil {
			out.Abort()
			return err
		}
		if err := out.Write(dec); err != nil {
			out.Abort()
			return err
		}
		counters.Succeeded++
	}

	if err := out.Close(); err != nil {
		return err
	}
	if err := p.writeFailures(StageClassification, shard, failures); err != nil {
		return err
	}
	return stats.Save(filepath.Join(p.cfg.OutputDir, "stats"), stats.Snapshot{
		Stage:          StageClassification,
		Shard:          shard.Index,
		Counters:       counters,
		ElapsedSeconds: time.Since(start).Seconds(),
	})
}

// mirrorInput copies the document bytes to the input directory of its
// route, so extraction stages read from the run's own layout instead of
// going back to the source.
func (p *Pipeline) mirrorInput(dec classifier.Decision, doc corpus.Document) error {
	dir := p.inputDir(dec.Route)
	path := filepath.Join(dir, doc.ID+".pdf")
	if err := os.WriteFile(path, doc.Data, 0644); err != nil {
		return fmt.Errorf("mirror %s: %w", doc.ID, err)
	}
	return nil
}

// writeFailures persists a shard's failure records. No file is created when
// nothing failed.
func (p *Pipeline) writeFailures(stage string, shard sched.Shard, failures []FailureRecord) error {
	if len(failures) == 0 {
		return nil
	}
	w, err := jsonl.NewWriter(p.failurePath(stage, shard))
	if err != nil {
		return err
	}
	for _, f := range failures {
		if err := w.Write(f); err != nil {
			w.Abort()
			return err
		}
	}
	return w.Close()
}
