package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/pdfmill/backend"
	"github.com/hazyhaar/pdfmill/classifier"
	"github.com/hazyhaar/pdfmill/corpus"
	"github.com/hazyhaar/pdfmill/jsonl"
	"github.com/hazyhaar/pdfmill/sched"
	"github.com/hazyhaar/pdfmill/stats"
)

// extractShard runs one extraction backend over the shard's documents that
// classification routed to it. Shard alignment is positional: extraction
// shard k consumes classification shard k's decisions, so no cross-shard
// coordination is needed.
func (p *Pipeline) extractShard(ctx context.Context, shard sched.Shard, stage string, route classifier.Route, ext backend.Extractor) error {
	decisions, err := jsonl.ReadAll[classifier.Decision](p.stagePath(StageClassification, shard))
	if err != nil {
		return fmt.Errorf("read classification for %s: %w", shard.Name(), err)
	}

	start := time.Now()
	out, err := jsonl.NewWriter(p.stagePath(stage, shard))
	if err != nil {
		return err
	}

	var counters stats.Counters
	var failures []FailureRecord

	for _, dec := range decisions {
		if dec.Route != route {
			continue
		}
		if err := ctx.Err(); err != nil {
			out.Abort()
			return err
		}
		counters.Processed++

		raw, err := os.ReadFile(filepath.Join(p.inputDir(route), dec.ID+".pdf"))
		if err != nil {
			counters.Failed++
			failures = append(failures, FailureRecord{
				ID: dec.ID, Stage: stage,
				Error: fmt.Sprintf("read input: %v", err),
			})
			continue
		}
		doc := corpus.Document{ID: dec.ID, Data: raw, Size: int64(len(raw))}

		res, retries, err := p.extractWithRetry(ctx, ext, doc)
		counters.Retried += retries
		if err != nil {
			counters.Failed++
			failures = append(failures, FailureRecord{ID: dec.ID, Stage: stage, Error: err.Error()})
			p.logger.Warn("extraction failed",
				"stage", stage, "id", dec.ID, "retries", retries, "error", err)
			continue
		}

		if retries > 0 {
			res.Status = backend.StatusRetriedSuccess
		}
		if err := out.Write(res); err != nil {
			out.Abort()
			return err
		}
		counters.Succeeded++
	}

	if err := out.Close(); err != nil {
		return err
	}
	if err := p.writeFailures(stage, shard, failures); err != nil {
		return err
	}
	return stats.Save(filepath.Join(p.cfg.OutputDir, "stats"), stats.Snapshot{
		Stage:          stage,
		Shard:          shard.Index,
		Counters:       counters,
		ElapsedSeconds: time.Since(start).Seconds(),
	})
}

// extractWithRetry runs one extraction under the per-document deadline,
// retrying transient backend failures with exponential backoff. The second
// return value is the number of retry attempts consumed, whether or not the
// extraction eventually succeeded.
func (p *Pipeline) extractWithRetry(ctx context.Context, ext backend.Extractor, doc corpus.Document) (backend.Result, int, error) {
	for attempt := 0; ; attempt++ {
		dctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout())
		res, err := ext.Extract(dctx, doc)
		cancel()
		if err == nil {
			return res, attempt, nil
		}
		if !backend.Retryable(err) || attempt >= p.cfg.MaxRetries {
			return backend.Result{}, attempt, err
		}
		delay := backoffDelay(p.cfg.RetryBackoff(), attempt)
		p.logger.Debug("retrying document",
			"id", doc.ID, "attempt", attempt+1, "delay", delay, "error", err)
		if err := sleepCtx(ctx, delay); err != nil {
			return backend.Result{}, attempt, fmt.Errorf("retry wait: %w", err)
		}
	}
}

// backoffDelay doubles the base per attempt, capped at 30s.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	const maxDelay = 30 * time.Second
	d := base << uint(attempt)
	if d <= 0 || d > maxDelay {
		return maxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
