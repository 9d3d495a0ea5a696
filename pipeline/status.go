package pipeline

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/pdfmill/observability"
	"github.com/hazyhaar/pdfmill/sched"
)

// StageProgress reports marker-level completion for one stage.
type StageProgress struct {
	Stage     string `json:"stage"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// Progress is the payload of the /progress endpoint. It is computed from
// disk (markers and stats), so it stays correct across restarts. Worker is
// the latest heartbeat when a ledger is wired, nil otherwise.
type Progress struct {
	Stages []StageProgress                `json:"stages"`
	Report *Report                        `json:"report"`
	Worker *observability.HeartbeatStatus `json:"worker,omitempty"`
}

// Progress inspects the current on-disk state of the run.
func (p *Pipeline) Progress(ctx context.Context) (*Progress, error) {
	report, err := p.Report()
	if err != nil {
		return nil, err
	}

	var stages []StageProgress
	for _, stage := range []string{StageClassification, StageText, StageOCR} {
		sp := StageProgress{Stage: stage, Total: p.cfg.NumTasks}
		for _, shard := range sched.Shards(p.cfg.NumTasks) {
			if p.markers.Done(stage, shard) {
				sp.Completed++
			}
		}
		stages = append(stages, sp)
	}

	progress := &Progress{Stages: stages, Report: report}
	if p.health != nil {
		worker, err := p.health(ctx)
		if err != nil {
			// Liveness is advisory; progress still answers without it.
			p.logger.Warn("worker health lookup failed", "error", err)
		} else {
			progress.Worker = worker
		}
	}
	return progress, nil
}

// Routes returns the status HTTP handler: /healthz for liveness and
// /progress for run state.
func (p *Pipeline) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Get("/progress", func(w http.ResponseWriter, req *http.Request) {
		progress, err := p.Progress(req.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(progress)
	})

	return r
}
