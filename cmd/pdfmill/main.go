// Command pdfmill processes a PDF corpus: every document is classified to a
// text or OCR extraction path, then extracted in sharded parallel stages
// with resumable completion markers.
//
// Typical batch run:
//
//	pdfmill -config pdfmill.yaml
//
// Interactive tool surface over MCP stdio:
//
//	pdfmill -config pdfmill.yaml -mcp
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pdfmill/dbopen"
	"github.com/hazyhaar/pdfmill/idgen"
	"github.com/hazyhaar/pdfmill/observability"
	"github.com/hazyhaar/pdfmill/pipeline"
)

// workerName identifies this process in the heartbeat table.
const workerName = "pdfmill"

func main() {
	cfgPath := flag.String("config", "pdfmill.yaml", "YAML config file")
	sourcePath := flag.String("source", "", "override source.path (dir or zip)")
	outputDir := flag.String("output", "", "override output_dir")
	tasks := flag.Int("tasks", 0, "override num_tasks")
	threshold := flag.Float64("threshold", 0, "override OCR routing threshold")
	limit := flag.Int("limit", -1, "override pdf_limit (0 = whole corpus)")
	clearStage := flag.String("clear", "", "clear a stage's completion markers and exit")
	mcpMode := flag.Bool("mcp", false, "serve MCP tools on stdio instead of running the pipeline")
	flag.Parse()

	cfg, err := pipeline.LoadConfig(*cfgPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	if *sourcePath != "" {
		cfg.Source.Path = *sourcePath
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *tasks > 0 {
		cfg.NumTasks = *tasks
	}
	if *threshold > 0 {
		cfg.Threshold = *threshold
	}
	if *limit >= 0 {
		cfg.PDFLimit = *limit
	}

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var opts []pipeline.Option
	var ledger *observability.RunLedger

	if cfg.LedgerPath != "" {
		db, err := dbopen.Open(cfg.LedgerPath,
			dbopen.WithMkdirAll(),
			dbopen.WithSchema(observability.Schema))
		if err != nil {
			slog.Error("ledger db", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if n, err := observability.CleanupHeartbeats(ctx, db, 14*24*time.Hour); err != nil {
			slog.Warn("heartbeat cleanup", "error", err)
		} else if n > 0 {
			slog.Info("old heartbeats pruned", "rows", n)
		}

		ledger = observability.NewRunLedger(db, idgen.Prefixed("run_", idgen.Timestamped(idgen.Default))())
		opts = append(opts, pipeline.WithEvents(ledger))

		const beatEvery = 15 * time.Second
		heartbeat := observability.NewHeartbeatWriter(db, workerName, beatEvery)
		heartbeat.Start(ctx)
		defer heartbeat.Stop()

		opts = append(opts, pipeline.WithWorkerHealth(
			func(ctx context.Context) (*observability.HeartbeatStatus, error) {
				return observability.LatestHeartbeat(ctx, db, workerName, 3*beatEvery)
			}))
	}

	p, err := pipeline.New(cfg, logger, opts...)
	if err != nil {
		slog.Error("init pipeline", "error", err)
		os.Exit(1)
	}

	if *clearStage != "" {
		if err := p.ClearStage(*clearStage); err != nil {
			slog.Error("clear stage", "stage", *clearStage, "error", err)
			os.Exit(1)
		}
		slog.Info("stage markers cleared", "stage", *clearStage)
		return
	}

	if *mcpMode {
		srv := mcp.NewServer(&mcp.Implementation{Name: "pdfmill", Version: "1.0.0"}, nil)
		p.RegisterMCP(srv)
		slog.Info("MCP server on stdio")
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			slog.Error("mcp serve", "error", err)
			os.Exit(1)
		}
		return
	}

	// Optional status endpoint alongside the batch run.
	if cfg.Listen != "" {
		go func() {
			slog.Info("status endpoint listening", "addr", cfg.Listen)
			if err := http.ListenAndServe(cfg.Listen, p.Routes()); err != nil {
				slog.Error("status endpoint", "error", err)
			}
		}()
	}

	if ledger != nil {
		ledger.RunStarted(ctx, cfg.Source.Type+":"+cfg.Source.Path+cfg.Source.URL, cfg.OutputDir, cfg.NumTasks)
	}

	report, err := p.Run(ctx)
	if err != nil && report == nil {
		// Fatal before any stage ran (unreachable source, bad layout).
		if ledger != nil {
			ledger.RunFinished(ctx, "failed")
		}
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}

	status := "completed"
	if err != nil {
		// Shard failures: the run finished, some work remains for a re-run.
		status = "incomplete"
		slog.Warn("run finished with failed shards", "error", err)
	}
	if ledger != nil {
		ledger.RunFinished(ctx, status)
	}

	for stage, total := range report.Totals {
		slog.Info("stage totals",
			"stage", stage,
			"processed", total.Counters.Processed,
			"succeeded", total.Counters.Succeeded,
			"failed", total.Counters.Failed,
			"retried", total.Counters.Retried,
			"elapsed_seconds", total.ElapsedSeconds)
	}
	slog.Info("run finished", "status", status, "documents", report.Documents)
}
