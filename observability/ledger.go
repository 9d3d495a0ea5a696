package observability

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/hazyhaar/pdfmill/dbopen"
	"github.com/hazyhaar/pdfmill/idgen"
	"github.com/hazyhaar/pdfmill/sched"
)

// RunLedger writes run and shard events. All writes are non-blocking:
// errors are logged via slog but never propagate, so a failing ledger
// store cannot fail processing.
type RunLedger struct {
	db    *sql.DB
	runID string
	newID idgen.Generator
}

// LedgerOption configures a RunLedger.
type LedgerOption func(*RunLedger)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) LedgerOption {
	return func(l *RunLedger) { l.newID = gen }
}

// NewRunLedger creates a ledger bound to one run.
func NewRunLedger(db *sql.DB, runID string, opts ...LedgerOption) *RunLedger {
	l := &RunLedger{
		db:    db,
		runID: runID,
		newID: idgen.Prefixed("evt_", idgen.Default),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// RunID returns the run this ledger records for.
func (l *RunLedger) RunID() string { return l.runID }

// RunStarted registers the run row.
func (l *RunLedger) RunStarted(ctx context.Context, source, outputDir string, numShards int) {
	_, err := dbopen.Exec(ctx, l.db, `
		INSERT INTO runs (run_id, source, output_dir, num_shards, started_at, status)
		VALUES (?,?,?,?,?, 'running')`,
		l.runID, source, outputDir, numShards, time.Now().Unix())
	if err != nil {
		slog.Error("ledger run insert failed", "error", err, "run_id", l.runID)
	}
}

// RunFinished closes the run row with a terminal status.
func (l *RunLedger) RunFinished(ctx context.Context, status string) {
	_, err := dbopen.Exec(ctx, l.db, `
		UPDATE runs SET finished_at = ?, status = ? WHERE run_id = ?`,
		time.Now().Unix(), status, l.runID)
	if err != nil {
		slog.Error("ledger run update failed", "error", err, "run_id", l.runID)
	}
}

// ShardEvent implements sched.Events.
func (l *RunLedger) ShardEvent(stage string, shard sched.Shard, state sched.State, shardErr error) {
	errMsg := ""
	if shardErr != nil {
		errMsg = shardErr.Error()
	}
	_, err := dbopen.Exec(context.Background(), l.db, `
		INSERT INTO run_events (event_id, run_id, stage, shard, state, error_message)
		VALUES (?,?,?,?,?,?)`,
		l.newID(), l.runID, stage, shard.Index, string(state), errMsg)
	if err != nil {
		slog.Error("ledger event insert failed",
			"error", err, "run_id", l.runID, "stage", stage, "shard", shard.Index)
	}
}

// ShardStates returns the latest recorded state per (stage, shard) for the
// run, keyed by stage.
func (l *RunLedger) ShardStates(ctx context.Context) (map[string]map[int]string, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT stage, shard, state FROM run_events
		WHERE run_id = ?
		ORDER BY created_at ASC, event_id ASC`, l.runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := make(map[string]map[int]string)
	for rows.Next() {
		var stage, state string
		var shard int
		if err := rows.Scan(&stage, &shard, &state); err != nil {
			return nil, err
		}
		if states[stage] == nil {
			states[stage] = make(map[int]string)
		}
		states[stage][shard] = state
	}
	return states, rows.Err()
}
