// Package observability records run progress in an SQLite ledger. The
// ledger is advisory: it answers "what happened when" for operators and the
// status endpoint, while completion markers on disk remain the source of
// truth for resumability. A broken ledger never fails a run.
package observability

import "database/sql"

// Schema contains the complete DDL for the ledger tables.
// Call Init(db) to apply it, or pass it to dbopen.WithSchema.
const Schema = `
-- Run registry
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    output_dir TEXT NOT NULL,
    num_shards INTEGER NOT NULL,
    started_at INTEGER NOT NULL,
    finished_at INTEGER,
    status TEXT NOT NULL DEFAULT 'running',
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

-- Shard lifecycle events
CREATE TABLE IF NOT EXISTS run_events (
    event_id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES runs(run_id),
    stage TEXT NOT NULL,
    shard INTEGER NOT NULL,
    state TEXT NOT NULL,
    error_message TEXT,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_run_events_stage ON run_events(run_id, stage, shard);

-- Worker Heartbeats
CREATE TABLE IF NOT EXISTS worker_heartbeats (
    heartbeat_id TEXT PRIMARY KEY DEFAULT ('hb_' || hex(randomblob(16))),
    worker_name TEXT NOT NULL,
    hostname TEXT NOT NULL,
    worker_pid INTEGER NOT NULL,
    timestamp INTEGER NOT NULL,
    goroutines_count INTEGER,
    memory_alloc_mb REAL,
    memory_sys_mb REAL,
    gc_count INTEGER,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_worker_time
    ON worker_heartbeats(worker_name, timestamp DESC);
`

// Init applies the ledger schema to the given database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
