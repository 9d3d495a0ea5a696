package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/hazyhaar/pdfmill/dbopen"
)

// HeartbeatWriter records process liveness in the worker_heartbeats table
// while a run is processing. The status endpoint reads the latest row back
// through LatestHeartbeat, so an operator can tell a stalled run from a dead
// one without shell access to the worker host.
type HeartbeatWriter struct {
	db       *sql.DB
	worker   string
	hostname string
	pid      int
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewHeartbeatWriter creates a writer beating at the given interval.
// Staleness checks conventionally use three times the interval.
func NewHeartbeatWriter(db *sql.DB, worker string, interval time.Duration) *HeartbeatWriter {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &HeartbeatWriter{
		db:       db,
		worker:   worker,
		hostname: hostname,
		pid:      os.Getpid(),
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the heartbeat goroutine. The first beat is written
// immediately so the run shows up alive before the first interval elapses.
func (hw *HeartbeatWriter) Start(ctx context.Context) {
	go hw.run(ctx)
}

// Stop signals the goroutine to exit and waits for it.
func (hw *HeartbeatWriter) Stop() {
	close(hw.stop)
	<-hw.done
}

func (hw *HeartbeatWriter) run(ctx context.Context) {
	defer close(hw.done)
	ticker := time.NewTicker(hw.interval)
	defer ticker.Stop()

	for {
		if err := hw.WriteHeartbeat(); err != nil {
			slog.Warn("heartbeat write failed", "worker", hw.worker, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-hw.stop:
			return
		case <-ticker.C:
		}
	}
}

// WriteHeartbeat inserts one row with current Go runtime stats. Heartbeats
// share the ledger database with shard-event writes, so the busy-retrying
// Exec is used.
func (hw *HeartbeatWriter) WriteHeartbeat() error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	_, err := dbopen.Exec(context.Background(), hw.db, `
		INSERT INTO worker_heartbeats (
			worker_name, hostname, worker_pid, timestamp,
			goroutines_count, memory_alloc_mb, memory_sys_mb, gc_count
		) VALUES (?,?,?,?,?,?,?,?)`,
		hw.worker, hw.hostname, hw.pid, time.Now().Unix(),
		runtime.NumGoroutine(),
		float64(mem.Alloc)/(1<<20), float64(mem.Sys)/(1<<20), mem.NumGC)
	if err != nil {
		return fmt.Errorf("insert heartbeat: %w", err)
	}
	return nil
}

// HeartbeatStatus is the latest liveness probe for a worker, with the
// alive/stale verdict already computed for status consumers.
type HeartbeatStatus struct {
	Worker        string    `json:"worker"`
	Hostname      string    `json:"hostname"`
	PID           int       `json:"pid"`
	At            time.Time `json:"at"`
	Goroutines    int       `json:"goroutines"`
	MemoryAllocMB float64   `json:"memory_alloc_mb"`
	MemorySysMB   float64   `json:"memory_sys_mb"`
	GCCount       int       `json:"gc_count"`
	Alive         bool      `json:"alive"`
}

// LatestHeartbeat returns the newest heartbeat for a worker, marking it
// alive when the beat is younger than staleAfter. Returns nil, nil when the
// worker has never beaten.
func LatestHeartbeat(ctx context.Context, db *sql.DB, worker string, staleAfter time.Duration) (*HeartbeatStatus, error) {
	row := db.QueryRowContext(ctx, `
		SELECT worker_name, hostname, worker_pid, timestamp,
		       COALESCE(goroutines_count, 0), COALESCE(memory_alloc_mb, 0),
		       COALESCE(memory_sys_mb, 0), COALESCE(gc_count, 0)
		FROM worker_heartbeats
		WHERE worker_name = ?
		ORDER BY timestamp DESC LIMIT 1`, worker)

	var hs HeartbeatStatus
	var ts int64
	err := row.Scan(&hs.Worker, &hs.Hostname, &hs.PID, &ts,
		&hs.Goroutines, &hs.MemoryAllocMB, &hs.MemorySysMB, &hs.GCCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest heartbeat: %w", err)
	}

	hs.At = time.Unix(ts, 0)
	hs.Alive = time.Since(hs.At) <= staleAfter
	return &hs, nil
}

// CleanupHeartbeats deletes heartbeats older than the retention window and
// reports how many rows went.
func CleanupHeartbeats(ctx context.Context, db *sql.DB, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).Unix()
	res, err := dbopen.Exec(ctx, db, `DELETE FROM worker_heartbeats WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup heartbeats: %w", err)
	}
	return res.RowsAffected()
}
