package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Exec runs one write statement, retrying while SQLite reports the database
// busy. Ledger events arrive from shard goroutines while heartbeats write on
// a timer, so short lock collisions are expected; WAL keeps the busy windows
// brief and a few spaced attempts ride them out.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	const attempts = 3
	var lastErr error
	for i := 0; i < attempts; i++ {
		res, err := db.ExecContext(ctx, query, args...)
		if err == nil || !busy(err) {
			return res, err
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		if err := sleepCtx(ctx, time.Duration(i+1)*100*time.Millisecond); err != nil {
			return nil, fmt.Errorf("dbopen: busy retry interrupted: %w", err)
		}
	}
	return nil, fmt.Errorf("dbopen: still busy after %d attempts: %w", attempts, lastErr)
}

// busy matches the lock conditions modernc.org/sqlite surfaces as error text.
func busy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
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
