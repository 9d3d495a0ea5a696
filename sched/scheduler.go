package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// State is a shard's lifecycle position within a stage.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateSkipped   State = "skipped"
)

// Events receives shard lifecycle notifications. Implementations must not
// block; the scheduler calls them inline.
type Events interface {
	ShardEvent(stage string, shard Shard, state State, err error)
}

// NopEvents discards all notifications.
type NopEvents struct{}

func (NopEvents) ShardEvent(string, Shard, State, error) {}

// ShardFunc does the work of one shard for one stage. It must write its
// outputs before returning; the scheduler marks completion afterwards.
type ShardFunc func(ctx context.Context, shard Shard) error

// Scheduler runs a stage's shards with at most Workers in flight. One
// shard's failure does not cancel the others; the stage error reports how
// many shards failed after all of them have had their chance.
type Scheduler struct {
	Workers int
	Markers *Markers
	Events  Events
	Logger  *slog.Logger
}

// NewScheduler wires a scheduler. Zero workers means 1; nil events and
// logger get no-op and default substitutes.
func NewScheduler(workers int, markers *Markers, events Events, logger *slog.Logger) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	if events == nil {
		events = NopEvents{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{Workers: workers, Markers: markers, Events: events, Logger: logger}
}

// RunStage executes fn once per unmarked shard. Already-marked shards are
// skipped without running fn. Context cancellation stops scheduling new
// shards and propagates to running ones.
func (s *Scheduler) RunStage(ctx context.Context, stage string, count int, fn ShardFunc) error {
	if count <= 0 {
		return fmt.Errorf("stage %s: shard count must be positive, got %d", stage, count)
	}

	g := &errgroup.Group{}
	g.SetLimit(s.Workers)

	var failed atomic.Int64

	for _, shard := range Shards(count) {
		if s.Markers.Done(stage, shard) {
			s.Logger.Info("shard already completed, skipping",
				"stage", stage, "shard", shard.Index)
			s.Events.ShardEvent(stage, shard, StateSkipped, nil)
			continue
		}
		s.Events.ShardEvent(stage, shard, StatePending, nil)

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				failed.Add(1)
				s.Events.ShardEvent(stage, shard, StateFailed, err)
				return nil
			}

			s.Events.ShardEvent(stage, shard, StateRunning, nil)
			start := time.Now()
			s.Logger.Info("shard started", "stage", stage, "shard", shard.Index)

			if err := fn(ctx, shard); err != nil {
				failed.Add(1)
				s.Logger.Error("shard failed",
					"stage", stage, "shard", shard.Index,
					"duration", time.Since(start), "error", err)
				s.Events.ShardEvent(stage, shard, StateFailed, err)
				return nil
			}

			if err := s.Markers.Mark(stage, shard); err != nil {
				failed.Add(1)
				s.Events.ShardEvent(stage, shard, StateFailed, err)
				return nil
			}
			s.Logger.Info("shard completed",
				"stage", stage, "shard", shard.Index,
				"duration", time.Since(start))
			s.Events.ShardEvent(stage, shard, StateCompleted, nil)
			return nil
		})
	}

	g.Wait()

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("stage %s: %d shard(s) failed", stage, n)
	}
	return ctx.Err()
}
