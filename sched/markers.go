package sched

import (
	"fmt"
	"os"
	"path/filepath"
)

// Markers manages the completion marker files of a run. A marker exists
// exactly when its (stage, shard) pair completed; creating one is the last
// act of a shard and re-runs treat its presence as permission to skip.
type Markers struct {
	dir string
}

// NewMarkers roots marker files under dir.
func NewMarkers(dir string) *Markers {
	return &Markers{dir: dir}
}

func (m *Markers) path(stage string, shard Shard) string {
	return filepath.Join(m.dir, fmt.Sprintf("%s.%s.done", stage, shard.Name()))
}

// Done reports whether the (stage, shard) pair already completed.
func (m *Markers) Done(stage string, shard Shard) bool {
	_, err := os.Stat(m.path(stage, shard))
	return err == nil
}

// Mark records completion. The file is created empty; only its presence
// matters.
func (m *Markers) Mark(stage string, shard Shard) error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", m.dir, err)
	}
	f, err := os.Create(m.path(stage, shard))
	if err != nil {
		return fmt.Errorf("create marker: %w", err)
	}
	return f.Close()
}

// Clear removes every marker for stage, forcing the next run to redo it.
// A missing marker directory is not an error.
func (m *Markers) Clear(stage string) error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	prefix := stage + ".shard_"
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) > len(prefix) && name[:len(prefix)] == prefix && filepath.Ext(name) == ".done" {
			if err := os.Remove(filepath.Join(m.dir, name)); err != nil {
				return fmt.Errorf("remove marker %s: %w", name, err)
			}
		}
	}
	return nil
}
