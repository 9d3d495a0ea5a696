// Package stats accumulates per-shard processing counters and merges them
// into run-level totals. Merging is commutative and associative, so shard
// snapshots can be combined in any order and grouping without changing the
// result.
package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Counters tallies document outcomes for one stage of one shard.
//
// Retried counts retry attempts, not retried documents: a document that
// failed twice before succeeding contributes 2 to Retried, 1 to Succeeded
// and 0 to Failed.
type Counters struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
}

// Add folds other into c.
func (c *Counters) Add(other Counters) {
	c.Processed += other.Processed
	c.Succeeded += other.Succeeded
	c.Failed += other.Failed
	c.Retried += other.Retried
}

// Snapshot is the persisted form of one shard's counters.
type Snapshot struct {
	Stage          string   `json:"stage"`
	Shard          int      `json:"shard"`
	Counters       Counters `json:"counters"`
	ElapsedSeconds float64  `json:"elapsed_seconds"`
}

// Merge combines any number of snapshots into per-stage totals, keyed by
// stage name. Shard indexes are discarded; elapsed times sum.
func Merge(snapshots []Snapshot) map[string]Snapshot {
	totals := make(map[string]Snapshot)
	for _, s := range snapshots {
		t := totals[s.Stage]
		t.Stage = s.Stage
		t.Shard = -1
		t.Counters.Add(s.Counters)
		t.ElapsedSeconds += s.ElapsedSeconds
		totals[s.Stage] = t
	}
	return totals
}

// SnapshotPath names the stats file for a (stage, shard) pair under dir.
func SnapshotPath(dir, stage string, shard int) string {
	return filepath.Join(dir, fmt.Sprintf("%s.shard_%04d.json", stage, shard))
}

// TotalPath names the merged per-stage report file under dir.
func TotalPath(dir, stage string) string {
	return filepath.Join(dir, stage+".json")
}

// SaveTotals persists merged per-stage snapshots next to the shard files.
// Totals are derived data; LoadDir ignores them, so they never feed back
// into a later merge.
func SaveTotals(dir string, totals map[string]Snapshot) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	for stage, s := range totals {
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s totals: %w", stage, err)
		}
		path := TotalPath(dir, stage)
		if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

// Save writes a snapshot as pretty-printed JSON.
func Save(dir string, s Snapshot) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	path := SnapshotPath(dir, s.Stage, s.Shard)
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Load reads one snapshot file.
func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}

// LoadDir reads every per-shard snapshot under dir, sorted by stage then
// shard. Merged total files are skipped.
func LoadDir(dir string) ([]Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var snapshots []Snapshot
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if !strings.Contains(e.Name(), ".shard_") {
			continue
		}
		s, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].Stage != snapshots[j].Stage {
			return snapshots[i].Stage < snapshots[j].Stage
		}
		return snapshots[i].Shard < snapshots[j].Shard
	})
	return snapshots, nil
}
