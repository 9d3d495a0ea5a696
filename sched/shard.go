// Package sched partitions a corpus into statically owned shards and runs
// stage work across them with bounded parallelism. Shard completion is
// recorded as a marker file; a marker's presence is the whole truth about
// completion, which is what makes re-runs skip finished work.
package sched

import "fmt"

// Shard identifies one of Count fixed partitions. Document i belongs to
// shard i mod Count, so ownership depends only on enumeration order and the
// shard count, never on timing.
type Shard struct {
	Index int
	Count int
}

// Owns reports whether this shard owns the document at enumeration
// position i.
func (s Shard) Owns(i int) bool {
	return i%s.Count == s.Index
}

// Name is the canonical zero-padded shard label used in file names.
func (s Shard) Name() string {
	return fmt.Sprintf("shard_%04d", s.Index)
}

// Shards enumerates all shards for a given count.
func Shards(count int) []Shard {
	out := make([]Shard, count)
	for i := range out {
		out[i] = Shard{Index: i, Count: count}
	}
	return out
}
