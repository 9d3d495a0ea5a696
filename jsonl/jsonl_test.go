package jsonl

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

type rec struct {
	ID string `json:"id"`
	N  int    `json:"n"`
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "text.shard_0000.jsonl.gz")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := w.Write(rec{ID: "doc", N: i}); err != nil {
			t.Fatal(err)
		}
	}
	if w.Count() != 5 {
		t.Fatalf("count = %d, want 5", w.Count())
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	records, err := ReadAll[rec](path)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 5 {
		t.Fatalf("read %d records, want 5", len(records))
	}
	for i, r := range records {
		if r.N != i {
			t.Fatalf("record %d out of order: %+v", i, r)
		}
	}
}

func TestNothingVisibleBeforeClose(t *testing.T) {
	// WHAT: the target path must not exist until Close renames into place.
	// WHY: downstream stages treat file presence as completion.
	path := filepath.Join(t.TempDir(), "stage.shard_0001.jsonl.gz")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(rec{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("target visible before Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("target missing after Close: %v", err)
	}
}

func TestAbortLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dropped.jsonl.gz")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(rec{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	w.Abort()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("directory not empty after abort: %v", entries)
	}
}

func TestDeterministicBytes(t *testing.T) {
	// Identical records must produce identical files so completed shards
	// can be compared byte for byte across runs.
	write := func(path string) []byte {
		w, err := NewWriter(path)
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 3; i++ {
			if err := w.Write(rec{ID: "same", N: i}); err != nil {
				t.Fatal(err)
			}
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		return data
	}

	dir := t.TempDir()
	first := write(filepath.Join(dir, "a.jsonl.gz"))
	second := write(filepath.Join(dir, "b.jsonl.gz"))
	if !bytes.Equal(first, second) {
		t.Fatal("identical records produced different bytes")
	}
}

func TestReadAllEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl.gz")
	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	records, err := ReadAll[rec](path)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestReadAllMissingFile(t *testing.T) {
	if _, err := ReadAll[rec]("/no/such/file.jsonl.gz"); err == nil {
		t.Fatal("expected error")
	}
}
