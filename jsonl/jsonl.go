// Package jsonl reads and writes gzip-compressed line-delimited JSON, the
// on-disk format of every pipeline output. Writers stage into a temp file
// and rename on Close so a crashed run never leaves a half-written file
// under the final name. Compression carries no timestamp, so the same
// records always produce the same bytes.
package jsonl

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Writer appends JSON records, one per line, into a gzip stream.
type Writer struct {
	path  string
	tmp   *os.File
	gz    *gzip.Writer
	enc   *json.Encoder
	count int
}

// NewWriter opens a writer targeting path. Parent directories are created.
// Nothing appears at path until Close succeeds.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("mkdir for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return nil, fmt.Errorf("create temp for %s: %w", path, err)
	}
	gz := gzip.NewWriter(tmp)
	return &Writer{
		path: path,
		tmp:  tmp,
		gz:   gz,
		enc:  json.NewEncoder(gz),
	}, nil
}

// Write encodes one record and appends it as a line.
func (w *Writer) Write(record any) error {
	if err := w.enc.Encode(record); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	w.count++
	return nil
}

// Count reports how many records have been written.
func (w *Writer) Count() int { return w.count }

// Close flushes the stream and moves the file to its final path.
func (w *Writer) Close() error {
	if err := w.gz.Close(); err != nil {
		w.tmp.Close()
		os.Remove(w.tmp.Name())
		return fmt.Errorf("close gzip: %w", err)
	}
	if err := w.tmp.Close(); err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(w.tmp.Name(), w.path); err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("rename to %s: %w", w.path, err)
	}
	return nil
}

// Abort discards everything written so far. The final path is untouched.
func (w *Writer) Abort() {
	w.gz.Close()
	w.tmp.Close()
	os.Remove(w.tmp.Name())
}

// ReadAll decodes every record of a gzip JSONL file.
func ReadAll[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open gzip %s: %w", path, err)
	}
	defer gz.Close()

	var records []T
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("decode line %d of %s: %w", len(records)+1, path, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}
