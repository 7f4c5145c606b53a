// Package journal implements the optional, operator-facing audit trail
// described in SPEC_FULL.md §4.7: a compressed, append-only log of every
// replacement outcome from every run. It is never consulted by the core
// pipeline — a missing or corrupt journal can never affect the safety
// properties of a run.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Entry is one audit record.
type Entry struct {
	Time    string `json:"time"` // caller-supplied RFC3339 timestamp
	Repo    string `json:"repo"`
	Source  string `json:"source"`
	Target  string `json:"target"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// Journal is an open append-only zstd-compressed log.
type Journal struct {
	file *os.File
	enc  *zstd.Encoder
}

// Open opens (creating if necessary) the journal file at path for
// appending, wrapping it in a streaming zstd encoder. Callers must
// Close the Journal to flush the final zstd frame.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("journal: new zstd writer: %w", err)
	}
	return &Journal{file: f, enc: enc}, nil
}

// Append encodes entry as one newline-terminated JSON object and writes
// it through the zstd stream. A write failure here is always
// non-fatal to the caller's pipeline — see SPEC_FULL.md §4.7 — but is
// still returned so the orchestrator can report it.
func (j *Journal) Append(entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("journal: marshal entry: %w", err)
	}
	data = append(data, '\n')
	if _, err := j.enc.Write(data); err != nil {
		return fmt.Errorf("journal: write entry: %w", err)
	}
	return nil
}

// Close flushes the final zstd frame and closes the underlying file.
func (j *Journal) Close() error {
	encErr := j.enc.Close()
	fileErr := j.file.Close()
	if encErr != nil {
		return fmt.Errorf("journal: close encoder: %w", encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("journal: close file: %w", fileErr)
	}
	return nil
}

// NullJournal is a no-op Journal used when journaling is disabled, so
// the orchestrator never has to branch on whether journaling is on.
type NullJournal struct{}

// Append is a no-op.
func (NullJournal) Append(Entry) error { return nil }

// Close is a no-op.
func (NullJournal) Close() error { return nil }

// Appender is satisfied by both *Journal and NullJournal.
type Appender interface {
	Append(Entry) error
	Close() error
}
