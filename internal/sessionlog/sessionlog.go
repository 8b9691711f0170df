// Package sessionlog writes conditioned readings to a CSV log. One
// file per logging session; restarting the log starts a new file with
// a fresh header.
package sessionlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/magscan/internal/fsutil"
	"github.com/banshee-data/magscan/internal/pipeline"
)

var header = []string{"timestamp", "s1", "s2", "raw", "filtered"}

// Writer appends readings to a CSV file. It implements pipeline.Sink.
// Each row is flushed as it is written so a crash loses at most the
// row in flight.
type Writer struct {
	mu     sync.Mutex
	csv    *csv.Writer
	closer io.Closer
	closed bool
}

// New creates the log file at path and writes the header row.
func New(fs fsutil.FileSystem, path string) (*Writer, error) {
	f, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create session log: %w", err)
	}
	w := &Writer{csv: csv.NewWriter(f), closer: f}
	if err := w.csv.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write session log header: %w", err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to flush session log header: %w", err)
	}
	return w, nil
}

// Record appends one reading. Numeric fields are fixed 6-decimal so
// the log diffs cleanly across runs.
func (w *Writer) Record(r pipeline.Reading) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("session log closed")
	}
	row := []string{
		r.Time.Format(time.RFC3339),
		strconv.FormatFloat(r.S1, 'f', 6, 64),
		strconv.FormatFloat(r.S2, 'f', 6, 64),
		strconv.FormatFloat(r.Raw, 'f', 6, 64),
		strconv.FormatFloat(r.Filtered, 'f', 6, 64),
	}
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("failed to write session log row: %w", err)
	}
	w.csv.Flush()
	return w.csv.Error()
}

// Close flushes and closes the underlying file. Further Record calls
// fail.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.closer.Close()
		return err
	}
	return w.closer.Close()
}
