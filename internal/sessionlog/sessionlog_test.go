package sessionlog

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/magscan/internal/fsutil"
	"github.com/banshee-data/magscan/internal/pipeline"
)

func TestWriter_HeaderAndRows(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	w, err := New(fs, "session.csv")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ts := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	readings := []pipeline.Reading{
		{Time: ts, S1: 12.5, S2: -3.2, Raw: 15.7, Filtered: 15.7},
		{Time: ts.Add(time.Second), S1: 1, S2: 0.5, Raw: 0.5, Filtered: 8.1},
	}
	for _, r := range readings {
		if err := w.Record(r); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := fs.ReadFile("session.csv")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	got := strings.Split(strings.TrimSpace(string(data)), "\n")
	want := []string{
		"timestamp,s1,s2,raw,filtered",
		"2026-05-02T10:00:00Z,12.500000,-3.200000,15.700000,15.700000",
		"2026-05-02T10:00:01Z,1.000000,0.500000,0.500000,8.100000",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}
}

func TestWriter_RecordAfterClose(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	w, err := New(fs, "session.csv")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	w.Close()

	if err := w.Record(pipeline.Reading{}); err == nil {
		t.Error("Record after Close returned nil error")
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
}

func TestWriter_RestartWritesFreshHeader(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()

	w1, _ := New(fs, "session.csv")
	w1.Record(pipeline.Reading{Time: time.Unix(0, 0).UTC(), Raw: 1, Filtered: 1})
	w1.Close()

	// restarting the log truncates and rewrites the header
	w2, err := New(fs, "session.csv")
	if err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	w2.Close()

	data, _ := fs.ReadFile("session.csv")
	if got := strings.TrimSpace(string(data)); got != "timestamp,s1,s2,raw,filtered" {
		t.Errorf("restarted log = %q, want header only", got)
	}
}
