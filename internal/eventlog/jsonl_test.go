package eventlog

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ptnguyen/devsentry/internal/model"
)

func writeEventFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing event file: %v", err)
	}
	return path
}

func drain(t *testing.T, src Source) []model.RawEvent {
	t.Helper()
	var out []model.RawEvent
	for {
		ev, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next returned error: %v", err)
		}
		out = append(out, ev)
	}
}

// TestJSONLSource_ReadsInFileOrder verifies events come out in the order the
// file stores them.
func TestJSONLSource_ReadsInFileOrder(t *testing.T) {
	path := writeEventFile(t, `{"timestamp":"2025-11-03T09:02:00Z","source":"disk","event_id":51,"message":"second"}
{"timestamp":"2025-11-03T09:01:00Z","source":"disk","event_id":51,"message":"first"}
`)

	src, err := OpenJSONL(path, nil)
	if err != nil {
		t.Fatalf("OpenJSONL: %v", err)
	}
	defer src.Close()

	events := drain(t, src)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Message != "second" || events[1].Message != "first" {
		t.Errorf("events out of file order: %v", events)
	}
	if events[0].Source != "disk" || events[0].EventID != 51 {
		t.Errorf("event fields not decoded: %+v", events[0])
	}
}

// TestJSONLSource_SkipsMalformedAndBlankLines verifies corrupt lines are
// skipped without aborting the scan.
func TestJSONLSource_SkipsMalformedAndBlankLines(t *testing.T) {
	path := writeEventFile(t, `{"timestamp":"2025-11-03T09:01:00Z","source":"disk","event_id":51,"message":"good"}
this is not json

{"timestamp":"2025-11-03T09:02:00Z","source":"disk","event_id":51,"message":"also good"}
`)

	src, err := OpenJSONL(path, nil)
	if err != nil {
		t.Fatalf("OpenJSONL: %v", err)
	}
	defer src.Close()

	events := drain(t, src)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (malformed and blank lines skipped)", len(events))
	}
}

// TestJSONLSource_MissingFile verifies open failure is reported to the
// caller.
func TestJSONLSource_MissingFile(t *testing.T) {
	if _, err := OpenJSONL(filepath.Join(t.TempDir(), "missing.jsonl"), nil); err == nil {
		t.Error("OpenJSONL should fail for a missing file")
	}
}

// TestJSONLSource_ContextCancellation verifies a cancelled context stops the
// read immediately.
func TestJSONLSource_ContextCancellation(t *testing.T) {
	path := writeEventFile(t, `{"timestamp":"2025-11-03T09:01:00Z","source":"disk","event_id":51,"message":"x"}`)
	src, err := OpenJSONL(path, nil)
	if err != nil {
		t.Fatalf("OpenJSONL: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Next with cancelled context = %v, want context.Canceled", err)
	}
}

// TestSliceSource verifies the in-memory source yields everything then EOF.
func TestSliceSource(t *testing.T) {
	events := []model.RawEvent{{Source: "a"}, {Source: "b"}}
	src := NewSliceSource(events)

	got := drain(t, src)
	if len(got) != 2 || got[0].Source != "a" || got[1].Source != "b" {
		t.Errorf("drained %v, want the original two events in order", got)
	}
	if _, err := src.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Error("exhausted source should keep returning io.EOF")
	}
}
