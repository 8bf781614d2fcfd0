package tracker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "processing-jobs.json"), zerolog.Nop())
}

func TestTrackerAddAndList(t *testing.T) {
	tr := newTestTracker(t)

	older := time.Now().Add(-time.Minute)
	newer := time.Now()
	if _, err := tr.Add("alloy", "first request", "first request full text", older); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := tr.Add("nova", "second request", "second request full text", newer); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	got := tr.List()
	if len(got) != 2 {
		t.Fatalf("List() = %d entries, want 2", len(got))
	}
	if got[0].Voice != "nova" {
		t.Fatalf("List()[0].Voice = %q, want most recent first", got[0].Voice)
	}
	for _, e := range got {
		if e.Status != "processing" {
			t.Fatalf("entry status = %q, want processing", e.Status)
		}
		if e.ID == "" {
			t.Fatalf("entry missing id")
		}
	}
}

func TestTrackerRemoveMatchesBothFields(t *testing.T) {
	tr := newTestTracker(t)
	now := time.Now()
	tr.Add("alloy", "shared preview", "text a", now)
	tr.Add("alloy", "shared preview", "text b", now)
	tr.Add("alloy", "other preview", "text c", now)
	tr.Add("nova", "shared preview", "text d", now)

	if err := tr.Remove("alloy", "shared preview"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	got := tr.List()
	if len(got) != 2 {
		t.Fatalf("List() = %d entries, want 2 after removal", len(got))
	}
	for _, e := range got {
		if e.Voice == "alloy" && e.TextPreview == "shared preview" {
			t.Fatalf("matching entry survived removal: %+v", e)
		}
	}
}

func TestTrackerRemoveAll(t *testing.T) {
	tr := newTestTracker(t)
	tr.Add("alloy", "a", "a", time.Now())
	tr.Add("nova", "b", "b", time.Now())
	if err := tr.RemoveAll(); err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}
	if got := tr.List(); len(got) != 0 {
		t.Fatalf("List() = %d entries after RemoveAll, want 0", len(got))
	}
}

func TestTrackerCleanOld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processing-jobs.json")
	tr := New(path, zerolog.Nop())
	tr.Add("alloy", "fresh", "fresh", time.Now())

	// Plant a stale entry directly in the file.
	stale := Entry{
		ID:          "stale-id",
		Voice:       "echo",
		TextPreview: "stale",
		RequestedAt: time.Now().Add(-2 * time.Hour).UTC(),
		StartTime:   time.Now().Add(-2 * time.Hour).UTC(),
		Status:      "processing",
	}
	entries := tr.List()
	entries = append(entries, stale)
	data, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := tr.CleanOld(); err != nil {
		t.Fatalf("CleanOld() error = %v", err)
	}
	got := tr.List()
	if len(got) != 1 {
		t.Fatalf("List() = %d entries after CleanOld, want 1", len(got))
	}
	if got[0].Voice != "alloy" {
		t.Fatalf("surviving entry voice = %q, want alloy", got[0].Voice)
	}
}

func TestTrackerCorruptFileRecovers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processing-jobs.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tr := New(path, zerolog.Nop())
	if got := tr.List(); len(got) != 0 {
		t.Fatalf("List() on corrupt file = %d entries, want 0", len(got))
	}
	if _, err := tr.Add("alloy", "after corruption", "text", time.Now()); err != nil {
		t.Fatalf("Add() after corruption error = %v", err)
	}
	if got := tr.List(); len(got) != 1 {
		t.Fatalf("List() = %d entries, want 1", len(got))
	}
}

func TestTrackerMissingFileIsEmpty(t *testing.T) {
	tr := newTestTracker(t)
	if got := tr.List(); len(got) != 0 {
		t.Fatalf("List() on missing file = %d entries, want 0", len(got))
	}
}
