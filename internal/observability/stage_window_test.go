package observability

import (
	"testing"
	"time"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := NewStageWindow(8)
	w.Observe(StageSynthesize, 500*time.Millisecond)
	w.Observe(StageSynthesize, 700*time.Millisecond)
	w.Observe(StageSynthesize, 900*time.Millisecond)
	w.ObserveIncident("storage_save_failed")
	w.ObserveIncident("storage_save_failed")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageSynthesize {
		t.Fatalf("Stage = %q, want %q", s.Stage, StageSynthesize)
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if len(snap.Incidents) != 1 {
		t.Fatalf("len(Incidents) = %d, want 1", len(snap.Incidents))
	}
	if snap.Incidents[0].Name != "storage_save_failed" || snap.Incidents[0].Count != 2 {
		t.Fatalf("Incidents[0] = %+v", snap.Incidents[0])
	}
}

func TestStageWindowRollsOver(t *testing.T) {
	w := NewStageWindow(4)
	for i := 1; i <= 6; i++ {
		w.Observe(StageStitch, time.Duration(i)*time.Millisecond)
	}

	snap := w.Snapshot()
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Samples != 4 {
		t.Fatalf("Samples = %d, want window size after rollover", s.Samples)
	}
	if s.LastMS != 6 {
		t.Fatalf("LastMS = %.2f, want 6", s.LastMS)
	}
}

func TestStageWindowReset(t *testing.T) {
	w := NewStageWindow(4)
	w.Observe(StageSave, time.Millisecond)
	w.Reset()
	if snap := w.Snapshot(); len(snap.Stages) != 0 || len(snap.Incidents) != 0 {
		t.Fatalf("snapshot after reset = %+v", snap)
	}
}

func TestStageWindowNilSafe(t *testing.T) {
	var w *StageWindow
	w.Observe(StageSave, time.Millisecond)
	w.ObserveIncident("anything")
}
