package usecase

import (
	"testing"
	"time"

	"CopyRelay/internal/domain/models"
)

func TestPublishSnapshotsMaster(t *testing.T) {
	l := NewSignalLog(10)
	sig := l.Publish(map[string]interface{}{"action": "buy", "symbol": "EURUSD"}, "A1")
	if sig.Master != "A1" {
		t.Fatalf("expected master snapshot A1, got %q", sig.Master)
	}
	if sig.ID == "" {
		t.Fatalf("expected signal id")
	}
	if sig.Fields["symbol"] != "EURUSD" {
		t.Fatalf("expected field bag preserved")
	}
}

func TestPublishIDsUnique(t *testing.T) {
	l := NewSignalLog(5)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	seen := make(map[string]bool)
	// Same publish second, and enough entries to cycle the FIFO window.
	for i := 0; i < 20; i++ {
		sig := l.Publish(nil, models.NoMaster)
		if seen[sig.ID] {
			t.Fatalf("duplicate id %s", sig.ID)
		}
		seen[sig.ID] = true
	}
}

func TestFIFOEvictionAtCap(t *testing.T) {
	l := NewSignalLog(3)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		tick := base.Add(time.Duration(i) * time.Second)
		l.now = func() time.Time { return tick }
		l.Publish(map[string]interface{}{"n": i}, models.NoMaster)
	}

	if l.Len() != 3 {
		t.Fatalf("expected cap 3, got %d", l.Len())
	}
	got := l.Since(time.Time{})
	// Oldest entry (n=0) evicted, insertion order preserved.
	if got[0].Fields["n"] != 1 || got[2].Fields["n"] != 3 {
		t.Fatalf("unexpected window %v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Fatalf("expected insertion order")
		}
	}
}

func TestSinceFiltersByCutoff(t *testing.T) {
	l := NewSignalLog(100)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		tick := base.Add(time.Duration(i) * time.Hour)
		l.now = func() time.Time { return tick }
		l.Publish(map[string]interface{}{"n": i}, models.NoMaster)
	}

	got := l.Since(base.Add(2 * time.Hour))
	if len(got) != 3 {
		t.Fatalf("expected 3 signals, got %d", len(got))
	}
	if got[0].Fields["n"] != 2 {
		t.Fatalf("expected window to start at n=2, got %v", got[0].Fields["n"])
	}

	// Cutoff is inclusive.
	if len(l.Since(base.Add(4*time.Hour))) != 1 {
		t.Fatalf("expected inclusive cutoff")
	}
	if len(l.Since(base.Add(5*time.Hour))) != 0 {
		t.Fatalf("expected empty window")
	}
}
