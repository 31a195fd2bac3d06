package logbook

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journey.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("entry-%d", i)
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestEntriesParseLevelsAndTime(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	book, err := New(filepath.Join(t.TempDir(), "logs", "journey.log"), WithClock(func() time.Time { return at }))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	book.Warn("chain %s segment %d failed:\n%s", "c1", 4, "no main program")
	book.Info("chain c1 segment 5 crafted")
	entries := book.Entries(10)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != LevelWarn || !entries[0].At.Equal(at) {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[0].Message != "chain c1 segment 4 failed: no main program" {
		t.Fatalf("message not flattened: %q", entries[0].Message)
	}
	if entries[1].Level != LevelInfo {
		t.Fatalf("expected info level, got %s", entries[1].Level)
	}
}

func TestNilLogbookIsSafe(t *testing.T) {
	var book *Logbook
	book.Info("ignored")
	if lines, total := book.Tail(5); lines != nil || total != 0 {
		t.Fatalf("expected empty tail from nil logbook")
	}
}
