package journal

import (
	"path/filepath"
	"testing"
	"time"
)

func TestWriter_RotatesHourlyAndReadsBack(t *testing.T) {
	dir := t.TempDir()
	t0 := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w := NewWriter(dir, func() time.Time { return t0 })

	if err := w.Write(Entry{Kind: KindSessionStart, SessionID: "s1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Write(Entry{Time: t0.Add(30 * time.Second), Kind: KindSwitch, Subject: "Alice", SubjectID: "a1", Reason: "no_subject"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Write(Entry{Time: t0.Add(2 * time.Minute), Kind: KindSwitch, Subject: "Bob", Previous: "Alice", Reason: "rotation"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	files, err := Files(dir)
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files=%v want 2 hourly files", files)
	}
	if filepath.Base(files[0]) != "events-2026-03-01-10.jsonl.zst" {
		t.Fatalf("first=%s", files[0])
	}
	first, err := ReadFile(files[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(first) != 2 || first[0].Kind != KindSessionStart || !first[0].Time.Equal(t0) || first[1].Subject != "Alice" {
		t.Fatalf("first=%+v", first)
	}
	second, err := ReadFile(files[1])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(second) != 1 || second[0].Previous != "Alice" {
		t.Fatalf("second=%+v", second)
	}
	if err := w.Write(Entry{Kind: KindMode}); err == nil {
		t.Fatalf("write after close succeeded")
	}
}

func TestWriter_AppendsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	now := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	a := NewWriter(dir, now)
	_ = a.Write(Entry{Kind: KindSessionStart, SessionID: "s1"})
	_ = a.Close()
	b := NewWriter(dir, now)
	_ = b.Write(Entry{Kind: KindSessionStart, SessionID: "s2"})
	_ = b.Close()

	files, _ := Files(dir)
	if len(files) != 1 {
		t.Fatalf("files=%v", files)
	}
	got, err := ReadFile(files[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0].SessionID != "s1" || got[1].SessionID != "s2" {
		t.Fatalf("got=%+v", got)
	}
}

func TestLastSeen_NewestFilePerSession(t *testing.T) {
	dir := t.TempDir()
	t0 := time.Date(2026, 3, 1, 9, 50, 0, 0, time.UTC)
	w := NewWriter(dir, nil)
	entries := []Entry{
		{Time: t0, SessionID: "old", Kind: KindSessionStart},
		{Time: t0.Add(20 * time.Minute), SessionID: "s1", Kind: KindSessionStart},
		{Time: t0.Add(25 * time.Minute), SessionID: "s1", Kind: KindSwitch, Subject: "Alice"},
		{Time: t0.Add(30 * time.Minute), SessionID: "s2", Kind: KindSessionStart},
	}
	for _, e := range entries {
		if err := w.Write(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	seen, err := LastSeen(dir)
	if err != nil {
		t.Fatalf("last seen: %v", err)
	}
	if len(seen) != 2 || !seen["s1"].Equal(t0.Add(25*time.Minute)) || !seen["s2"].Equal(t0.Add(30*time.Minute)) {
		t.Fatalf("seen=%v", seen)
	}

	seen, err = LastSeen(filepath.Join(dir, "missing"))
	if err != nil || len(seen) != 0 {
		t.Fatalf("missing dir: seen=%v err=%v", seen, err)
	}
}
