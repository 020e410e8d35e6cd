package log

import (
	"path/filepath"
	"testing"
	"time"

	"asteroidworks.ai/internal/sim/board"
)

func TestAuditLoggerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)
	entries := []board.AuditEntry{
		{Tick: 1, Actor: "board", Action: "CREATED", ContractID: "C1", Payout: 100},
		{Tick: 2, Actor: "A", Action: "BID", ContractID: "C1", Amount: 80, Payout: 99, Reason: "FIRST"},
	}
	for _, e := range entries {
		if err := l.WriteAudit(e); err != nil {
			t.Fatalf("WriteAudit: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := ListFiles(filepath.Join(dir, "audit"), "audit")
	if err != nil || len(files) != 1 {
		t.Fatalf("ListFiles: %v %v", files, err)
	}
	var got []board.AuditEntry
	if err := ReadAudit(files[0], func(e board.AuditEntry) bool { got = append(got, e); return true }); err != nil {
		t.Fatalf("ReadAudit: %v", err)
	}
	if len(got) != 2 || got[1].Actor != "A" || got[1].Amount != 80 || got[1].Reason != "FIRST" {
		t.Fatalf("unexpected entries %+v", got)
	}
}

func TestWriterRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "audit")
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	if err := w.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"n": 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_ = w.Close()

	files, err := ListFiles(dir, "audit")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "audit-2026-03-01-10.jsonl.zst" {
		t.Fatalf("unexpected files %v", files)
	}
}
