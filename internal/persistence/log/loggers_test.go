package log

import (
	"testing"
	"time"

	"teleportals.ai/internal/sim/runtime"
)

func TestAuditLogger_RotatesHourlyAndReadsBack(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)
	clock := time.Date(2026, 5, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	if err := l.WriteAudit(runtime.AuditEntry{ID: "1", Tick: 1, Kind: "ACTIVATE", Loc: "world,0,0,0", Link: "a=1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := l.WriteAudit(runtime.AuditEntry{ID: "2", Tick: 2, Kind: "DEACTIVATE", Loc: "world,0,0,0", Link: "a=1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// reopening within the same hour appends
	l2 := NewAuditLogger(dir)
	l2.w.now = func() time.Time { return clock }
	if err := l2.WriteAudit(runtime.AuditEntry{ID: "3", Tick: 3, Kind: "ACTIVATE", Loc: "world,1,0,0", Link: "b=1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l2.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := AuditFiles(AuditDir(dir))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("segments: got %d want 2 (%v)", len(files), files)
	}

	var ids []string
	if err := ReadAuditDir(AuditDir(dir), func(e runtime.AuditEntry) error {
		ids = append(ids, e.ID)
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(ids) != 3 || ids[0] != "1" || ids[1] != "2" || ids[2] != "3" {
		t.Fatalf("ids: %v", ids)
	}
}
