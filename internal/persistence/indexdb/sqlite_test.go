package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"teleportals.ai/internal/sim/runtime"
	"teleportals.ai/internal/sim/tuning"
)

func TestSQLiteIndex_EventsAndSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	idx.WriteAudit(runtime.AuditEntry{ID: "e1", Tick: 10, Kind: "ACTIVATE", World: "world", Pos: [3]int{1, 64, -2}, Loc: "world,1,64,-2", Link: "a=1", Facing: "EAST"})
	idx.WriteAudit(runtime.AuditEntry{ID: "e2", Tick: 10, Kind: "TELEPORT", World: "world", Pos: [3]int{1, 64, -2}, Loc: "world,1,64,-2", Link: "a=1", Actor: "p1", Exit: "nether,0,0,0"})
	idx.RecordSave(runtime.SaveRecord{Tick: 12000, RecordedAt: "2026-01-01T00:00:00Z", Path: "/data/data.yml", Groups: 1, Endpoints: 2, Bytes: 120})
	if err := idx.UpsertTuning(tuning.Defaults()); err != nil {
		t.Fatalf("UpsertTuning: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM portal_events WHERE link='a=1'`).Scan(&n); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if n != 2 {
		t.Fatalf("events=%d want=2", n)
	}
	var (
		seq   int
		actor string
	)
	if err := db.QueryRow(`SELECT seq,actor FROM portal_events WHERE id='e2'`).Scan(&seq, &actor); err != nil {
		t.Fatalf("scan event: %v", err)
	}
	if seq != 1 || actor != "p1" {
		t.Fatalf("event row mismatch: seq=%d actor=%q", seq, actor)
	}

	var (
		tick      int64
		endpoints int
		bytes     int64
	)
	if err := db.QueryRow(`SELECT tick,endpoints,bytes FROM saves`).Scan(&tick, &endpoints, &bytes); err != nil {
		t.Fatalf("scan save: %v", err)
	}
	if tick != 12000 || endpoints != 2 || bytes != 120 {
		t.Fatalf("save row mismatch: tick=%d endpoints=%d bytes=%d", tick, endpoints, bytes)
	}

	var digest string
	if err := db.QueryRow(`SELECT digest FROM configs WHERE name='tuning'`).Scan(&digest); err != nil {
		t.Fatalf("scan tuning: %v", err)
	}
	if len(digest) != 64 {
		t.Fatalf("digest=%q", digest)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqEvent}

	_ = s.WriteAudit(runtime.AuditEntry{Tick: 2})
	s.RecordSave(runtime.SaveRecord{Tick: 2})

	st := s.Stats()
	if st.DropEventTotal != 1 || st.DropSaveTotal != 1 {
		t.Fatalf("drops: event=%d save=%d want 1/1", st.DropEventTotal, st.DropSaveTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}
