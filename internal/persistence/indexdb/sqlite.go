// Package indexdb keeps a queryable sqlite index of portal events and saves.
// The links document and the audit log stay authoritative; the index may drop
// rows under load.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"teleportals.ai/internal/sim/runtime"
	"teleportals.ai/internal/sim/tuning"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropEvent atomic.Uint64
	dropSave  atomic.Uint64
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqSave
)

type req struct {
	kind reqKind

	event runtime.AuditEntry
	save  runtime.SaveRecord
}

type Stats struct {
	QueueDepth     int    `json:"queue_depth"`
	QueueCapacity  int    `json:"queue_capacity"`
	DropEventTotal uint64 `json:"drop_event_total"`
	DropSaveTotal  uint64 `json:"drop_save_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS configs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS portal_events (
			id TEXT PRIMARY KEY,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			world TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			link TEXT,
			facing TEXT,
			actor TEXT,
			exit_loc TEXT,
			reason TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_portal_events_tick ON portal_events(tick, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_portal_events_link_tick ON portal_events(link, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_portal_events_pos ON portal_events(world, x, z, y);`,
		`CREATE TABLE IF NOT EXISTS saves (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			path TEXT NOT NULL,
			backup TEXT,
			groups_n INTEGER NOT NULL,
			endpoints INTEGER NOT NULL,
			parked INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			took_ms INTEGER NOT NULL,
			error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_saves_tick ON saves(tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) WriteAudit(entry runtime.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqEvent, event: entry}:
	default:
		// the audit log keeps the full history
		s.dropEvent.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSave(rec runtime.SaveRecord) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSave, save: rec}:
	default:
		s.dropSave.Add(1)
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropEventTotal: s.dropEvent.Load(),
		DropSaveTotal:  s.dropSave.Load(),
	}
}

// UpsertTuning records the tuning in effect, keyed by its digest.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	digest, b, err := tune.Digest()
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO configs(name,digest,json,updated_at) VALUES(?,?,?,?)`, "tuning", digest, string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO portal_events(id,tick,seq,kind,world,x,y,z,link,facing,actor,exit_loc,reason,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertSave, _ := s.db.Prepare(`INSERT INTO saves(tick,recorded_at,path,backup,groups_n,endpoints,parked,bytes,took_ms,error) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertEvent != nil {
			_ = insertEvent.Close()
		}
		if insertSave != nil {
			_ = insertSave.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second

		lastTick uint64
		seq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEvent:
			e := r.event
			if e.Tick != lastTick {
				lastTick = e.Tick
				seq = 0
			}
			n := seq
			seq++
			raw, _ := json.Marshal(e)
			if insertEvent != nil {
				if _, err := tx.Stmt(insertEvent).Exec(
					e.ID,
					int64(e.Tick),
					n,
					e.Kind,
					e.World,
					e.Pos[0], e.Pos[1], e.Pos[2],
					e.Link,
					e.Facing,
					e.Actor,
					e.Exit,
					e.Reason,
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSave:
			sv := r.save
			if insertSave != nil {
				if _, err := tx.Stmt(insertSave).Exec(
					int64(sv.Tick),
					sv.RecordedAt,
					sv.Path,
					sv.Backup,
					sv.Groups,
					sv.Endpoints,
					sv.Parked,
					sv.Bytes,
					sv.TookMs,
					sv.Error,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
