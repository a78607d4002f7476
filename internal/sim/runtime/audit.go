package runtime

import (
	"time"

	"teleportals.ai/internal/persistence/linkdoc"
	"teleportals.ai/internal/sim/tuning"
)

// AuditEntry is the durable record of one engine event. The audit log and the
// index both store it verbatim.
type AuditEntry struct {
	ID     string `json:"id"`
	Tick   uint64 `json:"tick"`
	Time   string `json:"ts"`
	Kind   string `json:"kind"`
	World  string `json:"world"`
	Pos    [3]int `json:"pos"`
	Loc    string `json:"loc"`
	Link   string `json:"link,omitempty"`
	Facing string `json:"facing,omitempty"`
	Actor  string `json:"actor,omitempty"`
	Exit   string `json:"exit,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type SaveRecord struct {
	Tick       uint64 `json:"tick"`
	RecordedAt string `json:"recorded_at"`
	Path       string `json:"path"`
	Backup     string `json:"backup,omitempty"`
	Groups     int    `json:"groups"`
	Endpoints  int    `json:"endpoints"`
	Parked     int    `json:"parked"`
	Bytes      int64  `json:"bytes"`
	TookMs     int64  `json:"took_ms"`
	Error      string `json:"error,omitempty"`
}

type AuditSink interface {
	WriteAudit(AuditEntry) error
}

// Index is the optional queryable mirror of the audit stream.
type Index interface {
	AuditSink
	RecordSave(SaveRecord)
	UpsertTuning(tuning.Tuning) error
}

func newSaveRecord(path string, r linkdoc.SaveResult, err error) SaveRecord {
	rec := SaveRecord{
		Tick:       r.Tick,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Path:       path,
		Backup:     r.Backup,
		Groups:     r.Groups,
		Endpoints:  r.Endpoints,
		Parked:     r.Parked,
		Bytes:      r.Bytes,
		TookMs:     r.Took.Milliseconds(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}
