package main

import (
	"database/sql"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("db", flag.ContinueOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/index/links.sqlite)")
	limit := fs.Int("limit", 20, "result limit")
	link := fs.String("link", "", "link filter (events)")
	world := fs.String("world", "", "world filter (events)")
	kind := fs.String("kind", "", "event kind filter (events)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q := "events"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "links.sqlite")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	switch q {
	case "events":
		where := []string{"1=1"}
		var qargs []any
		for _, f := range []struct{ col, val string }{{"link", *link}, {"world", *world}, {"kind", strings.ToUpper(*kind)}} {
			if strings.TrimSpace(f.val) != "" {
				where = append(where, f.col+"=?")
				qargs = append(qargs, strings.TrimSpace(f.val))
			}
		}
		qargs = append(qargs, *limit)
		rows, err := db.Query(`SELECT id,tick,kind,world,x,y,z,COALESCE(link,''),COALESCE(facing,''),COALESCE(actor,''),COALESCE(exit_loc,''),COALESCE(reason,'')
			FROM portal_events WHERE `+strings.Join(where, " AND ")+` ORDER BY tick DESC, seq DESC LIMIT ?`, qargs...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				ID     string `json:"id"`
				Tick   uint64 `json:"tick"`
				Kind   string `json:"kind"`
				World  string `json:"world"`
				X      int    `json:"x"`
				Y      int    `json:"y"`
				Z      int    `json:"z"`
				Link   string `json:"link,omitempty"`
				Facing string `json:"facing,omitempty"`
				Actor  string `json:"actor,omitempty"`
				Exit   string `json:"exit,omitempty"`
				Reason string `json:"reason,omitempty"`
			}
			if err := rows.Scan(&r.ID, &r.Tick, &r.Kind, &r.World, &r.X, &r.Y, &r.Z, &r.Link, &r.Facing, &r.Actor, &r.Exit, &r.Reason); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "saves":
		rows, err := db.Query(`SELECT tick,recorded_at,path,COALESCE(backup,''),groups_n,endpoints,parked,bytes,took_ms,COALESCE(error,'') FROM saves ORDER BY id DESC LIMIT ?`, *limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
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
			if err := rows.Scan(&r.Tick, &r.RecordedAt, &r.Path, &r.Backup, &r.Groups, &r.Endpoints, &r.Parked, &r.Bytes, &r.TookMs, &r.Error); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "tuning":
		var digest, raw, updated string
		if err := db.QueryRow(`SELECT digest,json,updated_at FROM configs WHERE name='tuning'`).Scan(&digest, &raw, &updated); err != nil {
			return fmt.Errorf("tuning: %w", err)
		}
		fmt.Fprintf(w, "digest=%s updated_at=%s\n%s\n", digest, updated, raw)
		return nil

	default:
		return fmt.Errorf("unknown query %q (want events|saves|tuning)", q)
	}
}
