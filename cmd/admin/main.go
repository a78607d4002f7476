package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"teleportals.ai/internal/persistence/linkdoc"
	"teleportals.ai/internal/persistence/snapshot"
)

const usage = `usage: admin <command> [flags]

commands:
  links      list link groups in the links document (default)
  snapshots  list registry backups
  restore    replace the links document with a backup
  db         query the sqlite index: events|saves|tuning
  audit      dump the audit log
  state      print runtime state from a running server
  save       ask a running server to save now
  reload     ask a running server to reload tuning.yaml`

func main() {
	cmd, args := "links", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}
	var err error
	switch cmd {
	case "links":
		err = linksCmd(os.Stdout, args)
	case "snapshots":
		err = snapshotsCmd(os.Stdout, args)
	case "restore":
		err = restoreCmd(os.Stdout, args)
	case "db":
		err = dbCmd(os.Stdout, args)
	case "audit":
		err = auditCmd(os.Stdout, args)
	case "state":
		err = httpCmd(os.Stdout, "state", args)
	case "save":
		err = httpCmd(os.Stdout, "save", args)
	case "reload":
		err = httpCmd(os.Stdout, "reload", args)
	case "help", "-h", "--help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintln(os.Stderr, "unknown command:", cmd)
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, cmd+":", err)
		os.Exit(1)
	}
}

func docPath(dataDir string) string   { return filepath.Join(dataDir, "data.yml") }
func backupDir(dataDir string) string { return filepath.Join(dataDir, "backups") }

func linksCmd(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("links", flag.ContinueOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	asJSON := fs.Bool("json", false, "print one JSON object per group")
	if err := fs.Parse(args); err != nil {
		return err
	}

	doc, err := linkdoc.Read(docPath(*dataDir))
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(doc.Subspaces))
	for k := range doc.Subspaces {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		members := doc.Subspaces[k]
		if *asJSON {
			dirs := make([]string, len(members))
			for i, m := range members {
				dirs[i] = doc.Directions[m]
			}
			printJSON(w, map[string]any{"link": k, "members": members, "directions": dirs})
			continue
		}
		fmt.Fprintf(w, "%s (%d)\n", k, len(members))
		for i, m := range members {
			role := "  "
			if i == 0 && len(members) > 2 {
				role = "* "
			}
			fmt.Fprintf(w, "  %s%s %s\n", role, m, doc.Directions[m])
		}
	}
	if !*asJSON {
		fmt.Fprintf(w, "%d groups, %d endpoints, %d directions\n", len(keys), doc.Endpoints(), len(doc.Directions))
	}
	return nil
}

func snapshotsCmd(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("snapshots", flag.ContinueOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	paths, err := snapshot.List(backupDir(*dataDir))
	if err != nil {
		return err
	}
	for _, p := range paths {
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			fmt.Fprintf(w, "%s  unreadable: %v\n", filepath.Base(p), err)
			continue
		}
		size := "?"
		if fi, err := os.Stat(p); err == nil {
			size = humanize.Bytes(uint64(fi.Size()))
		}
		saved := time.Unix(h.SavedAt, 0)
		fmt.Fprintf(w, "%s  tick=%d groups=%d endpoints=%d size=%s saved=%s\n",
			filepath.Base(p), h.Tick, h.Groups, h.Endpoints, size, humanize.Time(saved))
	}
	return nil
}

// restoreCmd overwrites the links document with a backup. The server must be
// stopped: a running server would overwrite the document on its next save.
func restoreCmd(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	from := fs.String("snapshot", "", "backup to restore (default: latest)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := strings.TrimSpace(*from)
	if path == "" {
		p, err := snapshot.Latest(backupDir(*dataDir))
		if err != nil {
			return err
		}
		path = p
	}
	snap, err := snapshot.Read(path)
	if err != nil {
		return err
	}
	doc := linkdoc.FromSnapshot(snap)
	n, err := linkdoc.Write(docPath(*dataDir), doc)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "restored %s from %s (tick %d): %d groups, %d endpoints, %s\n",
		docPath(*dataDir), filepath.Base(path), snap.Header.Tick, len(doc.Subspaces), doc.Endpoints(), humanize.Bytes(uint64(n)))
	return nil
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
