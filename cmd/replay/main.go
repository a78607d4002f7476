package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"

	"teleportals.ai/internal/persistence/linkdoc"
	persistlog "teleportals.ai/internal/persistence/log"
	"teleportals.ai/internal/sim/geom"
	"teleportals.ai/internal/sim/linkreg"
	"teleportals.ai/internal/sim/portal"
	"teleportals.ai/internal/sim/runtime"
)

// replay rebuilds the links document from the audit log. It is the recovery
// path when both the document and its backups are lost, and a consistency
// check (-verify) otherwise.
func main() {
	var (
		dataDir   = flag.String("data", "./data", "runtime data directory")
		auditDir  = flag.String("audit", "", "audit dir (default: <data>/audit)")
		untilTick = flag.Uint64("until_tick", 0, "stop after tick (inclusive, optional)")
		outPath   = flag.String("out", "", "write the rebuilt document here (optional)")
		verify    = flag.Bool("verify", false, "compare the rebuilt document with <data>/data.yml")
	)
	flag.Parse()

	dir := *auditDir
	if dir == "" {
		dir = persistlog.AuditDir(*dataDir)
	}
	doc, st, err := rebuild(dir, *untilTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replayed %d entries up to tick %d: %d groups, %d endpoints, %d directions (%d unparsable skipped)\n",
		st.Entries, st.LastTick, len(doc.Subspaces), doc.Endpoints(), len(doc.Directions), st.Skipped)

	if *outPath != "" {
		n, err := linkdoc.Write(*outPath, doc)
		if err != nil {
			fmt.Fprintln(os.Stderr, "write:", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s (%s)\n", *outPath, humanize.Bytes(uint64(n)))
	}

	if *verify {
		cur, err := linkdoc.Read(filepath.Join(*dataDir, "data.yml"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "read document:", err)
			os.Exit(1)
		}
		diffs := diff(cur, doc)
		for _, d := range diffs {
			fmt.Println(d)
		}
		if len(diffs) > 0 {
			fmt.Fprintf(os.Stderr, "%d differences\n", len(diffs))
			os.Exit(3)
		}
		fmt.Println("document matches the audit log")
	}
}

type replayStats struct {
	Entries  int
	Skipped  int
	LastTick uint64
}

func rebuild(dir string, untilTick uint64) (linkdoc.Document, replayStats, error) {
	var st replayStats
	reg := linkreg.New(rand.New(rand.NewSource(1)))
	err := persistlog.ReadAuditDir(dir, func(e runtime.AuditEntry) error {
		if untilTick > 0 && e.Tick > untilTick {
			return nil
		}
		loc, ok := geom.ParseLocationKey(e.Loc)
		if !ok {
			st.Skipped++
			return nil
		}
		st.Entries++
		st.LastTick = e.Tick
		switch portal.EventKind(e.Kind) {
		case portal.EventActivate:
			f, ok := geom.ParseFacing(e.Facing)
			if !ok {
				f = geom.North
			}
			reg.Remove(loc)
			reg.Add(e.Link, loc, f)
		case portal.EventDeactivate:
			reg.Remove(loc)
			if f, ok := geom.ParseFacing(e.Facing); ok {
				reg.SetDirection(loc, f)
			}
		case portal.EventDropStale:
			reg.Remove(loc)
		case portal.EventPruneDirection:
			reg.ForgetDirection(loc)
		}
		return nil
	})
	if err != nil {
		return linkdoc.Document{}, st, err
	}
	return linkdoc.FromRegistry(reg.Snapshot()), st, nil
}

func diff(cur, rebuilt linkdoc.Document) []string {
	var out []string
	keys := map[string]bool{}
	for k := range cur.Subspaces {
		keys[k] = true
	}
	for k := range rebuilt.Subspaces {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	for _, k := range sorted {
		a, b := cur.Subspaces[k], rebuilt.Subspaces[k]
		if fmt.Sprint(a) != fmt.Sprint(b) {
			out = append(out, fmt.Sprintf("subspace %s: document=%v audit=%v", k, a, b))
		}
	}
	for loc, f := range cur.Directions {
		if g, ok := rebuilt.Directions[loc]; !ok || g != f {
			out = append(out, fmt.Sprintf("direction %s: document=%s audit=%s", loc, f, g))
		}
	}
	for loc, g := range rebuilt.Directions {
		if _, ok := cur.Directions[loc]; !ok {
			out = append(out, fmt.Sprintf("direction %s: document= audit=%s", loc, g))
		}
	}
	return out
}
