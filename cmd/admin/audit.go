package main

import (
	"errors"
	"flag"
	"io"
	"strings"

	persistlog "teleportals.ai/internal/persistence/log"
	"teleportals.ai/internal/sim/runtime"
)

var errLimit = errors.New("limit reached")

func auditCmd(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	kind := fs.String("kind", "", "event kind filter")
	link := fs.String("link", "", "link filter")
	sinceTick := fs.Uint64("since_tick", 0, "skip entries before tick")
	limit := fs.Int("limit", 0, "stop after n entries (0: no limit)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	k := strings.ToUpper(strings.TrimSpace(*kind))
	n := 0
	err := persistlog.ReadAuditDir(persistlog.AuditDir(*dataDir), func(e runtime.AuditEntry) error {
		if e.Tick < *sinceTick || (k != "" && e.Kind != k) || (*link != "" && e.Link != *link) {
			return nil
		}
		printJSON(w, e)
		n++
		if *limit > 0 && n >= *limit {
			return errLimit
		}
		return nil
	})
	if errors.Is(err, errLimit) {
		return nil
	}
	return err
}
