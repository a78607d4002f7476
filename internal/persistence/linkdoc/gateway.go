package linkdoc

import (
	"fmt"
	"io"
	"log"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"teleportals.ai/internal/persistence/snapshot"
	"teleportals.ai/internal/sim/geom"
	"teleportals.ai/internal/sim/linkreg"
)

type Config struct {
	Path string
	// BackupDir receives a compressed copy of every saved document. Empty
	// disables backups.
	BackupDir     string
	BackupKeep    int
	DefaultFacing geom.Facing
}

// Gateway moves the registry to and from the links document. Entries whose
// world is not loaded are parked: kept out of the registry, written back on
// every save, and handed to the registry by Adopt once their world loads.
type Gateway struct {
	cfg Config
	log *log.Logger

	saveMu sync.Mutex

	mu     sync.Mutex
	parked Document
	// order is the document order of every group with parked members, so they
	// go back to their place on save and on Adopt.
	order map[string][]string
}

type LoadReport struct {
	Groups     int
	Endpoints  int
	Directions int
	Parked     int
	Duplicates int
	Skipped    []string
	// FromBackup names the backup used when the document itself was unreadable.
	FromBackup string
}

type SaveResult struct {
	Tick      uint64
	Groups    int
	Endpoints int
	Parked    int
	Bytes     int64
	Backup    string
	Took      time.Duration
}

func New(cfg Config, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Gateway{cfg: cfg, log: logger, parked: NewDocument()}
}

func (g *Gateway) Path() string { return g.cfg.Path }

// SetBackupKeep changes retention for subsequent saves.
func (g *Gateway) SetBackupKeep(n int) {
	g.saveMu.Lock()
	g.cfg.BackupKeep = n
	g.saveMu.Unlock()
}

// Load replaces the registry contents with the document. Malformed entries are
// skipped and reported; an unreadable document falls back to the newest backup.
func (g *Gateway) Load(reg *linkreg.Registry, worlds geom.WorldLookup) (LoadReport, error) {
	var rep LoadReport
	doc, err := Read(g.cfg.Path)
	if err != nil {
		g.log.Printf("links document unreadable: %v", err)
		bdoc, bpath, berr := g.latestBackup()
		if berr != nil {
			return rep, fmt.Errorf("load %s: %w (no usable backup: %v)", g.cfg.Path, err, berr)
		}
		g.log.Printf("restored links from backup %s", filepath.Base(bpath))
		doc = bdoc
		rep.FromBackup = bpath
	}

	parked := NewDocument()
	order := map[string][]string{}
	s := linkreg.Snapshot{Directions: map[geom.Location]geom.Facing{}}

	for key, name := range doc.Directions {
		loc, ok := geom.ParseLocationKey(key)
		if !ok {
			rep.Skipped = append(rep.Skipped, "direction "+key)
			continue
		}
		f, ok := geom.ParseFacing(name)
		if !ok {
			rep.Skipped = append(rep.Skipped, fmt.Sprintf("direction %s=%s", key, name))
			continue
		}
		if worlds == nil || !worlds.HasWorld(loc.World) {
			parked.Directions[geom.LocationKey(loc)] = f.String()
			continue
		}
		s.Directions[loc] = f
	}

	for _, key := range sortedKeys(doc.Subspaces) {
		// keys are opaque here; only an empty one can never match a key object
		if key == "" {
			rep.Skipped = append(rep.Skipped, "subspace with empty key")
			continue
		}
		grp := linkreg.Group{Key: key}
		var all []string
		for _, m := range doc.Subspaces[key] {
			loc, ok := geom.ParseLocationKey(m)
			if !ok {
				rep.Skipped = append(rep.Skipped, "member "+m)
				continue
			}
			all = append(all, geom.LocationKey(loc))
			if worlds == nil || !worlds.HasWorld(loc.World) {
				parked.Subspaces[key] = append(parked.Subspaces[key], geom.LocationKey(loc))
				continue
			}
			grp.Members = append(grp.Members, loc)
		}
		if len(parked.Subspaces[key]) > 0 {
			order[key] = all
		}
		if len(grp.Members) > 0 {
			s.Groups = append(s.Groups, grp)
		}
	}
	sort.Strings(rep.Skipped)

	rep.Duplicates = reg.Restore(s)
	rep.Groups = len(reg.Keys())
	rep.Endpoints = reg.Len()
	rep.Directions = len(s.Directions)
	rep.Parked = parked.Endpoints()

	g.mu.Lock()
	g.parked = parked
	g.order = order
	g.mu.Unlock()
	return rep, nil
}

// Save writes snap plus the parked entries over the document, then a backup.
// A failed backup is logged; only a failed document write is an error.
func (g *Gateway) Save(snap linkreg.Snapshot, tick uint64) (SaveResult, error) {
	g.saveMu.Lock()
	defer g.saveMu.Unlock()

	start := time.Now()
	doc := FromRegistry(snap)
	g.mu.Lock()
	parked := mergeParked(doc, g.parked, g.order)
	g.mu.Unlock()

	res := SaveResult{
		Tick:      tick,
		Groups:    len(doc.Subspaces),
		Endpoints: doc.Endpoints(),
		Parked:    parked,
	}
	n, err := Write(g.cfg.Path, doc)
	if err != nil {
		return res, fmt.Errorf("write %s: %w", g.cfg.Path, err)
	}
	res.Bytes = n

	if g.cfg.BackupDir != "" {
		now := time.Now()
		bp := filepath.Join(g.cfg.BackupDir, snapshot.FileName(now))
		if err := snapshot.Write(bp, ToSnapshot(doc, tick, now)); err != nil {
			g.log.Printf("backup %s: %v", bp, err)
		} else {
			res.Backup = bp
			if removed, err := snapshot.Prune(g.cfg.BackupDir, g.cfg.BackupKeep); err != nil {
				g.log.Printf("prune backups: %v", err)
			} else if len(removed) > 0 {
				g.log.Printf("pruned %d old backups", len(removed))
			}
		}
	}
	res.Took = time.Since(start)
	return res, nil
}

// Adopt moves parked entries for worldID into the registry. Adopted members
// take back their document position relative to the members still in place.
// It returns the number of endpoints added.
func (g *Gateway) Adopt(worldID string, reg *linkreg.Registry) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	added := 0
	for _, key := range sortedKeys(g.parked.Subspaces) {
		var keep []string
		for _, m := range g.parked.Subspaces[key] {
			loc, _ := geom.ParseLocationKey(m)
			if loc.World != worldID {
				keep = append(keep, m)
				continue
			}
			f := g.cfg.DefaultFacing
			if pf, ok := geom.ParseFacing(g.parked.Directions[m]); ok {
				f = pf
			} else if rf, ok := reg.Direction(loc); ok {
				f = rf
			}
			delete(g.parked.Directions, m)
			members := make([]string, 0, len(g.order[key]))
			for _, l := range reg.Members(key) {
				members = append(members, geom.LocationKey(l))
			}
			if reg.Insert(key, placeOf(members, m, g.order[key]), loc, f) {
				added++
			}
		}
		if len(keep) == 0 {
			delete(g.parked.Subspaces, key)
			delete(g.order, key)
		} else {
			g.parked.Subspaces[key] = keep
		}
	}
	for m, name := range g.parked.Directions {
		loc, _ := geom.ParseLocationKey(m)
		if loc.World != worldID {
			continue
		}
		delete(g.parked.Directions, m)
		if _, ok := reg.Direction(loc); ok {
			continue
		}
		if f, ok := geom.ParseFacing(name); ok {
			reg.SetDirection(loc, f)
		}
	}
	return added
}

// Parked reports how many endpoints wait for their world to load.
func (g *Gateway) Parked() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.parked.Endpoints()
}

func (g *Gateway) latestBackup() (Document, string, error) {
	if g.cfg.BackupDir == "" {
		return Document{}, "", fmt.Errorf("backups disabled")
	}
	p, err := snapshot.Latest(g.cfg.BackupDir)
	if err != nil {
		return Document{}, "", err
	}
	s, err := snapshot.Read(p)
	if err != nil {
		return Document{}, p, err
	}
	return FromSnapshot(s), p, nil
}

// FromRegistry renders a registry snapshot in document form.
func FromRegistry(s linkreg.Snapshot) Document {
	doc := NewDocument()
	for loc, f := range s.Directions {
		doc.Directions[geom.LocationKey(loc)] = f.String()
	}
	for _, grp := range s.Groups {
		if len(grp.Members) == 0 {
			continue
		}
		ms := make([]string, 0, len(grp.Members))
		for _, loc := range grp.Members {
			ms = append(ms, geom.LocationKey(loc))
		}
		doc.Subspaces[grp.Key] = ms
	}
	return doc
}

func ToSnapshot(doc Document, tick uint64, now time.Time) snapshot.SnapshotV1 {
	s := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:   snapshot.Version,
			Tick:      tick,
			SavedAt:   now.Unix(),
			Groups:    len(doc.Subspaces),
			Endpoints: doc.Endpoints(),
		},
	}
	for _, key := range sortedKeys(doc.Subspaces) {
		s.Groups = append(s.Groups, snapshot.GroupV1{Key: key, Members: append([]string(nil), doc.Subspaces[key]...)})
	}
	for _, key := range sortedKeys(doc.Directions) {
		s.Directions = append(s.Directions, snapshot.DirectionV1{Loc: key, Facing: doc.Directions[key]})
	}
	return s
}

func FromSnapshot(s snapshot.SnapshotV1) Document {
	doc := NewDocument()
	for _, grp := range s.Groups {
		doc.Subspaces[grp.Key] = append([]string(nil), grp.Members...)
	}
	for _, d := range s.Directions {
		doc.Directions[d.Loc] = d.Facing
	}
	return doc
}

func mergeParked(doc, parked Document, order map[string][]string) int {
	n := 0
	for key, ms := range parked.Subspaces {
		out := doc.Subspaces[key]
		for _, m := range ms {
			if slices.Contains(out, m) {
				continue
			}
			out = slices.Insert(out, placeOf(out, m, order[key]), m)
			n++
		}
		doc.Subspaces[key] = out
	}
	for key, f := range parked.Directions {
		if _, ok := doc.Directions[key]; !ok {
			doc.Directions[key] = f
		}
	}
	return n
}

// placeOf is the index m should take in members: right after the closest
// entry that preceded it in order, first when none is present, last when m is
// not in order at all.
func placeOf(members []string, m string, order []string) int {
	i := slices.Index(order, m)
	if i < 0 {
		return len(members)
	}
	for j := i - 1; j >= 0; j-- {
		if k := slices.Index(members, order[j]); k >= 0 {
			return k + 1
		}
	}
	return 0
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
