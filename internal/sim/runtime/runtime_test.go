package runtime

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"teleportals.ai/internal/persistence/linkdoc"
	"teleportals.ai/internal/persistence/snapshot"
	"teleportals.ai/internal/sim/geom"
	"teleportals.ai/internal/sim/keyobj"
	"teleportals.ai/internal/sim/multiworld"
	"teleportals.ai/internal/sim/portal"
	"teleportals.ai/internal/sim/tuning"
	"teleportals.ai/internal/sim/world"
)

type memAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (m *memAudit) WriteAudit(e AuditEntry) error {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

func (m *memAudit) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Kind)
	}
	return out
}

func testWorlds() multiworld.Config {
	return multiworld.Config{
		DefaultWorldID: "world",
		Worlds: []multiworld.WorldSpec{
			{ID: "world", LoadOnStart: true},
			{ID: "nether", LoadOnStart: true},
			{ID: "end", LoadOnStart: false},
		},
	}
}

func newRuntime(t *testing.T, dataDir string, tune tuning.Tuning, audit AuditSink) *Runtime {
	t.Helper()
	var gw *linkdoc.Gateway
	worldPath := ""
	if dataDir != "" {
		gw = linkdoc.New(linkdoc.Config{
			Path:       filepath.Join(dataDir, "data.yml"),
			BackupDir:  filepath.Join(dataDir, "backups"),
			BackupKeep: tune.BackupKeep,
		}, nil)
		worldPath = filepath.Join(dataDir, "world.snap.zst")
	}
	rt := New(Options{
		Tuning:            tune,
		Worlds:            testWorlds(),
		Gateway:           gw,
		WorldSnapshotPath: worldPath,
		Audit:             audit,
		Rand:              rand.New(rand.NewSource(3)),
	})
	if _, err := rt.Boot(); err != nil {
		t.Fatalf("boot: %v", err)
	}
	return rt
}

func buildFrame(t *testing.T, rt *Runtime, loc geom.Location, f geom.Facing) {
	t.Helper()
	m := rt.eng.Config().Materials
	for _, req := range []PlaceRequest{
		{Loc: loc.Down(), Material: m.Frame},
		{Loc: loc.Up(), Material: m.Frame},
		{Loc: loc, Material: m.PassiveAnchor, Facing: f, Oriented: true},
	} {
		if err := rt.place(req); err != nil {
			t.Fatalf("place %+v: %v", req, err)
		}
	}
}

func mustKey(t *testing.T, rt *Runtime, tags map[string]int, count int) keyobj.Item {
	t.Helper()
	it, err := rt.giveKey(GiveKeyRequest{Tags: tags, Count: count})
	if err != nil {
		t.Fatalf("give key: %v", err)
	}
	return it
}

func TestRuntime_ActivateConsumesKeyAndTeleports(t *testing.T) {
	audit := &memAudit{}
	rt := newRuntime(t, "", tuning.Defaults(), audit)
	sub := rt.subscribe(64)

	a := geom.At("world", 0, 64, 0)
	b := geom.At("nether", 8, 40, 8)
	buildFrame(t, rt, a, geom.North)
	buildFrame(t, rt, b, geom.South)
	key := mustKey(t, rt, map[string]int{"depth": 2}, 2)

	// clicking the lower frame block resolves the anchor above it
	r1 := rt.interact(InteractRequest{Actor: "p1", Loc: a.Down(), Item: key})
	if !r1.OK || r1.Anchor != a || r1.Item.Count != 1 {
		t.Fatalf("interact a = %+v", r1)
	}
	r2 := rt.interact(InteractRequest{Actor: "p1", Loc: b, Item: r1.Item, Creative: true})
	if !r2.OK || r2.Item.Count != 1 {
		t.Fatalf("creative interact should keep the key: %+v", r2)
	}
	again := rt.interact(InteractRequest{Actor: "p1", Loc: a, Item: r2.Item})
	if again.OK || again.Outcome != portal.AlreadyActive || again.Item.Count != 1 {
		t.Fatalf("repeat interact = %+v", again)
	}

	rt.world.SpawnActor(world.Actor{ID: "p1", World: "world"})
	tr := rt.eng.Teleport(portal.Entrant{ID: "p1"}, a, geom.FaceEast)
	if !tr.Moved || tr.Exit != b {
		t.Fatalf("teleport = %+v", tr)
	}
	rt.Step()

	got, _ := rt.world.Actor("p1")
	if got.World != "nether" || got.Pos != (geom.Vec3{X: 7.5, Y: 39.5, Z: 8.5}) {
		t.Fatalf("actor = %+v", got)
	}

	want := []string{"ACTIVATE", "ACTIVATE", "TELEPORT"}
	if kinds := audit.kinds(); len(kinds) != 3 || kinds[0] != want[0] || kinds[2] != want[2] {
		t.Fatalf("audit kinds = %v", kinds)
	}
	if audit.entries[0].Facing != "NORTH" || audit.entries[0].ID == "" || audit.entries[2].Exit != "nether,8,40,8" {
		t.Fatalf("audit entry = %+v / %+v", audit.entries[0], audit.entries[2])
	}

	var sawMove, sawUsed bool
	for len(sub.C) > 0 {
		n := <-sub.C
		switch {
		case n.Kind == NoticeMove && n.Move.Actor.ID == "p1":
			sawMove = true
		case n.Kind == NoticeEffect && n.Effect.Kind == portal.EffectUsed:
			sawUsed = true
		}
	}
	if !sawMove || !sawUsed {
		t.Fatalf("notices: move=%v used=%v", sawMove, sawUsed)
	}
}

func TestRuntime_BreakDeactivatesAndDropsKey(t *testing.T) {
	rt := newRuntime(t, "", tuning.Defaults(), nil)
	sub := rt.subscribe(64)
	a := geom.At("world", 3, 10, 3)
	buildFrame(t, rt, a, geom.West)
	rt.interact(InteractRequest{Loc: a, Item: mustKey(t, rt, map[string]int{"x": 1}, 1)})
	rt.flushWorld()
	for len(sub.C) > 0 {
		<-sub.C
	}

	res := rt.breakBlock(BreakRequest{Loc: a.Up()})
	if !res.Deactivated.OK || res.Anchor != a || res.Material != "OBSIDIAN" {
		t.Fatalf("break = %+v", res)
	}
	if got := rt.world.BlockMaterial(a); got != "ENDER_CHEST" {
		t.Fatalf("anchor after break = %q", got)
	}
	if got := rt.world.BlockMaterial(a.Up()); got != "AIR" {
		t.Fatalf("broken block = %q", got)
	}
	rt.flushWorld()
	var dropped *keyobj.Item
	for len(sub.C) > 0 {
		if n := <-sub.C; n.Kind == NoticeDrop {
			dropped = &n.Drop.Item
		}
	}
	if dropped == nil || rt.eng.Config().Codec.ComputeLinkKey(dropped) != "x=1" {
		t.Fatalf("dropped key = %+v", dropped)
	}

	if res := rt.breakBlock(BreakRequest{Loc: a}); res.Deactivated.Outcome != portal.NotMember {
		t.Fatalf("breaking an unlinked frame = %+v", res)
	}
}

func TestRuntime_GiveKeyValidation(t *testing.T) {
	rt := newRuntime(t, "", tuning.Defaults(), nil)
	if _, err := rt.giveKey(GiveKeyRequest{}); err == nil {
		t.Fatalf("empty request should fail")
	}
	if _, err := rt.giveKey(GiveKeyRequest{Link: "b=1,a=2"}); err == nil {
		t.Fatalf("non-canonical link should fail")
	}
	if _, err := rt.giveKey(GiveKeyRequest{Tags: map[string]int{"a b": 1}}); err == nil {
		t.Fatalf("bad tag name should fail")
	}
	if it, err := rt.giveKey(GiveKeyRequest{Link: "g1"}); err != nil || it.Link != "g1" {
		t.Fatalf("named link = %+v %v", it, err)
	}
	it, err := rt.giveKey(GiveKeyRequest{Link: "a=2,b=1", Drop: true, Loc: geom.At("world", 0, 0, 0)})
	if err != nil || it.Count != 1 {
		t.Fatalf("give = %+v %v", it, err)
	}
	if _, drops, _ := rt.world.Drain(); len(drops) != 1 {
		t.Fatalf("drops = %v", drops)
	}
}

func TestRuntime_PlaceRejectsMaterialPastPalette(t *testing.T) {
	rt := newRuntime(t, "", tuning.Defaults(), nil)
	loc := geom.At("world", 0, 0, 0)
	for i := 0; ; i++ {
		m := "M" + strconv.Itoa(i)
		if !rt.world.CanStore(m) {
			break
		}
		rt.world.SetBlockMaterial(loc, m)
	}
	err := rt.place(PlaceRequest{Loc: loc.Up(), Material: "FRESH"})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("place past a full palette: %v", err)
	}
	if got := rt.world.BlockMaterial(loc.Up()); got != rt.world.Air() {
		t.Fatalf("block changed to %q", got)
	}
	if err := rt.place(PlaceRequest{Loc: loc.Up(), Material: "M0"}); err != nil {
		t.Fatalf("known material: %v", err)
	}
}

func TestRuntime_AutosaveAndRestart(t *testing.T) {
	dir := t.TempDir()
	tune := tuning.Defaults()
	tune.AutosaveEveryTicks = 3

	rt := newRuntime(t, dir, tune, nil)
	a := geom.At("world", 0, 64, 0)
	b := geom.At("world", 20, 64, 0)
	gone := geom.At("world", 40, 64, 0)
	for _, l := range []geom.Location{a, b, gone} {
		buildFrame(t, rt, l, geom.East)
		rt.interact(InteractRequest{Loc: l, Item: mustKey(t, rt, map[string]int{"k": 1}, 1)})
	}
	// bypass the engine so the saved blocks disagree with the registry
	rt.world.SetBlockMaterial(gone, "AIR")
	for i := 0; i < 3; i++ {
		rt.Step()
	}
	rt.Shutdown()

	doc, err := linkdoc.Read(filepath.Join(dir, "data.yml"))
	if err != nil {
		t.Fatalf("read doc: %v", err)
	}
	if got := doc.Subspaces["k=1"]; len(got) != 3 || got[0] != "world,0,64,0" {
		t.Fatalf("saved members = %v", got)
	}

	rt2 := New(Options{
		Tuning: tune,
		Worlds: testWorlds(),
		Gateway: linkdoc.New(linkdoc.Config{
			Path:      filepath.Join(dir, "data.yml"),
			BackupDir: filepath.Join(dir, "backups"),
		}, nil),
		WorldSnapshotPath: filepath.Join(dir, "world.snap.zst"),
	})
	rep, err := rt2.Boot()
	if err != nil {
		t.Fatalf("boot: %v", err)
	}
	if !rep.WorldRestored || rep.Load.Endpoints != 3 {
		t.Fatalf("boot report = %+v", rep)
	}
	if len(rep.Reconcile.Dropped) != 1 || rep.Reconcile.Dropped[0] != gone {
		t.Fatalf("reconcile should drop the broken endpoint: %+v", rep.Reconcile)
	}
	if rt2.Tick() != 3 {
		t.Fatalf("tick should resume from the block snapshot: %d", rt2.Tick())
	}
	if got := rt2.reg.Members("k=1"); len(got) != 2 || got[0] != a || got[1] != b {
		t.Fatalf("members after restart = %v", got)
	}
	if f, _ := rt2.reg.Direction(a); f != geom.East {
		t.Fatalf("direction after restart = %s", f)
	}
	rt2.Shutdown()
}

func TestRuntime_LoadWorldAdoptsParkedEndpoints(t *testing.T) {
	dir := t.TempDir()
	doc := linkdoc.NewDocument()
	doc.Subspaces["k=1"] = []string{"world,0,64,0", "end,0,64,0"}
	doc.Directions["end,0,64,0"] = "WEST"
	if _, err := linkdoc.Write(filepath.Join(dir, "data.yml"), doc); err != nil {
		t.Fatal(err)
	}
	rt := newRuntime(t, dir, tuning.Defaults(), nil)
	defer rt.Shutdown()
	if rt.reg.Len() != 1 || rt.gw.Parked() != 1 {
		t.Fatalf("len=%d parked=%d", rt.reg.Len(), rt.gw.Parked())
	}

	if _, err := rt.loadWorld("nowhere"); err == nil {
		t.Fatalf("unknown world should fail")
	}
	res, err := rt.loadWorld("end")
	if err != nil || res.Adopted != 1 {
		t.Fatalf("load end = %+v %v", res, err)
	}
	if f, _ := rt.reg.Direction(geom.At("end", 0, 64, 0)); f != geom.West {
		t.Fatalf("adopted direction = %s", f)
	}
	if res, _ := rt.loadWorld("end"); !res.AlreadyLoaded {
		t.Fatalf("second load should be a no-op")
	}
}

func TestRuntime_RunServesRequestsAndSavesOnExit(t *testing.T) {
	dir := t.TempDir()
	tune := tuning.Defaults()
	tune.TickRateHz = 200
	tune.AutosaveEveryTicks = 0
	rt := newRuntime(t, dir, tune, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- rt.Run(ctx) }()

	rctx, rcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer rcancel()
	a := geom.At("world", 1, 1, 1)
	for _, req := range []PlaceRequest{
		{Loc: a.Down(), Material: "OBSIDIAN"},
		{Loc: a.Up(), Material: "OBSIDIAN"},
		{Loc: a, Material: "ENDER_CHEST", Facing: geom.South, Oriented: true},
	} {
		if err := rt.Place(rctx, req); err != nil {
			t.Fatalf("place: %v", err)
		}
	}
	key, err := rt.GiveKey(rctx, GiveKeyRequest{Tags: map[string]int{"z": 9}})
	if err != nil {
		t.Fatalf("give key: %v", err)
	}
	res, err := rt.Interact(rctx, InteractRequest{Loc: a, Item: key})
	if err != nil || !res.OK {
		t.Fatalf("interact = %+v %v", res, err)
	}
	st, err := rt.Stats(rctx)
	if err != nil || st.Endpoints != 1 || len(st.Worlds) != 2 {
		t.Fatalf("stats = %+v %v", st, err)
	}
	next := tune
	next.BeamQuietTicks = 5
	if err := rt.Reload(rctx, next); err != nil {
		t.Fatalf("reload: %v", err)
	}
	bad := tune
	bad.TickRateHz = 0
	if err := rt.Reload(rctx, bad); err == nil {
		t.Fatalf("invalid tuning should be rejected")
	}

	cancel()
	select {
	case <-errc:
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop")
	}
	if _, err := rt.Stats(context.Background()); err != ErrStopped {
		t.Fatalf("stats after stop: got %v want ErrStopped", err)
	}

	doc, err := linkdoc.Read(filepath.Join(dir, "data.yml"))
	if err != nil {
		t.Fatal(err)
	}
	if got := doc.Subspaces["z=9"]; len(got) != 1 || doc.Directions["world,1,1,1"] != "SOUTH" {
		t.Fatalf("shutdown save = %+v", doc)
	}
}

func TestRuntime_SaveIsNotOverwrittenByEarlierAutosave(t *testing.T) {
	dir := t.TempDir()
	tune := tuning.Defaults()
	tune.TickRateHz = 500
	tune.AutosaveEveryTicks = 1
	rt := newRuntime(t, dir, tune, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- rt.Run(ctx) }()
	defer func() {
		cancel()
		<-errc
	}()

	rctx, rcancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer rcancel()
	for i := 0; i < 8; i++ {
		loc := geom.At("world", 10*i, 64, 0)
		for _, req := range []PlaceRequest{
			{Loc: loc.Down(), Material: "OBSIDIAN"},
			{Loc: loc.Up(), Material: "OBSIDIAN"},
			{Loc: loc, Material: "ENDER_CHEST", Facing: geom.North, Oriented: true},
		} {
			if err := rt.Place(rctx, req); err != nil {
				t.Fatalf("place: %v", err)
			}
		}
		key, err := rt.GiveKey(rctx, GiveKeyRequest{Tags: map[string]int{"s": 1}})
		if err != nil {
			t.Fatalf("give key: %v", err)
		}
		if res, err := rt.Interact(rctx, InteractRequest{Loc: loc, Item: key}); err != nil || !res.OK {
			t.Fatalf("interact = %+v %v", res, err)
		}
		res, err := rt.Save(rctx)
		if err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
		doc, err := linkdoc.Read(filepath.Join(dir, "data.yml"))
		if err != nil {
			t.Fatal(err)
		}
		if got := len(doc.Subspaces["s=1"]); got != i+1 {
			t.Fatalf("round %d: %d endpoints on disk after save, want %d", i, got, i+1)
		}
		st, err := rt.Stats(rctx)
		if err != nil || st.LastSaveTick < res.Tick {
			t.Fatalf("stats = %+v %v, save tick %d", st, err, res.Tick)
		}
	}
}

func TestRuntime_LastSaveTickOnlyCountsSuccess(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	tune := tuning.Defaults()
	tune.AutosaveEveryTicks = 2
	rt := New(Options{
		Tuning:  tune,
		Worlds:  testWorlds(),
		Gateway: linkdoc.New(linkdoc.Config{Path: filepath.Join(blocker, "data.yml")}, nil),
	})
	if _, err := rt.Boot(); err != nil {
		t.Fatalf("boot: %v", err)
	}
	// the parent of the document becomes a regular file, so writes fail
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		rt.Step()
	}
	rt.Shutdown()
	if st := rt.stats(); st.LastSaveTick != 0 {
		t.Fatalf("failed saves reported as tick %d", st.LastSaveTick)
	}

	good := newRuntime(t, t.TempDir(), tune, nil)
	for i := 0; i < 4; i++ {
		good.Step()
	}
	good.Shutdown()
	if st := good.stats(); st.LastSaveTick != 4 {
		t.Fatalf("last save tick = %d want 4", st.LastSaveTick)
	}
}

func TestRuntime_ReloadAppliesBackupRetention(t *testing.T) {
	dir := t.TempDir()
	tune := tuning.Defaults()
	tune.AutosaveEveryTicks = 0
	rt := newRuntime(t, dir, tune, nil)
	defer rt.Shutdown()

	next := tune
	next.BackupKeep = 1
	rt.reload(next)
	for i := 0; i < 3; i++ {
		if _, err := rt.gw.Save(rt.reg.Snapshot(), uint64(i)); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	left, err := snapshot.List(filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 {
		t.Fatalf("backups kept after reload: %d want 1", len(left))
	}
}
