package world

import (
	"strconv"
	"testing"

	"teleportals.ai/internal/sim/geom"
	"teleportals.ai/internal/sim/keyobj"
	"teleportals.ai/internal/sim/portal"
)

func TestStore_BlocksAndFacings(t *testing.T) {
	w := New("AIR")
	w.LoadWorld("world")
	loc := geom.At("world", -1, -17, 33)

	if got := w.BlockMaterial(loc); got != "AIR" {
		t.Fatalf("unset block = %q", got)
	}
	w.PlaceBlock(loc, "ENDER_CHEST", geom.West)
	if got := w.BlockMaterial(loc); got != "ENDER_CHEST" {
		t.Fatalf("block = %q", got)
	}
	if f, ok := w.Facing(loc); !ok || f != geom.West {
		t.Fatalf("facing = %s %v", f, ok)
	}
	w.SetBlockMaterial(loc, "END_GATEWAY")
	if _, ok := w.Facing(loc); ok {
		t.Fatalf("SetBlockMaterial should clear the facing")
	}
	w.SetFacing(loc, geom.South)
	if f, _ := w.Facing(loc); f != geom.South {
		t.Fatalf("facing after SetFacing = %s", f)
	}
	w.SetBlockMaterial(loc, "AIR")
	if w.ChunkCount() != 0 {
		t.Fatalf("chunk should be released once empty, count=%d", w.ChunkCount())
	}
}

func TestStore_UnloadedWorldIsInvisible(t *testing.T) {
	w := New("")
	w.LoadWorld("a")
	loc := geom.At("a", 0, 0, 0)
	w.SetBlockMaterial(loc, "OBSIDIAN")
	w.UnloadWorld("a")
	if got := w.BlockMaterial(loc); got != "" {
		t.Fatalf("unloaded world block = %q", got)
	}
	w.SetBlockMaterial(loc, "STONE")
	w.LoadWorld("a")
	if got := w.BlockMaterial(loc); got != "OBSIDIAN" {
		t.Fatalf("blocks should survive unload, got %q", got)
	}
}

func TestStore_ActorsEffectsDrops(t *testing.T) {
	w := New("AIR")
	w.LoadWorld("world")
	w.LoadWorld("nether")
	w.SpawnActor(Actor{ID: "p1", World: "world"})
	w.Advance(5)

	if w.RelocateActor("ghost", portal.Placement{World: "world"}) {
		t.Fatalf("unknown actor should not move")
	}
	if w.RelocateActor("p1", portal.Placement{World: "void"}) {
		t.Fatalf("unloaded destination should refuse")
	}
	to := portal.Placement{World: "nether", Pos: geom.Vec3{X: 1.5, Y: 2, Z: 3.5}, Yaw: 90, Pitch: -10}
	if !w.RelocateActor("p1", to) {
		t.Fatalf("relocate failed")
	}
	a, _ := w.Actor("p1")
	if a.World != "nether" || a.Pos != to.Pos || a.Yaw != 90 || a.Pitch != -10 {
		t.Fatalf("actor = %+v", a)
	}

	loc := geom.At("world", 1, 1, 1)
	w.SpawnEffect(loc, portal.EffectUsed)
	w.DropObject(loc, keyobj.Item{Kind: "END_CRYSTAL", Tags: map[string]int{"a": 1}})
	effects, drops, moves := w.Drain()
	if len(effects) != 1 || effects[0].Tick != 5 || len(drops) != 1 || len(moves) != 1 {
		t.Fatalf("drain: %v %v %v", effects, drops, moves)
	}
	if e, d, m := w.Drain(); len(e)+len(d)+len(m) != 0 {
		t.Fatalf("second drain should be empty")
	}
}

func TestStore_QuietBeamExpires(t *testing.T) {
	w := New("AIR")
	loc := geom.At("world", 0, 0, 0)
	w.Advance(10)
	w.QuietBeam(loc, 5)
	if !w.BeamQuiet(loc) {
		t.Fatalf("beam should be quiet")
	}
	w.Advance(15)
	if w.BeamQuiet(loc) {
		t.Fatalf("beam should be back at tick 15")
	}
}

func TestStore_SnapshotRoundTrip(t *testing.T) {
	w := New("AIR")
	w.LoadWorld("world")
	w.LoadWorld("end")
	a := geom.At("world", -20, 70, 5)
	b := geom.At("end", 3, -1, 100)
	w.PlaceBlock(a, "ENDER_CHEST", geom.East)
	w.SetBlockMaterial(a.Up(), "OBSIDIAN")
	w.SetBlockMaterial(b, "END_GATEWAY")
	w.UnloadWorld("end")

	snap := w.ExportSnapshot()

	w2 := New("AIR")
	// a different palette order must not matter
	w2.LoadWorld("world")
	w2.SetBlockMaterial(geom.At("world", 0, 0, 0), "STONE")
	if err := w2.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	if got := w2.BlockMaterial(geom.At("world", 0, 0, 0)); got != "AIR" {
		t.Fatalf("import should replace existing blocks, got %q", got)
	}
	if got := w2.BlockMaterial(a); got != "ENDER_CHEST" {
		t.Fatalf("a = %q", got)
	}
	if f, ok := w2.Facing(a); !ok || f != geom.East {
		t.Fatalf("a facing = %s %v", f, ok)
	}
	if got := w2.BlockMaterial(a.Up()); got != "OBSIDIAN" {
		t.Fatalf("a.up = %q", got)
	}
	w2.LoadWorld("end")
	if got := w2.BlockMaterial(b); got != "END_GATEWAY" {
		t.Fatalf("unloaded world blocks should be exported, got %q", got)
	}
}

func TestStore_ImportRejectsShortChunk(t *testing.T) {
	w := New("AIR")
	w.LoadWorld("world")
	w.SetBlockMaterial(geom.At("world", 1, 1, 1), "STONE")
	snap := w.ExportSnapshot()
	snap.Chunks[0].Blocks = snap.Chunks[0].Blocks[:2]
	if err := New("AIR").ImportSnapshot(snap); err == nil {
		t.Fatalf("expected error for truncated chunk")
	}
}

func TestStore_FullPaletteRejectsNewMaterials(t *testing.T) {
	w := New("AIR")
	w.LoadWorld("world")
	loc := geom.At("world", 3, 3, 3)
	for i := 1; i < MaxMaterials; i++ {
		w.SetBlockMaterial(loc, "M"+strconv.Itoa(i))
	}
	if w.CanStore("FRESH") || !w.CanStore("M7") || !w.CanStore("AIR") {
		t.Fatalf("CanStore disagrees with a full palette")
	}
	w.SetBlockMaterial(loc, "STONE")
	if got := w.BlockMaterial(loc); got != "M65535" {
		t.Fatalf("block = %q, a material past the palette must not alias", got)
	}
	w.SetBlockMaterial(loc, "M1")
	if got := w.BlockMaterial(loc); got != "M1" {
		t.Fatalf("known material after fill = %q", got)
	}

	// a restored snapshot rebuilds the palette from its own materials
	if err := w.ImportSnapshot(New("AIR").ExportSnapshot()); err != nil {
		t.Fatalf("import: %v", err)
	}
	if !w.CanStore("FRESH") {
		t.Fatalf("import should drop materials no chunk uses")
	}
}
