// Package world is an in-memory voxel world that hosts endpoints: chunked
// block storage with facings, loaded-world tracking, actors, dropped items and
// a pending effect queue. The runtime drains effects and drops every tick.
package world

import (
	"sort"

	"teleportals.ai/internal/sim/geom"
	"teleportals.ai/internal/sim/keyobj"
	"teleportals.ai/internal/sim/portal"
)

type Effect struct {
	Tick uint64
	Loc  geom.Location
	Kind portal.EffectKind
}

type Drop struct {
	Tick uint64
	Loc  geom.Location
	Item keyobj.Item
}

type Actor struct {
	ID    string
	World string
	Pos   geom.Vec3
	Yaw   float64
	Pitch float64
}

// Move records one actor relocation, for presentation.
type Move struct {
	Tick  uint64
	Actor Actor
}

type World struct {
	air string

	palette []string
	index   map[string]uint16

	loaded map[string]bool
	chunks map[ChunkKey]*Chunk
	actors map[string]*Actor
	quiet  map[geom.Location]uint64

	tick    uint64
	effects []Effect
	drops   []Drop
	moves   []Move
}

// New creates an empty store. air is the material reported for unset blocks.
func New(air string) *World {
	if air == "" {
		air = "AIR"
	}
	return &World{
		air:     air,
		palette: []string{air},
		index:   map[string]uint16{air: 0},
		loaded:  map[string]bool{},
		chunks:  map[ChunkKey]*Chunk{},
		actors:  map[string]*Actor{},
		quiet:   map[geom.Location]uint64{},
	}
}

var _ portal.World = (*World)(nil)

func (w *World) Air() string { return w.air }

func (w *World) LoadWorld(id string) bool {
	if id == "" || w.loaded[id] {
		return false
	}
	w.loaded[id] = true
	return true
}

// UnloadWorld hides a world. Its blocks are kept and reappear on reload.
func (w *World) UnloadWorld(id string) bool {
	if !w.loaded[id] {
		return false
	}
	delete(w.loaded, id)
	return true
}

func (w *World) HasWorld(id string) bool { return w.loaded[id] }

func (w *World) Worlds() []string {
	out := make([]string, 0, len(w.loaded))
	for id := range w.loaded {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MaxMaterials is the palette capacity: block ids are 16 bits wide.
const MaxMaterials = 1 << 16

func (w *World) paletteID(material string) (uint16, bool) {
	if id, ok := w.index[material]; ok {
		return id, true
	}
	if len(w.palette) >= MaxMaterials {
		return 0, false
	}
	id := uint16(len(w.palette))
	w.palette = append(w.palette, material)
	w.index[material] = id
	return id, true
}

// CanStore reports whether material is known or still fits in the palette.
func (w *World) CanStore(material string) bool {
	if _, ok := w.index[material]; ok || material == "" {
		return true
	}
	return len(w.palette) < MaxMaterials
}

// BlockMaterial returns the material at loc, "" when the world is not loaded.
func (w *World) BlockMaterial(loc geom.Location) string {
	if !w.loaded[loc.World] {
		return ""
	}
	k, lx, ly, lz := chunkCoords(loc)
	ch := w.chunks[k]
	if ch == nil {
		return w.air
	}
	b, _ := ch.get(lx, ly, lz)
	return w.palette[b]
}

// SetBlockMaterial replaces the block at loc and clears its facing. A new
// material that no longer fits in the palette leaves the block unchanged.
func (w *World) SetBlockMaterial(loc geom.Location, material string) {
	w.setBlock(loc, material, 0)
}

// PlaceBlock sets a block with a facing, as a player placing an orientable block would.
func (w *World) PlaceBlock(loc geom.Location, material string, f geom.Facing) {
	w.setBlock(loc, material, encodeFacing(f))
}

func (w *World) setBlock(loc geom.Location, material string, facing uint8) {
	if !w.loaded[loc.World] {
		return
	}
	if material == "" {
		material = w.air
	}
	b, ok := w.paletteID(material)
	if !ok {
		return
	}
	if b == 0 {
		facing = 0
	}
	k, lx, ly, lz := chunkCoords(loc)
	ch := w.chunks[k]
	if ch == nil {
		if b == 0 {
			return
		}
		ch = &Chunk{Key: k}
		w.chunks[k] = ch
	}
	ch.set(lx, ly, lz, b, facing)
	if ch.empty() {
		delete(w.chunks, k)
	}
}

func (w *World) Facing(loc geom.Location) (geom.Facing, bool) {
	if !w.loaded[loc.World] {
		return geom.North, false
	}
	k, lx, ly, lz := chunkCoords(loc)
	ch := w.chunks[k]
	if ch == nil {
		return geom.North, false
	}
	_, f := ch.get(lx, ly, lz)
	return decodeFacing(f)
}

// SetFacing orients the block at loc. Air cannot be oriented.
func (w *World) SetFacing(loc geom.Location, f geom.Facing) {
	if !w.loaded[loc.World] {
		return
	}
	k, lx, ly, lz := chunkCoords(loc)
	ch := w.chunks[k]
	if ch == nil {
		return
	}
	b, _ := ch.get(lx, ly, lz)
	if b == 0 {
		return
	}
	ch.set(lx, ly, lz, b, encodeFacing(f))
}

// ChunkCount is the number of non-empty chunks across all worlds.
func (w *World) ChunkCount() int { return len(w.chunks) }
