package world

import (
	"fmt"
	"sort"
	"time"

	"teleportals.ai/internal/persistence/snapshot"
	"teleportals.ai/internal/sim/encoding"
)

// ExportSnapshot copies every chunk, including those of unloaded worlds.
func (w *World) ExportSnapshot() snapshot.WorldV1 {
	keys := make([]ChunkKey, 0, len(w.chunks))
	for k := range w.chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.World != b.World {
			return a.World < b.World
		}
		if a.CX != b.CX {
			return a.CX < b.CX
		}
		if a.CY != b.CY {
			return a.CY < b.CY
		}
		return a.CZ < b.CZ
	})

	out := snapshot.WorldV1{
		Header:  snapshot.WorldHeader{Version: snapshot.Version, Tick: w.tick, SavedAt: time.Now().Unix()},
		Palette: append([]string(nil), w.palette...),
		Chunks:  make([]snapshot.ChunkV1, 0, len(keys)),
	}
	for _, k := range keys {
		ch := w.chunks[k]
		out.Chunks = append(out.Chunks, snapshot.ChunkV1{
			World:   k.World,
			CX:      k.CX,
			CY:      k.CY,
			CZ:      k.CZ,
			Blocks:  encoding.EncodeRLE(ch.Blocks[:]),
			Facings: encoding.EncodeRLE(ch.Facings[:]),
		})
	}
	return out
}

// ImportSnapshot replaces all block content. Loaded worlds and actors are kept.
func (w *World) ImportSnapshot(s snapshot.WorldV1) error {
	if len(s.Palette) == 0 {
		return fmt.Errorf("world snapshot: empty palette")
	}
	if len(s.Palette) > MaxMaterials {
		return fmt.Errorf("world snapshot: palette of %d materials", len(s.Palette))
	}
	// every chunk is replaced, so the palette is rebuilt with air at id 0
	palette := []string{w.air}
	index := map[string]uint16{w.air: 0}
	remap := make([]uint16, len(s.Palette))
	for i, m := range s.Palette {
		if i == 0 {
			continue
		}
		id, ok := index[m]
		if !ok {
			id = uint16(len(palette))
			palette = append(palette, m)
			index[m] = id
		}
		remap[i] = id
	}

	chunks := make(map[ChunkKey]*Chunk, len(s.Chunks))
	for _, c := range s.Chunks {
		blocks, err := encoding.DecodeRLE[uint16](c.Blocks, chunkVolume)
		if err != nil {
			return fmt.Errorf("world snapshot: chunk %s/%d,%d,%d blocks: %w", c.World, c.CX, c.CY, c.CZ, err)
		}
		facings, err := encoding.DecodeRLE[uint8](c.Facings, chunkVolume)
		if err != nil {
			return fmt.Errorf("world snapshot: chunk %s/%d,%d,%d facings: %w", c.World, c.CX, c.CY, c.CZ, err)
		}
		k := ChunkKey{World: c.World, CX: c.CX, CY: c.CY, CZ: c.CZ}
		ch := &Chunk{Key: k}
		for i, b := range blocks {
			if int(b) >= len(remap) {
				return fmt.Errorf("world snapshot: block id %d outside palette", b)
			}
			ch.Blocks[i] = remap[b]
			if ch.Blocks[i] != 0 {
				ch.nonAir++
				ch.Facings[i] = facings[i]
			}
		}
		if !ch.empty() {
			chunks[k] = ch
		}
	}
	w.chunks = chunks
	w.palette = palette
	w.index = index
	return nil
}
