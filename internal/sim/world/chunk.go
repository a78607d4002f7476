package world

import "teleportals.ai/internal/sim/geom"

const (
	chunkSize   = 16
	chunkVolume = chunkSize * chunkSize * chunkSize
)

// ChunkKey addresses a 16x16x16 cube of blocks in one world.
type ChunkKey struct {
	World string
	CX    int
	CY    int
	CZ    int
}

// Chunk stores palette ids and facings for its blocks. A facing byte of 0 means
// "not orientable"; 1..4 encode North..West.
type Chunk struct {
	Key     ChunkKey
	Blocks  [chunkVolume]uint16
	Facings [chunkVolume]uint8

	nonAir int
}

func (c *Chunk) index(lx, ly, lz int) int {
	// x fastest, then z, then y
	return lx + lz*chunkSize + ly*chunkSize*chunkSize
}

func (c *Chunk) get(lx, ly, lz int) (uint16, uint8) {
	i := c.index(lx, ly, lz)
	return c.Blocks[i], c.Facings[i]
}

func (c *Chunk) set(lx, ly, lz int, b uint16, facing uint8) {
	i := c.index(lx, ly, lz)
	switch {
	case c.Blocks[i] == 0 && b != 0:
		c.nonAir++
	case c.Blocks[i] != 0 && b == 0:
		c.nonAir--
	}
	c.Blocks[i] = b
	c.Facings[i] = facing
}

func (c *Chunk) empty() bool { return c.nonAir == 0 }

func chunkCoords(loc geom.Location) (ChunkKey, int, int, int) {
	k := ChunkKey{
		World: loc.World,
		CX:    floorDiv(loc.X, chunkSize),
		CY:    floorDiv(loc.Y, chunkSize),
		CZ:    floorDiv(loc.Z, chunkSize),
	}
	return k, mod(loc.X, chunkSize), mod(loc.Y, chunkSize), mod(loc.Z, chunkSize)
}

func floorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func encodeFacing(f geom.Facing) uint8 { return uint8(f) + 1 }

func decodeFacing(b uint8) (geom.Facing, bool) {
	if b == 0 || b > 4 {
		return geom.North, false
	}
	return geom.Facing(b - 1), true
}
