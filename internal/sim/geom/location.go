package geom

import (
	"strconv"
	"strings"
)

// Location is a block coordinate inside a named world. Locations compare by
// value and are safe to use as map keys.
type Location struct {
	World string
	X     int
	Y     int
	Z     int
}

func At(world string, x, y, z int) Location {
	return Location{World: world, X: x, Y: y, Z: z}
}

func (l Location) Add(dx, dy, dz int) Location {
	return Location{World: l.World, X: l.X + dx, Y: l.Y + dy, Z: l.Z + dz}
}

func (l Location) Up() Location   { return l.Add(0, 1, 0) }
func (l Location) Down() Location { return l.Add(0, -1, 0) }

func (l Location) IsZero() bool { return l == Location{} }

func (l Location) String() string { return LocationKey(l) }

// Vec3 is a continuous position, used for actor placement.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Origin returns the minimum corner of the block at l.
func (l Location) Origin() Vec3 {
	return Vec3{X: float64(l.X), Y: float64(l.Y), Z: float64(l.Z)}
}

func (v Vec3) Add(dx, dy, dz float64) Vec3 {
	return Vec3{X: v.X + dx, Y: v.Y + dy, Z: v.Z + dz}
}

// WorldLookup reports whether a world is currently loaded.
type WorldLookup interface {
	HasWorld(id string) bool
}

// LocationKey encodes l as "<world>,<x>,<y>,<z>".
func LocationKey(l Location) string {
	var b strings.Builder
	b.Grow(len(l.World) + 24)
	b.WriteString(l.World)
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(l.X))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(l.Y))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(l.Z))
	return b.String()
}

// ParseLocationKey decodes a LocationKey string. The three coordinates are taken
// from the right so world names containing commas still round-trip.
func ParseLocationKey(s string) (Location, bool) {
	parts := strings.Split(s, ",")
	if len(parts) < 4 {
		return Location{}, false
	}
	n := len(parts)
	world := strings.Join(parts[:n-3], ",")
	if strings.TrimSpace(world) == "" {
		return Location{}, false
	}
	var xyz [3]int
	for i := 0; i < 3; i++ {
		v, err := strconv.Atoi(strings.TrimSpace(parts[n-3+i]))
		if err != nil {
			return Location{}, false
		}
		xyz[i] = v
	}
	return Location{World: world, X: xyz[0], Y: xyz[1], Z: xyz[2]}, true
}

// ResolveLocationKey is ParseLocationKey plus a check that the world is loaded.
func ResolveLocationKey(s string, worlds WorldLookup) (Location, bool) {
	loc, ok := ParseLocationKey(s)
	if !ok {
		return Location{}, false
	}
	if worlds == nil || !worlds.HasWorld(loc.World) {
		return Location{}, false
	}
	return loc, true
}
