package geom

import (
	"math"
	"strings"
)

// Facing is one of the four horizontal cardinal directions. The ordinal order
// (North, East, South, West) is significant: rotations are ordinal arithmetic
// modulo 4.
type Facing uint8

const (
	North Facing = iota
	East
	South
	West
)

var facingNames = [4]string{"NORTH", "EAST", "SOUTH", "WEST"}

func (f Facing) Valid() bool { return f <= West }

func (f Facing) Ordinal() int { return int(f) }

func (f Facing) String() string {
	if !f.Valid() {
		return "UNKNOWN"
	}
	return facingNames[f]
}

// Rotate turns f clockwise by n quarter turns (n may be negative).
func (f Facing) Rotate(n int) Facing {
	return FacingFromOrdinal(int(f) + n)
}

func (f Facing) Opposite() Facing { return f.Rotate(2) }

// Unit returns the horizontal unit step for f. North is -Z, East is +X.
func (f Facing) Unit() (dx, dz int) {
	switch f {
	case North:
		return 0, -1
	case East:
		return 1, 0
	case South:
		return 0, 1
	case West:
		return -1, 0
	}
	return 0, 0
}

// FacingFromOrdinal reduces any integer into 0..3 (always non-negative).
func FacingFromOrdinal(n int) Facing {
	m := n % 4
	if m < 0 {
		m += 4
	}
	return Facing(m)
}

func ParseFacing(s string) (Facing, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, n := range facingNames {
		if n == s {
			return Facing(i), true
		}
	}
	return North, false
}

// FacingToYaw maps a facing to its yaw in degrees. North is yaw 0 and yaw grows
// clockwise, so East is 90, South 180 and West 270. Every yaw comparison in the
// repo goes through this function.
func FacingToYaw(f Facing) float64 {
	return float64(FacingFromOrdinal(int(f)).Ordinal()) * 90
}

// YawToFacing rounds yaw to the nearest cardinal direction. Non-finite input
// maps to North.
func YawToFacing(yaw float64) Facing {
	if math.IsNaN(yaw) || math.IsInf(yaw, 0) {
		return North
	}
	y := NormalizeYaw(yaw)
	return FacingFromOrdinal(int(math.Floor(y/90 + 0.5)))
}

// NormalizeYaw folds yaw into [0, 360).
func NormalizeYaw(yaw float64) float64 {
	y := math.Mod(yaw, 360)
	if y < 0 {
		y += 360
	}
	return y
}

// Face is the side of a block an entrant touched. Unlike Facing it includes the
// two vertical faces.
type Face uint8

const (
	FaceNorth Face = iota
	FaceEast
	FaceSouth
	FaceWest
	FaceUp
	FaceDown
)

var faceNames = [6]string{"NORTH", "EAST", "SOUTH", "WEST", "UP", "DOWN"}

func (f Face) String() string {
	if int(f) >= len(faceNames) {
		return "UNKNOWN"
	}
	return faceNames[f]
}

// Horizontal folds the face onto a cardinal facing. Vertical faces fold to North.
func (f Face) Horizontal() Facing {
	if f <= FaceWest {
		return Facing(f)
	}
	return North
}

func ParseFace(s string) (Face, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, n := range faceNames {
		if n == s {
			return Face(i), true
		}
	}
	return FaceNorth, false
}
