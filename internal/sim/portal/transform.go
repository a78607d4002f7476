package portal

import "teleportals.ai/internal/sim/geom"

// Placement is where and how an entrant emerges from the exit endpoint.
type Placement struct {
	World  string
	Pos    geom.Vec3
	Yaw    float64
	Pitch  float64
	Emerge geom.Facing
}

// Transform carries an entrant through a pair of endpoints.
//
// The face the entrant touched is taken relative to the entry endpoint's facing
// and re-applied relative to the exit's facing, which picks the side of the exit
// to step out of. Yaw keeps its angle relative to the endpoint facing and gains
// a half turn, so walking into one endpoint means walking away from the other.
// Pitch is unchanged.
func Transform(in, out geom.Facing, exit geom.Location, approach geom.Face, yaw, pitch float64) Placement {
	offset := approach.Horizontal().Ordinal() - in.Ordinal()
	emerge := geom.FacingFromOrdinal(out.Ordinal() + offset)

	dx, dz := emerge.Unit()
	pos := exit.Origin().Add(0.5+float64(dx), -0.5, 0.5+float64(dz))

	return Placement{
		World:  exit.World,
		Pos:    pos,
		Yaw:    geom.FacingToYaw(out) - 180 - (geom.FacingToYaw(in) - yaw),
		Pitch:  pitch,
		Emerge: emerge,
	}
}
