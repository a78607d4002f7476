package portal

import (
	"teleportals.ai/internal/sim/frame"
	"teleportals.ai/internal/sim/geom"
	"teleportals.ai/internal/sim/keyobj"
)

// World is the host surface the engine drives. Every call is a plain side
// effect; none of them may call back into the engine.
type World interface {
	frame.BlockReader
	geom.WorldLookup

	SetBlockMaterial(loc geom.Location, material string)
	Facing(loc geom.Location) (geom.Facing, bool)
	SetFacing(loc geom.Location, f geom.Facing)
	SpawnEffect(loc geom.Location, kind EffectKind)
	RelocateActor(actorID string, to Placement) bool
	DropObject(loc geom.Location, it keyobj.Item)
	// QuietBeam asks the host to suppress the anchor's ambient effect for ticks.
	QuietBeam(loc geom.Location, ticks int)
}

type EffectKind string

const (
	EffectActivated   EffectKind = "ACTIVATED"
	EffectDeactivated EffectKind = "DEACTIVATED"
	EffectUsed        EffectKind = "USED"
)

// Outcome explains why an operation did or did not change anything.
type Outcome string

const (
	OK             Outcome = "OK"
	NoFrame        Outcome = "NO_FRAME"
	NotKeyObject   Outcome = "NOT_KEY_OBJECT"
	UnlinkedKey    Outcome = "UNLINKED_KEY"
	AlreadyActive  Outcome = "ALREADY_ACTIVE"
	AlreadyMember  Outcome = "ALREADY_MEMBER"
	NotMember      Outcome = "NOT_MEMBER"
	NotActive      Outcome = "NOT_ACTIVE"
	NoExit         Outcome = "NO_EXIT"
	ActorNotFound  Outcome = "ACTOR_NOT_FOUND"
	WorldNotLoaded Outcome = "WORLD_NOT_LOADED"
)

type Result struct {
	OK      bool
	Outcome Outcome
	Link    string
	Facing  geom.Facing
}

// Entrant is the actor stepping into an endpoint, with its current look angles.
type Entrant struct {
	ID    string
	Yaw   float64
	Pitch float64
}

type TeleportResult struct {
	Moved     bool
	Outcome   Outcome
	Link      string
	Exit      geom.Location
	Placement Placement
}

type EventKind string

const (
	EventActivate       EventKind = "ACTIVATE"
	EventDeactivate     EventKind = "DEACTIVATE"
	EventTeleport       EventKind = "TELEPORT"
	EventDropStale      EventKind = "DROP_STALE"
	EventPruneDirection EventKind = "PRUNE_DIRECTION"
)

// Event is the engine's record of one registry-affecting transition.
type Event struct {
	Kind   EventKind
	Loc    geom.Location
	Link   string
	Facing geom.Facing
	Actor  string
	Exit   geom.Location
	Reason string
}

// EventSink receives engine events after the transition is complete.
type EventSink interface {
	PortalEvent(ev Event)
}

type Config struct {
	Materials      frame.Materials
	Codec          keyobj.Codec
	BeamQuietTicks int
	DefaultFacing  geom.Facing
}

func DefaultConfig() Config {
	return Config{
		Materials:      frame.DefaultMaterials(),
		Codec:          keyobj.DefaultCodec(),
		BeamQuietTicks: 250,
		DefaultFacing:  geom.North,
	}
}
