package world

import (
	"teleportals.ai/internal/sim/geom"
	"teleportals.ai/internal/sim/keyobj"
	"teleportals.ai/internal/sim/portal"
)

// SpawnActor places or replaces an actor.
func (w *World) SpawnActor(a Actor) {
	cp := a
	w.actors[a.ID] = &cp
}

func (w *World) RemoveActor(id string) bool {
	if _, ok := w.actors[id]; !ok {
		return false
	}
	delete(w.actors, id)
	return true
}

func (w *World) Actor(id string) (Actor, bool) {
	a, ok := w.actors[id]
	if !ok {
		return Actor{}, false
	}
	return *a, true
}

// RelocateActor moves a known actor; the destination world must be loaded.
func (w *World) RelocateActor(actorID string, to portal.Placement) bool {
	a, ok := w.actors[actorID]
	if !ok || !w.loaded[to.World] {
		return false
	}
	a.World = to.World
	a.Pos = to.Pos
	a.Yaw = to.Yaw
	a.Pitch = to.Pitch
	w.moves = append(w.moves, Move{Tick: w.tick, Actor: *a})
	return true
}

func (w *World) SpawnEffect(loc geom.Location, kind portal.EffectKind) {
	w.effects = append(w.effects, Effect{Tick: w.tick, Loc: loc, Kind: kind})
}

func (w *World) DropObject(loc geom.Location, it keyobj.Item) {
	w.drops = append(w.drops, Drop{Tick: w.tick, Loc: loc, Item: it.Clone()})
}

// QuietBeam suppresses the ambient beam at loc until tick+ticks.
func (w *World) QuietBeam(loc geom.Location, ticks int) {
	if ticks <= 0 {
		return
	}
	w.quiet[loc] = w.tick + uint64(ticks)
}

func (w *World) BeamQuiet(loc geom.Location) bool {
	until, ok := w.quiet[loc]
	return ok && w.tick < until
}

// Advance moves the world clock and expires finished beam suppressions.
func (w *World) Advance(tick uint64) {
	w.tick = tick
	for loc, until := range w.quiet {
		if tick >= until {
			delete(w.quiet, loc)
		}
	}
}

func (w *World) Tick() uint64 { return w.tick }

// Drain hands over and clears the effects, drops and moves queued since the last call.
func (w *World) Drain() ([]Effect, []Drop, []Move) {
	e, d, m := w.effects, w.drops, w.moves
	w.effects, w.drops, w.moves = nil, nil, nil
	return e, d, m
}

func (w *World) ActorCount() int { return len(w.actors) }
