// Package portal is the endpoint state machine: it validates frames, moves
// endpoints in and out of the link registry, and relocates entrants.
//
// Each operation checks all of its failure conditions first, then updates the
// registry, and only then calls into the world. A collaborator therefore never
// observes a half-updated registry.
package portal

import (
	"io"
	"log"

	"teleportals.ai/internal/sim/geom"
	"teleportals.ai/internal/sim/keyobj"
	"teleportals.ai/internal/sim/linkreg"
)

type Engine struct {
	world World
	reg   *linkreg.Registry
	cfg   Config
	sink  EventSink
	log   *log.Logger
}

func NewEngine(w World, reg *linkreg.Registry, cfg Config, sink EventSink, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Engine{world: w, reg: reg, cfg: cfg, sink: sink, log: logger}
}

func (e *Engine) Config() Config { return e.cfg }

// SetConfig swaps tuning between operations. The registry is untouched.
func (e *Engine) SetConfig(cfg Config) { e.cfg = cfg }

func (e *Engine) Registry() *linkreg.Registry { return e.reg }

func (e *Engine) emit(ev Event) {
	if e.sink != nil {
		e.sink.PortalEvent(ev)
	}
}

// Activate links the frame anchored at loc into the subspace named by the key
// object. An anchor that is active but unregistered is treated as passive; a
// registered anchor that is no longer active is dropped first.
func (e *Engine) Activate(loc geom.Location, key *keyobj.Item) Result {
	m := e.cfg.Materials
	if !e.world.HasWorld(loc.World) {
		return Result{Outcome: WorldNotLoaded}
	}
	if !m.IsValidFrame(e.world, loc) {
		return Result{Outcome: NoFrame}
	}
	if !e.cfg.Codec.IsKeyObject(key) {
		return Result{Outcome: NotKeyObject}
	}
	link := e.cfg.Codec.ComputeLinkKey(key)
	if link == "" {
		return Result{Outcome: UnlinkedKey}
	}

	active := m.IsActiveAnchor(e.world, loc)
	prev, registered := e.reg.GroupOf(loc)
	if active && registered {
		return Result{Outcome: AlreadyActive, Link: prev}
	}
	if registered {
		e.dropStale(loc, prev, "anchor not active on activate")
	}

	facing := e.currentFacing(loc)
	if !e.reg.Add(link, loc, facing) {
		return Result{Outcome: AlreadyMember}
	}

	e.world.SetBlockMaterial(loc, m.ActiveAnchor)
	e.world.SpawnEffect(loc, EffectActivated)
	e.emit(Event{Kind: EventActivate, Loc: loc, Link: link, Facing: facing})
	return Result{OK: true, Outcome: OK, Link: link, Facing: facing}
}

// Deactivate unlinks loc, reverts the anchor to its passive form facing the way
// it did before activation, and drops a key object carrying the link. It is a
// no-op for locations that are not registered.
func (e *Engine) Deactivate(loc geom.Location) Result {
	link, ok := e.reg.Remove(loc)
	if !ok {
		return Result{Outcome: NotMember}
	}
	facing, ok := e.reg.Direction(loc)
	if !ok {
		facing = e.cfg.DefaultFacing
	}

	e.world.SetBlockMaterial(loc, e.cfg.Materials.PassiveAnchor)
	e.world.SetFacing(loc, facing)
	e.world.SpawnEffect(loc, EffectDeactivated)
	if item, err := e.cfg.Codec.Mint(link, 1); err != nil {
		e.log.Printf("deactivate %s: cannot mint key for link %q: %v", loc, link, err)
	} else {
		e.world.DropObject(loc, item)
	}
	e.emit(Event{Kind: EventDeactivate, Loc: loc, Link: link, Facing: facing})
	return Result{OK: true, Outcome: OK, Link: link, Facing: facing}
}

// Teleport moves an entrant that touched the active anchor at loc through the
// given face. With no other endpoint in the subspace nothing happens.
func (e *Engine) Teleport(who Entrant, loc geom.Location, approach geom.Face) TeleportResult {
	m := e.cfg.Materials
	link, registered := e.reg.GroupOf(loc)
	if !m.IsActiveAnchor(e.world, loc) {
		if registered && e.world.HasWorld(loc.World) {
			e.dropStale(loc, link, "anchor not active on use")
		}
		return TeleportResult{Outcome: NotActive}
	}
	if !registered {
		return TeleportResult{Outcome: NoExit}
	}
	exit, ok := e.reg.ExitFor(loc)
	if !ok {
		return TeleportResult{Outcome: NoExit, Link: link}
	}
	if !e.world.HasWorld(exit.World) {
		return TeleportResult{Outcome: WorldNotLoaded, Link: link, Exit: exit}
	}
	if !m.IsActiveAnchor(e.world, exit) {
		e.dropStale(exit, link, "exit anchor not active")
		return TeleportResult{Outcome: NoExit, Link: link}
	}

	in := e.facingOf(loc)
	out := e.facingOf(exit)
	p := Transform(in, out, exit, approach, who.Yaw, who.Pitch)

	if !e.world.RelocateActor(who.ID, p) {
		return TeleportResult{Outcome: ActorNotFound, Link: link, Exit: exit, Placement: p}
	}
	e.world.SpawnEffect(loc, EffectUsed)
	if e.cfg.BeamQuietTicks > 0 {
		e.world.QuietBeam(loc, e.cfg.BeamQuietTicks)
	}
	e.emit(Event{Kind: EventTeleport, Loc: loc, Link: link, Actor: who.ID, Exit: exit, Facing: p.Emerge})
	return TeleportResult{Moved: true, Outcome: OK, Link: link, Exit: exit, Placement: p}
}

type ReconcileReport struct {
	Dropped []geom.Location
	Pruned  int
}

// Reconcile drops registry members in world (every loaded world when empty)
// whose anchor is no longer active, and forgets direction entries for former
// endpoints whose frame is gone. Locations in unloaded worlds are left alone.
func (e *Engine) Reconcile(world string) ReconcileReport {
	var rep ReconcileReport
	m := e.cfg.Materials
	for _, loc := range e.reg.Locations(world) {
		if !e.world.HasWorld(loc.World) {
			continue
		}
		if m.IsActiveAnchor(e.world, loc) {
			continue
		}
		link, _ := e.reg.GroupOf(loc)
		e.dropStale(loc, link, "reconcile")
		rep.Dropped = append(rep.Dropped, loc)
	}
	for _, loc := range e.reg.DirectionLocations(world) {
		if !e.world.HasWorld(loc.World) {
			continue
		}
		if _, member := e.reg.GroupOf(loc); member {
			continue
		}
		if m.IsValidFrame(e.world, loc) {
			continue
		}
		if e.reg.ForgetDirection(loc) {
			rep.Pruned++
			e.emit(Event{Kind: EventPruneDirection, Loc: loc})
		}
	}
	return rep
}

func (e *Engine) dropStale(loc geom.Location, link, reason string) {
	if _, ok := e.reg.Remove(loc); !ok {
		return
	}
	e.log.Printf("dropped stale endpoint %s from %q: %s", loc, link, reason)
	e.emit(Event{Kind: EventDropStale, Loc: loc, Link: link, Reason: reason})
}

// currentFacing is the facing to record on activation: the block's own facing
// when it has one, else the last recorded direction, else the default.
func (e *Engine) currentFacing(loc geom.Location) geom.Facing {
	if f, ok := e.world.Facing(loc); ok {
		return f
	}
	return e.facingOf(loc)
}

func (e *Engine) facingOf(loc geom.Location) geom.Facing {
	if f, ok := e.reg.Direction(loc); ok {
		return f
	}
	return e.cfg.DefaultFacing
}
