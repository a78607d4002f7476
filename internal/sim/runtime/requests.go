package runtime

import (
	"context"
	"fmt"
	"math"
	"strings"

	"teleportals.ai/internal/persistence/linkdoc"
	"teleportals.ai/internal/sim/geom"
	"teleportals.ai/internal/sim/keyobj"
	"teleportals.ai/internal/sim/portal"
	"teleportals.ai/internal/sim/tuning"
	"teleportals.ai/internal/sim/world"
)

type InteractRequest struct {
	Actor string
	Loc   geom.Location
	Item  keyobj.Item
	// Creative actors keep their key object.
	Creative bool
}

type InteractResult struct {
	portal.Result
	Anchor geom.Location
	// Item is the held stack afterwards; Count 0 means it was used up.
	Item keyobj.Item
}

type BreakRequest struct {
	Actor string
	Loc   geom.Location
}

type BreakResult struct {
	Material    string
	Anchor      geom.Location
	Deactivated portal.Result
}

type EnterRequest struct {
	Actor string
	Loc   geom.Location
	Face  geom.Face
	Yaw   float64
	Pitch float64
}

type PlaceRequest struct {
	Loc      geom.Location
	Material string
	Facing   geom.Facing
	Oriented bool
}

type GiveKeyRequest struct {
	Actor string
	// Link, when set, is used as is; otherwise Tags are canonicalised.
	Link  string
	Tags  map[string]int
	Count int
	// Drop puts the key into the world at Loc, or at the actor's feet.
	Drop bool
	Loc  geom.Location
}

type LoadWorldResult struct {
	AlreadyLoaded bool
	Adopted       int
	Reconcile     portal.ReconcileReport
}

type Stats struct {
	Tick         uint64   `json:"tick"`
	Groups       int      `json:"groups"`
	Endpoints    int      `json:"endpoints"`
	Parked       int      `json:"parked"`
	Worlds       []string `json:"worlds"`
	Actors       int      `json:"actors"`
	Chunks       int      `json:"chunks"`
	LastSaveTick uint64   `json:"last_save_tick"`
	Subscribers  int      `json:"subscribers"`
}

func (rt *Runtime) Interact(ctx context.Context, req InteractRequest) (InteractResult, error) {
	var res InteractResult
	err := rt.call(ctx, func() { res = rt.interact(req) })
	return res, err
}

func (rt *Runtime) interact(req InteractRequest) InteractResult {
	out := InteractResult{Anchor: req.Loc, Item: req.Item.Clone()}
	if out.Item.Count <= 0 {
		out.Item.Count = 1
	}
	if !rt.world.HasWorld(req.Loc.World) {
		out.Result = portal.Result{Outcome: portal.WorldNotLoaded}
		return out
	}
	m := rt.eng.Config().Materials
	anchor, ok := m.FindFrameNear(rt.world, req.Loc)
	if !ok {
		out.Result = portal.Result{Outcome: portal.NoFrame}
		return out
	}
	out.Anchor = anchor
	out.Result = rt.eng.Activate(anchor, &out.Item)
	if out.OK && !req.Creative {
		out.Item.Count--
	}
	return out
}

func (rt *Runtime) Break(ctx context.Context, req BreakRequest) (BreakResult, error) {
	var res BreakResult
	err := rt.call(ctx, func() { res = rt.breakBlock(req) })
	return res, err
}

// breakBlock removes the block at loc. Breaking any block of a registered
// endpoint's column deactivates it first so the key object is returned.
func (rt *Runtime) breakBlock(req BreakRequest) BreakResult {
	out := BreakResult{Deactivated: portal.Result{Outcome: portal.NotMember}}
	if !rt.world.HasWorld(req.Loc.World) {
		out.Deactivated.Outcome = portal.WorldNotLoaded
		return out
	}
	out.Material = rt.world.BlockMaterial(req.Loc)
	for _, c := range [3]geom.Location{req.Loc, req.Loc.Up(), req.Loc.Down()} {
		if _, ok := rt.reg.GroupOf(c); ok {
			out.Anchor = c
			out.Deactivated = rt.eng.Deactivate(c)
			break
		}
	}
	rt.world.SetBlockMaterial(req.Loc, rt.world.Air())
	return out
}

func (rt *Runtime) Enter(ctx context.Context, req EnterRequest) (portal.TeleportResult, error) {
	var res portal.TeleportResult
	err := rt.call(ctx, func() {
		res = rt.eng.Teleport(portal.Entrant{ID: req.Actor, Yaw: req.Yaw, Pitch: req.Pitch}, req.Loc, req.Face)
	})
	return res, err
}

func (rt *Runtime) Place(ctx context.Context, req PlaceRequest) error {
	var err error
	if cerr := rt.call(ctx, func() { err = rt.place(req) }); cerr != nil {
		return cerr
	}
	return err
}

func (rt *Runtime) place(req PlaceRequest) error {
	if strings.TrimSpace(req.Material) == "" {
		return fmt.Errorf("%w: empty material", ErrBadRequest)
	}
	if !rt.world.HasWorld(req.Loc.World) {
		return fmt.Errorf("%w: %s", ErrWorldNotLoaded, req.Loc.World)
	}
	if !rt.world.CanStore(req.Material) {
		return fmt.Errorf("%w: palette full, material %q", ErrBadRequest, req.Material)
	}
	if req.Oriented {
		rt.world.PlaceBlock(req.Loc, req.Material, req.Facing)
	} else {
		rt.world.SetBlockMaterial(req.Loc, req.Material)
	}
	return nil
}

// Reload swaps tuning between ticks. The registry is not touched.
func (rt *Runtime) Reload(ctx context.Context, t tuning.Tuning) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if err := rt.call(ctx, func() { rt.reload(t) }); err != nil {
		return err
	}
	if rt.index != nil {
		if err := rt.index.UpsertTuning(t); err != nil {
			rt.log.Printf("index tuning: %v", err)
		}
	}
	return nil
}

func (rt *Runtime) reload(t tuning.Tuning) {
	rt.tune = t
	rt.eng.SetConfig(t.PortalConfig())
	if rt.gw != nil {
		rt.gw.SetBackupKeep(t.BackupKeep)
	}
}

func (rt *Runtime) GiveKey(ctx context.Context, req GiveKeyRequest) (keyobj.Item, error) {
	var (
		it  keyobj.Item
		err error
	)
	if cerr := rt.call(ctx, func() { it, err = rt.giveKey(req) }); cerr != nil {
		return it, cerr
	}
	return it, err
}

func (rt *Runtime) giveKey(req GiveKeyRequest) (keyobj.Item, error) {
	codec := rt.eng.Config().Codec
	var (
		it  keyobj.Item
		err error
	)
	if req.Link != "" {
		// a named link is fine, a tag list must already be canonical
		if strings.Contains(req.Link, "=") {
			if _, err := keyobj.ParseLinkKey(req.Link); err != nil {
				return it, fmt.Errorf("%w: link %q: %v", ErrBadRequest, req.Link, err)
			}
		}
		it, err = codec.Mint(req.Link, req.Count)
		if err != nil {
			return it, fmt.Errorf("%w: link %q: %v", ErrBadRequest, req.Link, err)
		}
	} else {
		if len(req.Tags) == 0 {
			return it, fmt.Errorf("%w: a key needs a link or tags", ErrBadRequest)
		}
		for name := range req.Tags {
			if !keyobj.ValidTagName(name) {
				return it, fmt.Errorf("%w: tag name %q", ErrBadRequest, name)
			}
		}
		it = codec.MintTags(req.Tags, req.Count)
	}
	if !req.Drop {
		return it, nil
	}
	loc := req.Loc
	if loc.IsZero() {
		a, ok := rt.world.Actor(req.Actor)
		if !ok {
			return it, fmt.Errorf("%w: no drop location and unknown actor %q", ErrBadRequest, req.Actor)
		}
		loc = geom.At(a.World, int(math.Floor(a.Pos.X)), int(math.Floor(a.Pos.Y)), int(math.Floor(a.Pos.Z)))
	}
	if !rt.world.HasWorld(loc.World) {
		return it, fmt.Errorf("%w: %s", ErrWorldNotLoaded, loc.World)
	}
	rt.world.DropObject(loc, it)
	return it, nil
}

// Save writes links (and blocks, when persisted) now and waits for the result.
func (rt *Runtime) Save(ctx context.Context) (linkdoc.SaveResult, error) {
	if rt.gw == nil {
		return linkdoc.SaveResult{}, fmt.Errorf("%w: persistence disabled", ErrBadRequest)
	}
	// both go through the background writers so an autosave queued earlier
	// can never land on top of this one
	var (
		links  <-chan linkdoc.Outcome
		blocks chan error
		ok     bool
	)
	if err := rt.call(ctx, func() {
		links, ok = rt.writer.SubmitWait(rt.reg.Snapshot(), rt.tick)
		if ok && rt.blocks != nil {
			blocks = make(chan error, 1)
			rt.blocks.submit(rt.world.ExportSnapshot(), blocks)
		}
	}); err != nil {
		return linkdoc.SaveResult{}, err
	}
	if !ok {
		return linkdoc.SaveResult{}, ErrStopped
	}
	var out linkdoc.Outcome
	select {
	case out = <-links:
	case <-ctx.Done():
		return linkdoc.SaveResult{}, ctx.Err()
	}
	if out.Err != nil {
		return out.Result, out.Err
	}
	if blocks != nil {
		select {
		case err := <-blocks:
			if err != nil {
				return out.Result, fmt.Errorf("save blocks: %w", err)
			}
		case <-ctx.Done():
			return out.Result, ctx.Err()
		}
	}
	return out.Result, nil
}

func (rt *Runtime) LoadWorld(ctx context.Context, id string) (LoadWorldResult, error) {
	var (
		res LoadWorldResult
		err error
	)
	if cerr := rt.call(ctx, func() { res, err = rt.loadWorld(id) }); cerr != nil {
		return res, cerr
	}
	return res, err
}

func (rt *Runtime) loadWorld(id string) (LoadWorldResult, error) {
	var res LoadWorldResult
	if _, ok := rt.worlds.WorldSpecByID(id); !ok {
		return res, fmt.Errorf("%w: %s", ErrUnknownWorld, id)
	}
	if !rt.world.LoadWorld(id) {
		res.AlreadyLoaded = true
		return res, nil
	}
	if rt.gw != nil {
		res.Adopted = rt.gw.Adopt(id, rt.reg)
	}
	if rt.blocksRestored {
		res.Reconcile = rt.eng.Reconcile(id)
	}
	rt.log.Printf("world %s loaded: adopted=%d dropped=%d", id, res.Adopted, len(res.Reconcile.Dropped))
	return res, nil
}

// UnloadWorld hides a world. Its endpoints stay registered; teleports into it
// report WORLD_NOT_LOADED until it loads again.
func (rt *Runtime) UnloadWorld(ctx context.Context, id string) (bool, error) {
	var (
		ok  bool
		err error
	)
	if cerr := rt.call(ctx, func() {
		if id == rt.worlds.DefaultWorldID {
			err = fmt.Errorf("%w: cannot unload the default world", ErrBadRequest)
			return
		}
		ok = rt.world.UnloadWorld(id)
	}); cerr != nil {
		return false, cerr
	}
	return ok, err
}

// Join spawns or replaces an actor. An empty world means the default world.
func (rt *Runtime) Join(ctx context.Context, a world.Actor) error {
	var err error
	if cerr := rt.call(ctx, func() {
		if a.World == "" {
			a.World = rt.worlds.DefaultWorldID
		}
		if !rt.world.HasWorld(a.World) {
			err = fmt.Errorf("%w: %s", ErrWorldNotLoaded, a.World)
			return
		}
		rt.world.SpawnActor(a)
	}); cerr != nil {
		return cerr
	}
	return err
}

func (rt *Runtime) Leave(ctx context.Context, actorID string) error {
	return rt.call(ctx, func() { rt.world.RemoveActor(actorID) })
}

func (rt *Runtime) Actor(ctx context.Context, actorID string) (world.Actor, bool, error) {
	var (
		a  world.Actor
		ok bool
	)
	err := rt.call(ctx, func() { a, ok = rt.world.Actor(actorID) })
	return a, ok, err
}

func (rt *Runtime) Subscribe(ctx context.Context, buf int) (*Subscription, error) {
	var sub *Subscription
	err := rt.call(ctx, func() { sub = rt.subscribe(buf) })
	return sub, err
}

func (rt *Runtime) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := rt.call(ctx, func() { st = rt.stats() })
	return st, err
}

func (rt *Runtime) stats() Stats {
	st := Stats{
		Tick:         rt.tick,
		Groups:       len(rt.reg.Keys()),
		Endpoints:    rt.reg.Len(),
		Worlds:       rt.world.Worlds(),
		Actors:       rt.world.ActorCount(),
		Chunks:       rt.world.ChunkCount(),
		LastSaveTick: rt.savedTick.Load(),
		Subscribers:  len(rt.subs),
	}
	if rt.gw != nil {
		st.Parked = rt.gw.Parked()
	}
	return st
}

// Tuning returns the tuning in effect.
func (rt *Runtime) Tuning(ctx context.Context) (tuning.Tuning, error) {
	var t tuning.Tuning
	err := rt.call(ctx, func() { t = rt.tune })
	return t, err
}

func (rt *Runtime) DefaultWorld() string { return rt.worlds.DefaultWorldID }
