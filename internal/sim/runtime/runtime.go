// Package runtime hosts the endpoint engine. One goroutine (Run) owns the
// registry, the engine and the block world; every other goroutine reaches them
// through request methods that execute on that goroutine between ticks.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"teleportals.ai/internal/persistence/linkdoc"
	"teleportals.ai/internal/persistence/snapshot"
	"teleportals.ai/internal/sim/geom"
	"teleportals.ai/internal/sim/linkreg"
	"teleportals.ai/internal/sim/multiworld"
	"teleportals.ai/internal/sim/portal"
	"teleportals.ai/internal/sim/tuning"
	"teleportals.ai/internal/sim/world"
)

var (
	ErrStopped        = errors.New("runtime stopped")
	ErrUnknownWorld   = errors.New("unknown world")
	ErrWorldNotLoaded = errors.New("world not loaded")
	ErrBadRequest     = errors.New("bad request")
)

type Options struct {
	Tuning tuning.Tuning
	Worlds multiworld.Config

	// Gateway persists links. Nil keeps links in memory only.
	Gateway *linkdoc.Gateway
	// WorldSnapshotPath persists blocks. Empty keeps blocks in memory only.
	WorldSnapshotPath string

	Audit AuditSink
	Index Index

	Rand   *rand.Rand
	Logger *log.Logger
}

type Runtime struct {
	tune   tuning.Tuning
	worlds multiworld.Config

	world *world.World
	reg   *linkreg.Registry
	eng   *portal.Engine

	gw     *linkdoc.Gateway
	writer *linkdoc.Writer
	blocks *blockSaver

	audit AuditSink
	index Index
	log   *log.Logger

	tick            uint64
	lastSaveAttempt uint64
	// savedTick is the tick of the last successful link save. Writers update
	// it from their own goroutines.
	savedTick atomic.Uint64
	// blocksRestored means block content survived the last restart, so the
	// registry can be checked against it.
	blocksRestored bool
	shutDown       bool

	calls   chan call
	stopped chan struct{}
	stopReq chan struct{}

	subs    map[uint64]*subscriber
	nextSub uint64
}

type call struct {
	fn   func()
	done chan struct{}
}

type BootReport struct {
	Load          linkdoc.LoadReport
	WorldRestored bool
	Reconcile     portal.ReconcileReport
}

func New(opts Options) *Runtime {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	rt := &Runtime{
		tune:    opts.Tuning,
		worlds:  opts.Worlds,
		world:   world.New(opts.Tuning.Materials.Air),
		reg:     linkreg.New(rng),
		gw:      opts.Gateway,
		audit:   opts.Audit,
		index:   opts.Index,
		log:     logger,
		calls:   make(chan call),
		stopped: make(chan struct{}),
		stopReq: make(chan struct{}),
		subs:    map[uint64]*subscriber{},
	}
	rt.eng = portal.NewEngine(rt.world, rt.reg, opts.Tuning.PortalConfig(), rt, logger)
	if rt.gw != nil {
		rt.writer = linkdoc.NewWriter(rt.gw, rt.recordSave, logger)
	}
	if opts.WorldSnapshotPath != "" {
		rt.blocks = newBlockSaver(opts.WorldSnapshotPath, logger)
	}
	return rt
}

// Boot restores blocks and links and loads the startup worlds. Call it once,
// before Run.
func (rt *Runtime) Boot() (BootReport, error) {
	var rep BootReport
	if rt.blocks != nil {
		snap, err := snapshot.ReadWorld(rt.blocks.path)
		switch {
		case err == nil:
			if err := rt.world.ImportSnapshot(snap); err != nil {
				return rep, fmt.Errorf("import blocks: %w", err)
			}
			rt.tick = snap.Header.Tick
			rt.lastSaveAttempt = rt.tick
			rt.savedTick.Store(rt.tick)
			rt.world.Advance(rt.tick)
			rt.blocksRestored = true
			rep.WorldRestored = true
		case errors.Is(err, os.ErrNotExist):
		default:
			return rep, fmt.Errorf("read blocks: %w", err)
		}
	}
	for _, id := range rt.worlds.StartupWorlds() {
		rt.world.LoadWorld(id)
	}
	if rt.gw != nil {
		lr, err := rt.gw.Load(rt.reg, rt.world)
		if err != nil {
			return rep, err
		}
		rep.Load = lr
	}
	if rt.blocksRestored {
		rep.Reconcile = rt.eng.Reconcile("")
	}
	return rep, nil
}

// Run drives ticks until ctx ends or Stop is called, then saves synchronously.
func (rt *Runtime) Run(ctx context.Context) error {
	defer close(rt.stopped)
	interval := rt.interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rt.shutdown()
			return ctx.Err()
		case <-rt.stopReq:
			rt.shutdown()
			return nil
		case c := <-rt.calls:
			c.fn()
			if c.done != nil {
				close(c.done)
			}
			rt.flushWorld()
			if next := rt.interval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		case <-ticker.C:
			rt.Step()
		}
	}
}

// Stop ends Run. It is safe to call more than once.
func (rt *Runtime) Stop() {
	select {
	case <-rt.stopReq:
	default:
		close(rt.stopReq)
	}
}

// Done is closed once Run has returned.
func (rt *Runtime) Done() <-chan struct{} { return rt.stopped }

// Step advances one tick. Outside of Run it may be called directly, which is
// how tests and tools drive the runtime.
func (rt *Runtime) Step() {
	rt.tick++
	rt.world.Advance(rt.tick)
	rt.flushWorld()
	if every := rt.tune.AutosaveEveryTicks; every > 0 && rt.tick-rt.lastSaveAttempt >= uint64(every) {
		rt.autosave()
	}
}

func (rt *Runtime) Tick() uint64 { return rt.tick }

func (rt *Runtime) interval() time.Duration {
	hz := rt.tune.TickRateHz
	if hz <= 0 {
		hz = 20
	}
	return time.Second / time.Duration(hz)
}

// autosave hands snapshots to the background writers. The registry is copied
// here, on the loop, so the writers never see it mid-mutation.
func (rt *Runtime) autosave() {
	rt.lastSaveAttempt = rt.tick
	if rt.writer != nil {
		rt.writer.Submit(rt.reg.Snapshot(), rt.tick)
	}
	if rt.blocks != nil {
		rt.blocks.submit(rt.world.ExportSnapshot(), nil)
	}
}

// Shutdown saves and releases the writers of a runtime driven by Step. Run
// does this itself on exit.
func (rt *Runtime) Shutdown() { rt.shutdown() }

func (rt *Runtime) shutdown() {
	if rt.shutDown {
		return
	}
	rt.shutDown = true
	rt.autosave()
	if rt.writer != nil {
		if err := rt.writer.Close(); err != nil {
			rt.log.Printf("final save failed, links changed since the last good save are lost: %v", err)
		}
	}
	if rt.blocks != nil {
		rt.blocks.close()
	}
	for id := range rt.subs {
		rt.unsubscribe(id)
	}
}

func (rt *Runtime) recordSave(r linkdoc.SaveResult, err error) {
	if err == nil {
		for {
			cur := rt.savedTick.Load()
			if r.Tick <= cur || rt.savedTick.CompareAndSwap(cur, r.Tick) {
				break
			}
		}
	}
	if rt.index != nil {
		rt.index.RecordSave(newSaveRecord(rt.gw.Path(), r, err))
	}
}

// PortalEvent receives engine events on the loop goroutine.
func (rt *Runtime) PortalEvent(ev portal.Event) {
	e := AuditEntry{
		ID:     uuid.NewString(),
		Tick:   rt.tick,
		Time:   time.Now().UTC().Format(time.RFC3339Nano),
		Kind:   string(ev.Kind),
		World:  ev.Loc.World,
		Pos:    [3]int{ev.Loc.X, ev.Loc.Y, ev.Loc.Z},
		Loc:    geom.LocationKey(ev.Loc),
		Link:   ev.Link,
		Actor:  ev.Actor,
		Reason: ev.Reason,
	}
	switch ev.Kind {
	case portal.EventActivate, portal.EventDeactivate, portal.EventTeleport:
		e.Facing = ev.Facing.String()
	}
	if !ev.Exit.IsZero() {
		e.Exit = geom.LocationKey(ev.Exit)
	}
	if rt.audit != nil {
		if err := rt.audit.WriteAudit(e); err != nil {
			rt.log.Printf("audit: %v", err)
		}
	}
	if rt.index != nil {
		_ = rt.index.WriteAudit(e)
	}
	rt.publish(Notice{Kind: NoticeEvent, Tick: e.Tick, Event: &e})
}

// call runs fn on the loop goroutine and waits for it.
func (rt *Runtime) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case rt.calls <- call{fn: fn, done: done}:
	case <-rt.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn without waiting. It is dropped once the loop has stopped.
func (rt *Runtime) post(fn func()) {
	go func() {
		select {
		case rt.calls <- call{fn: fn}:
		case <-rt.stopped:
		}
	}()
}
