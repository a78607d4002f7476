package runtime

import "teleportals.ai/internal/sim/world"

type NoticeKind string

const (
	NoticeEffect NoticeKind = "EFFECT"
	NoticeDrop   NoticeKind = "DROP"
	NoticeMove   NoticeKind = "MOVE"
	NoticeEvent  NoticeKind = "EVENT"
)

// Notice is one item of the outbound stream. Exactly one payload is set.
type Notice struct {
	Kind   NoticeKind
	Tick   uint64
	Effect *world.Effect
	Drop   *world.Drop
	Move   *world.Move
	Event  *AuditEntry
}

type Subscription struct {
	ID uint64
	C  <-chan Notice

	rt *Runtime
}

// Close detaches the subscription; C is closed by the loop.
func (s *Subscription) Close() {
	if s == nil || s.rt == nil {
		return
	}
	id := s.ID
	s.rt.post(func() { s.rt.unsubscribe(id) })
}

type subscriber struct {
	ch      chan Notice
	dropped uint64
}

func (rt *Runtime) subscribe(buf int) *Subscription {
	if buf <= 0 {
		buf = 256
	}
	rt.nextSub++
	s := &subscriber{ch: make(chan Notice, buf)}
	rt.subs[rt.nextSub] = s
	return &Subscription{ID: rt.nextSub, C: s.ch, rt: rt}
}

func (rt *Runtime) unsubscribe(id uint64) {
	s, ok := rt.subs[id]
	if !ok {
		return
	}
	delete(rt.subs, id)
	close(s.ch)
}

func (rt *Runtime) publish(n Notice) {
	for _, s := range rt.subs {
		select {
		case s.ch <- n:
		default:
			s.dropped++
		}
	}
}

// flushWorld publishes what the world queued since the last flush.
func (rt *Runtime) flushWorld() {
	effects, drops, moves := rt.world.Drain()
	if len(rt.subs) == 0 {
		return
	}
	for i := range effects {
		rt.publish(Notice{Kind: NoticeEffect, Tick: effects[i].Tick, Effect: &effects[i]})
	}
	for i := range drops {
		rt.publish(Notice{Kind: NoticeDrop, Tick: drops[i].Tick, Drop: &drops[i]})
	}
	for i := range moves {
		rt.publish(Notice{Kind: NoticeMove, Tick: moves[i].Tick, Move: &moves[i]})
	}
}
