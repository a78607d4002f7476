package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"teleportals.ai/internal/protocol"
	"teleportals.ai/internal/sim/geom"
	"teleportals.ai/internal/sim/keyobj"
	"teleportals.ai/internal/sim/portal"
	"teleportals.ai/internal/sim/runtime"
	"teleportals.ai/internal/sim/world"
)

var adminTypes = map[string]bool{
	protocol.TypeGiveKey:     true,
	protocol.TypeSave:        true,
	protocol.TypeLoadWorld:   true,
	protocol.TypeUnloadWorld: true,
}

// dispatch handles one inbound message and returns the reply to send, if any.
func (s *Server) dispatch(ctx context.Context, sess *session, msg []byte) any {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protoError("", protocol.ErrProtoBadRequest, "malformed json")
	}
	if base.ProtocolVersion != protocol.Version {
		return protoError(base.ReqID, protocol.ErrProtoVersion, fmt.Sprintf("protocol_version %q, want %q", base.ProtocolVersion, protocol.Version))
	}
	if !protocol.HasSchema(base.Type) || base.Type == protocol.TypeHello || base.Type == protocol.TypeWelcome {
		return protoError(base.ReqID, protocol.ErrProtoBadRequest, fmt.Sprintf("unexpected message type %q", base.Type))
	}
	if err := protocol.Validate(base.Type, msg); err != nil {
		return protoError(base.ReqID, protocol.ErrProtoBadRequest, err.Error())
	}
	if adminTypes[base.Type] && !sess.admin {
		return protoError(base.ReqID, protocol.ErrNoPermission, base.Type+" is restricted to local peers")
	}

	rctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()
	res, err := s.handle(rctx, sess, base.Type, msg)
	if err != nil {
		return errorMsg(base.ReqID, err)
	}
	res.Type = protocol.TypeResult
	res.ProtocolVersion = protocol.Version
	res.ReqID = base.ReqID
	res.For = base.Type
	return res
}

func (s *Server) handle(ctx context.Context, sess *session, typ string, msg []byte) (protocol.ResultMsg, error) {
	var out protocol.ResultMsg
	switch typ {
	case protocol.TypeInteract:
		var m protocol.InteractMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return out, err
		}
		r, err := s.rt.Interact(ctx, runtime.InteractRequest{
			Actor:    sess.actorID,
			Loc:      fromLoc(m.Loc),
			Item:     fromItem(m.Item),
			Creative: sess.creative,
		})
		if err != nil {
			return out, err
		}
		out.OK, out.Outcome = r.OK, string(r.Outcome)
		out.Data = map[string]any{"anchor": toLoc(r.Anchor), "link": r.Link, "facing": r.Facing.String(), "item": toItem(r.Item)}

	case protocol.TypeBreak:
		var m protocol.BreakMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return out, err
		}
		r, err := s.rt.Break(ctx, runtime.BreakRequest{Actor: sess.actorID, Loc: fromLoc(m.Loc)})
		if err != nil {
			return out, err
		}
		out.OK, out.Outcome = true, string(r.Deactivated.Outcome)
		data := map[string]any{"material": r.Material}
		if r.Deactivated.OK {
			data["anchor"] = toLoc(r.Anchor)
			data["link"] = r.Deactivated.Link
		}
		out.Data = data

	case protocol.TypeEnter:
		var m protocol.EnterMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return out, err
		}
		face, _ := geom.ParseFace(m.Face)
		r, err := s.rt.Enter(ctx, runtime.EnterRequest{
			Actor: sess.actorID,
			Loc:   fromLoc(m.Loc),
			Face:  face,
			Yaw:   m.Yaw,
			Pitch: m.Pitch,
		})
		if err != nil {
			return out, err
		}
		out.OK, out.Outcome = r.Moved, string(r.Outcome)
		if r.Moved {
			out.Data = toPlacement(r)
		}

	case protocol.TypePlace:
		var m protocol.PlaceMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return out, err
		}
		req := runtime.PlaceRequest{Loc: fromLoc(m.Loc), Material: m.Material}
		if m.Facing != "" {
			req.Facing, _ = geom.ParseFacing(m.Facing)
			req.Oriented = true
		}
		if err := s.rt.Place(ctx, req); err != nil {
			return out, err
		}
		out.OK = true

	case protocol.TypeGiveKey:
		var m protocol.GiveKeyMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return out, err
		}
		req := runtime.GiveKeyRequest{Actor: sess.actorID, Link: m.Link, Tags: m.Tags, Count: m.Count, Drop: m.Drop}
		if m.Loc != nil {
			req.Loc = fromLoc(*m.Loc)
		}
		it, err := s.rt.GiveKey(ctx, req)
		if err != nil {
			return out, err
		}
		out.OK = true
		out.Data = toItem(it)

	case protocol.TypeSave:
		r, err := s.rt.Save(ctx)
		if err != nil {
			return out, err
		}
		out.OK, out.Tick = true, r.Tick
		out.Data = map[string]any{"groups": r.Groups, "endpoints": r.Endpoints, "parked": r.Parked, "bytes": r.Bytes, "backup": r.Backup}

	case protocol.TypeLoadWorld, protocol.TypeUnloadWorld:
		var m protocol.WorldMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return out, err
		}
		if typ == protocol.TypeUnloadWorld {
			ok, err := s.rt.UnloadWorld(ctx, m.WorldID)
			if err != nil {
				return out, err
			}
			out.OK = ok
			return out, nil
		}
		r, err := s.rt.LoadWorld(ctx, m.WorldID)
		if err != nil {
			return out, err
		}
		out.OK = !r.AlreadyLoaded
		out.Data = map[string]any{"adopted": r.Adopted, "dropped": len(r.Reconcile.Dropped), "pruned": r.Reconcile.Pruned}

	case protocol.TypeStats:
		st, err := s.rt.Stats(ctx)
		if err != nil {
			return out, err
		}
		out.OK, out.Tick = true, st.Tick
		out.Data = st
	}
	return out, nil
}

func protoError(reqID, code, message string) protocol.ErrorMsg {
	return protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		Code:            code,
		Message:         message,
	}
}

func fromLoc(l protocol.Loc) geom.Location {
	return geom.At(l.World, l.Pos[0], l.Pos[1], l.Pos[2])
}

func toLoc(l geom.Location) *protocol.Loc {
	if l.IsZero() {
		return nil
	}
	return &protocol.Loc{World: l.World, Pos: [3]int{l.X, l.Y, l.Z}}
}

func fromItem(it protocol.Item) keyobj.Item {
	return keyobj.Item{Kind: it.Kind, Count: it.Count, Label: it.Label, Marker: it.Marker, Tags: it.Tags, Link: it.Link}.Clone()
}

func toItem(it keyobj.Item) *protocol.Item {
	c := it.Clone()
	return &protocol.Item{Kind: c.Kind, Count: c.Count, Label: c.Label, Marker: c.Marker, Tags: c.Tags, Link: c.Link}
}

func toActor(a world.Actor) *protocol.Actor {
	return &protocol.Actor{ID: a.ID, World: a.World, Pos: [3]float64{a.Pos.X, a.Pos.Y, a.Pos.Z}, Yaw: a.Yaw, Pitch: a.Pitch}
}

func toPlacement(r portal.TeleportResult) protocol.Placement {
	p := r.Placement
	return protocol.Placement{
		Link:   r.Link,
		Exit:   toLoc(r.Exit),
		World:  p.World,
		Pos:    [3]float64{p.Pos.X, p.Pos.Y, p.Pos.Z},
		Yaw:    p.Yaw,
		Pitch:  p.Pitch,
		Emerge: p.Emerge.String(),
	}
}

func noticeMsg(n runtime.Notice) protocol.NoticeMsg {
	m := protocol.NoticeMsg{
		Type:            protocol.TypeNotice,
		ProtocolVersion: protocol.Version,
		Tick:            n.Tick,
		Kind:            string(n.Kind),
	}
	switch {
	case n.Effect != nil:
		m.Loc = toLoc(n.Effect.Loc)
		m.Effect = string(n.Effect.Kind)
	case n.Drop != nil:
		m.Loc = toLoc(n.Drop.Loc)
		m.Item = toItem(n.Drop.Item)
	case n.Move != nil:
		m.Actor = toActor(n.Move.Actor)
	case n.Event != nil:
		m.Event = n.Event
	}
	return m
}
