package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"teleportals.ai/internal/persistence/linkdoc"
	"teleportals.ai/internal/protocol"
	"teleportals.ai/internal/sim/keyobj"
	"teleportals.ai/internal/sim/portal"
	"teleportals.ai/internal/sim/runtime"
	"teleportals.ai/internal/sim/tuning"
	"teleportals.ai/internal/sim/world"
)

// Backend is the slice of the runtime a session drives.
type Backend interface {
	Join(ctx context.Context, a world.Actor) error
	Leave(ctx context.Context, actorID string) error
	Subscribe(ctx context.Context, buf int) (*runtime.Subscription, error)
	Tuning(ctx context.Context) (tuning.Tuning, error)
	Stats(ctx context.Context) (runtime.Stats, error)
	DefaultWorld() string

	Interact(ctx context.Context, req runtime.InteractRequest) (runtime.InteractResult, error)
	Break(ctx context.Context, req runtime.BreakRequest) (runtime.BreakResult, error)
	Enter(ctx context.Context, req runtime.EnterRequest) (portal.TeleportResult, error)
	Place(ctx context.Context, req runtime.PlaceRequest) error
	GiveKey(ctx context.Context, req runtime.GiveKeyRequest) (keyobj.Item, error)
	Save(ctx context.Context) (linkdoc.SaveResult, error)
	LoadWorld(ctx context.Context, id string) (runtime.LoadWorldResult, error)
	UnloadWorld(ctx context.Context, id string) (bool, error)
}

var _ Backend = (*runtime.Runtime)(nil)

type Options struct {
	// AdminFromAnywhere allows GIVE_KEY, SAVE and world loading from
	// non-loopback peers.
	AdminFromAnywhere bool
	// RequestTimeout bounds one request round trip through the runtime.
	RequestTimeout time.Duration
}

type Server struct {
	rt   Backend
	log  *log.Logger
	opts Options

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	sessions atomic.Int64
}

func NewServer(rt Backend, opts Options, logger *log.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	return &Server{
		rt:   rt,
		log:  logger,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Sessions is the number of connected sessions.
func (s *Server) Sessions() int64 { return s.sessions.Load() }

type session struct {
	id       string
	actorID  string
	creative bool
	admin    bool
	out      chan []byte
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sess, hello := s.handshake(ctx, conn)
		if sess == nil {
			return
		}
		sess.admin = s.opts.AdminFromAnywhere || isLoopbackRemote(r.RemoteAddr)
		s.sessions.Add(1)
		defer s.sessions.Add(-1)
		s.log.Printf("session %s: actor %s joined", sess.id, sess.actorID)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		if hello.Capabilities.Notices {
			sub, err := s.rt.Subscribe(ctx, cap(sess.out)*4)
			if err == nil {
				defer sub.Close()
				go s.forwardNotices(ctx, sess, sub)
			}
		}

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			reply := s.dispatch(ctx, sess, msg)
			if reply == nil {
				continue
			}
			if !sess.send(ctx, reply) {
				break
			}
		}

		// Cleanup.
		leaveCtx, leaveCancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
		defer leaveCancel()
		_ = s.rt.Leave(leaveCtx, sess.actorID)
		s.log.Printf("session %s: actor %s left", sess.id, sess.actorID)
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (*session, protocol.HelloMsg) {
	var hello protocol.HelloMsg
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, hello
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return nil, hello
	}
	if base.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return nil, hello
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		closeWith(conn, "bad HELLO")
		return nil, hello
	}
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil, hello
	}
	name := strings.TrimSpace(hello.ActorName)
	if name == "" {
		name = "actor"
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}

	sess := &session{
		id:       uuid.NewString(),
		actorID:  fmt.Sprintf("%s-%d", name, s.nextID.Add(1)),
		creative: hello.Creative,
		out:      make(chan []byte, maxQ),
	}

	rctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()
	a := world.Actor{ID: sess.actorID, World: hello.WorldPreference}
	if hello.Spawn != nil {
		a.Pos.X, a.Pos.Y, a.Pos.Z = hello.Spawn[0], hello.Spawn[1], hello.Spawn[2]
	}
	if a.World == "" {
		a.World = s.rt.DefaultWorld()
	}
	if err := s.rt.Join(rctx, a); err != nil {
		_ = writeJSON(conn, errorMsg("", err))
		closeWith(conn, "join failed")
		return nil, hello
	}
	tune, err := s.rt.Tuning(rctx)
	if err != nil {
		return nil, hello
	}
	st, err := s.rt.Stats(rctx)
	if err != nil {
		return nil, hello
	}
	digest, _, _ := tune.Digest()

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		ActorID:         sess.actorID,
		CurrentWorldID:  a.World,
		Worlds:          st.Worlds,
		Params: protocol.ServerParams{
			TickRateHz:    tune.TickRateHz,
			DefaultFacing: tune.DefaultFacing,
			Frame:         tune.Materials.Frame,
			PassiveAnchor: tune.Materials.PassiveAnchor,
			ActiveAnchor:  tune.Materials.ActiveAnchor,
			KeyKind:       tune.KeyObject.Kind,
			TuningDigest:  digest,
		},
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil, hello
	}
	return sess, hello
}

func (sess *session) send(ctx context.Context, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		return true
	}
	select {
	case sess.out <- b:
		return true
	case <-ctx.Done():
		return false
	}
}

// forwardNotices relays the runtime's notices. A slow client loses notices
// instead of stalling the connection.
func (s *Server) forwardNotices(ctx context.Context, sess *session, sub *runtime.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-sub.C:
			if !ok {
				return
			}
			b, err := json.Marshal(noticeMsg(n))
			if err != nil {
				continue
			}
			select {
			case sess.out <- b:
			default:
			}
		}
	}
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func errorMsg(reqID string, err error) protocol.ErrorMsg {
	return protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		Code:            errorCode(err),
		Message:         err.Error(),
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, runtime.ErrBadRequest):
		return protocol.ErrBadRequest
	case errors.Is(err, runtime.ErrUnknownWorld):
		return protocol.ErrWorldNotFound
	case errors.Is(err, runtime.ErrWorldNotLoaded):
		return protocol.ErrWorldNotLoaded
	case errors.Is(err, runtime.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return protocol.ErrUnavailable
	default:
		return protocol.ErrInternal
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
