package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"teleportals.ai/internal/protocol"
	"teleportals.ai/internal/sim/geom"
)

// bot builds two endpoints, links them with one key and walks through the
// first. It needs admin rights on the server (run it on the same host).
func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name   = flag.String("name", "bot", "actor name")
		from   = flag.String("from", "world,0,64,0", "first anchor as world,x,y,z")
		to     = flag.String("to", "world_nether,0,40,0", "second anchor as world,x,y,z")
		tags   = flag.String("tags", "bot=1", "key tags as name=level,...")
		face   = flag.String("face", "NORTH", "face to enter the first anchor through")
		notice = flag.Bool("notices", false, "log NOTICE messages")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	a, err := parseLoc(*from)
	if err != nil {
		logger.Fatalf("-from: %v", err)
	}
	b, err := parseLoc(*to)
	if err != nil {
		logger.Fatalf("-to: %v", err)
	}
	tagMap, err := parseTags(*tags)
	if err != nil {
		logger.Fatalf("-tags: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ActorName:       *name,
		Capabilities:    protocol.HelloCapabilities{Notices: *notice, MaxQueue: 32},
		WorldPreference: a.World,
		Spawn:           &[3]float64{float64(a.Pos[0]) + 0.5, float64(a.Pos[1]), float64(a.Pos[2]) - 1.5},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}
	var w protocol.WelcomeMsg
	if err := readInto(conn, &w); err != nil || w.Type != protocol.TypeWelcome {
		logger.Fatalf("WELCOME: %v", err)
	}
	logger.Printf("WELCOME actor_id=%s world=%s worlds=%v tick_rate=%d", w.ActorID, w.CurrentWorldID, w.Worlds, w.Params.TickRateHz)

	c := &client{conn: conn, log: logger, notices: *notice}
	for _, l := range []protocol.Loc{a, b} {
		c.must(map[string]any{"type": protocol.TypePlace, "loc": offset(l, -1), "material": w.Params.Frame})
		c.must(map[string]any{"type": protocol.TypePlace, "loc": offset(l, 1), "material": w.Params.Frame})
		c.must(map[string]any{"type": protocol.TypePlace, "loc": l, "material": w.Params.PassiveAnchor, "facing": w.Params.DefaultFacing})
	}
	key := c.must(map[string]any{"type": protocol.TypeGiveKey, "tags": tagMap, "count": 2})
	item := key.Data
	for _, l := range []protocol.Loc{a, b} {
		r := c.must(map[string]any{"type": protocol.TypeInteract, "loc": l, "item": item})
		logger.Printf("INTERACT %v: ok=%v outcome=%s", l, r.OK, r.Outcome)
		if data, ok := r.Data.(map[string]any); ok {
			item = data["item"]
		}
	}
	r := c.must(map[string]any{"type": protocol.TypeEnter, "loc": a, "face": strings.ToUpper(*face)})
	logger.Printf("ENTER: moved=%v outcome=%s placement=%v", r.OK, r.Outcome, r.Data)

	if *notice {
		// Give the server a moment to flush trailing notices.
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}
}

type client struct {
	conn    *websocket.Conn
	log     *log.Logger
	notices bool
	next    int
}

// must sends msg and waits for its RESULT. An ERROR reply is fatal.
func (c *client) must(msg map[string]any) protocol.ResultMsg {
	c.next++
	reqID := fmt.Sprintf("R%d", c.next)
	msg["protocol_version"] = protocol.Version
	msg["req_id"] = reqID
	if err := c.conn.WriteJSON(msg); err != nil {
		c.log.Fatalf("send %s: %v", msg["type"], err)
	}
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Fatalf("read: %v", err)
		}
		base, err := protocol.DecodeBase(raw)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeNotice:
			if c.notices {
				c.log.Printf("NOTICE %s", raw)
			}
		case protocol.TypeError:
			var e protocol.ErrorMsg
			_ = json.Unmarshal(raw, &e)
			c.log.Fatalf("%s failed: %s %s", msg["type"], e.Code, e.Message)
		case protocol.TypeResult:
			if base.ReqID != reqID {
				continue
			}
			var res protocol.ResultMsg
			if err := json.Unmarshal(raw, &res); err != nil {
				c.log.Fatalf("decode RESULT: %v", err)
			}
			return res
		}
	}
}

func readInto(conn *websocket.Conn, v any) error {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func offset(l protocol.Loc, dy int) protocol.Loc {
	l.Pos[1] += dy
	return l
}

func parseLoc(s string) (protocol.Loc, error) {
	l, ok := geom.ParseLocationKey(s)
	if !ok {
		return protocol.Loc{}, fmt.Errorf("want world,x,y,z: %q", s)
	}
	return protocol.Loc{World: l.World, Pos: [3]int{l.X, l.Y, l.Z}}, nil
}

func parseTags(s string) (map[string]int, error) {
	out := map[string]int{}
	for _, seg := range strings.Split(s, ",") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		name, level, ok := strings.Cut(seg, "=")
		if !ok {
			return nil, fmt.Errorf("want name=level: %q", seg)
		}
		var n int
		if _, err := fmt.Sscanf(level, "%d", &n); err != nil {
			return nil, fmt.Errorf("bad level %q", level)
		}
		out[name] = n
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no tags")
	}
	return out, nil
}
