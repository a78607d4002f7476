package protocol

// Loc is a block location on the wire.
type Loc struct {
	World string `json:"world"`
	Pos   [3]int `json:"pos"`
}

// Item is a key object (or any held stack) on the wire.
type Item struct {
	Kind   string         `json:"kind"`
	Count  int            `json:"count,omitempty"`
	Label  string         `json:"label,omitempty"`
	Marker string         `json:"marker,omitempty"`
	Tags   map[string]int `json:"tags,omitempty"`
	Link   string         `json:"link,omitempty"`
}

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ActorName       string            `json:"actor_name"`
	Capabilities    HelloCapabilities `json:"capabilities"`
	// WorldPreference and Spawn place the actor; both are optional.
	WorldPreference string      `json:"world_preference,omitempty"`
	Spawn           *[3]float64 `json:"spawn,omitempty"`
	Creative        bool        `json:"creative,omitempty"`
}

type HelloCapabilities struct {
	Notices  bool `json:"notices,omitempty"`
	MaxQueue int  `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	SessionID       string       `json:"session_id"`
	ActorID         string       `json:"actor_id"`
	CurrentWorldID  string       `json:"current_world_id"`
	Worlds          []string     `json:"worlds"`
	Params          ServerParams `json:"params"`
}

type ServerParams struct {
	TickRateHz    int    `json:"tick_rate_hz"`
	DefaultFacing string `json:"default_facing"`
	Frame         string `json:"frame"`
	PassiveAnchor string `json:"passive_anchor"`
	ActiveAnchor  string `json:"active_anchor"`
	KeyKind       string `json:"key_kind"`
	TuningDigest  string `json:"tuning_digest,omitempty"`
}

// INTERACT uses the held item on the block at Loc.
type InteractMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Loc             Loc    `json:"loc"`
	Item            Item   `json:"item"`
}

type BreakMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Loc             Loc    `json:"loc"`
}

// ENTER reports that the actor touched the anchor at Loc through Face.
type EnterMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	ReqID           string  `json:"req_id"`
	Loc             Loc     `json:"loc"`
	Face            string  `json:"face"`
	Yaw             float64 `json:"yaw"`
	Pitch           float64 `json:"pitch"`
}

type PlaceMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Loc             Loc    `json:"loc"`
	Material        string `json:"material"`
	Facing          string `json:"facing,omitempty"`
}

type GiveKeyMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	ReqID           string         `json:"req_id"`
	Link            string         `json:"link,omitempty"`
	Tags            map[string]int `json:"tags,omitempty"`
	Count           int            `json:"count,omitempty"`
	Drop            bool           `json:"drop,omitempty"`
	Loc             *Loc           `json:"loc,omitempty"`
}

// WorldMsg carries LOAD_WORLD and UNLOAD_WORLD.
type WorldMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	WorldID         string `json:"world_id"`
}

// RESULT (server -> client) answers one request. OK mirrors the operation's
// own outcome; transport-level failures use ERROR instead.
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	For             string `json:"for"`
	OK              bool   `json:"ok"`
	Outcome         string `json:"outcome,omitempty"`
	Tick            uint64 `json:"tick,omitempty"`
	Data            any    `json:"data,omitempty"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

// NOTICE (server -> client) pushes world effects, dropped items, actor moves
// and engine events.
type NoticeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Kind            string `json:"kind"`
	Loc             *Loc   `json:"loc,omitempty"`
	Effect          string `json:"effect,omitempty"`
	Item            *Item  `json:"item,omitempty"`
	Actor           *Actor `json:"actor,omitempty"`
	Event           any    `json:"event,omitempty"`
}

type Actor struct {
	ID    string     `json:"id"`
	World string     `json:"world"`
	Pos   [3]float64 `json:"pos"`
	Yaw   float64    `json:"yaw"`
	Pitch float64    `json:"pitch"`
}

// Placement is the ENTER result payload.
type Placement struct {
	Link   string     `json:"link,omitempty"`
	Exit   *Loc       `json:"exit,omitempty"`
	World  string     `json:"world,omitempty"`
	Pos    [3]float64 `json:"pos"`
	Yaw    float64    `json:"yaw"`
	Pitch  float64    `json:"pitch"`
	Emerge string     `json:"emerge,omitempty"`
}
