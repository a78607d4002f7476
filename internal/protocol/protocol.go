package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"

	// Requests (client -> server).
	TypeInteract    = "INTERACT"
	TypeBreak       = "BREAK"
	TypeEnter       = "ENTER"
	TypePlace       = "PLACE"
	TypeGiveKey     = "GIVE_KEY"
	TypeSave        = "SAVE"
	TypeLoadWorld   = "LOAD_WORLD"
	TypeUnloadWorld = "UNLOAD_WORLD"
	TypeStats       = "STATS"

	// Replies and pushes (server -> client).
	TypeResult = "RESULT"
	TypeError  = "ERROR"
	TypeNotice = "NOTICE"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	ReqID           string `json:"req_id,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
