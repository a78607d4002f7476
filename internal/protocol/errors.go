package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// World routing/state.
	ErrWorldNotFound  = "E_WORLD_NOT_FOUND"
	ErrWorldNotLoaded = "E_WORLD_NOT_LOADED"
	ErrWorldDenied    = "E_WORLD_DENIED"

	// Request layer.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrNoPermission = "E_NO_PERMISSION"
	ErrUnavailable  = "E_UNAVAILABLE"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrWorldNotFound:   {},
	ErrWorldNotLoaded:  {},
	ErrWorldDenied:     {},
	ErrBadRequest:      {},
	ErrNoPermission:    {},
	ErrUnavailable:     {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
