package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// World state.
	ErrWorldBusy   = "E_WORLD_BUSY"
	ErrWorldClosed = "E_WORLD_CLOSED"

	// Edit layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrInvalidBlock  = "E_INVALID_BLOCK"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrChunkNotReady = "E_CHUNK_NOT_READY"
	ErrNoChange      = "E_NO_CHANGE"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrWorldBusy:       {},
	ErrWorldClosed:     {},
	ErrBadRequest:      {},
	ErrInvalidBlock:    {},
	ErrInvalidTarget:   {},
	ErrChunkNotReady:   {},
	ErrNoChange:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
