package protocol

const (
	// Transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrBadVersion      = "E_BAD_VERSION"

	// Control layer.
	ErrUnknownCommand = "E_UNKNOWN_COMMAND"
	ErrBusy           = "E_BUSY"
	ErrReadOnly       = "E_READ_ONLY"
	ErrInternal       = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadVersion:      {},
	ErrUnknownCommand:  {},
	ErrBusy:            {},
	ErrReadOnly:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
