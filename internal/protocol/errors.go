package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Engine/save layer.
	ErrBadRequest  = "E_BAD_REQUEST"
	ErrBlocked     = "E_BLOCKED"
	ErrUnsupported = "E_UNSUPPORTED"
	ErrInternal    = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrBlocked:         {},
	ErrUnsupported:     {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
