package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Board routing/state.
	ErrNotFound      = "E_NOT_FOUND"
	ErrNotAwaiting   = "E_NOT_AWAITING"
	ErrBiddingClosed = "E_BIDDING_CLOSED"

	// Session and request layer.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrNoPermission = "E_NO_PERMISSION"
	ErrConflict     = "E_CONFLICT"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrNotFound:        {},
	ErrNotAwaiting:     {},
	ErrBiddingClosed:   {},
	ErrBadRequest:      {},
	ErrNoPermission:    {},
	ErrConflict:        {},
	ErrInternal:        {},
}

// IsKnownCode reports whether code may appear in an ERROR or BID_RESULT
// message. The empty code means success.
func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
