package spectatorproto

import "fmt"

const (
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Session.
	ErrAuthRequired = "E_AUTH_REQUIRED"
	ErrAuthExpired  = "E_AUTH_EXPIRED"
	ErrNameTaken    = "E_NAME_TAKEN"
	ErrServerFull   = "E_SERVER_FULL"

	// Commands.
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrRateLimit     = "E_RATE_LIMIT"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrAuthRequired:    {},
	ErrAuthExpired:     {},
	ErrNameTaken:       {},
	ErrServerFull:      {},
	ErrInvalidTarget:   {},
	ErrRateLimit:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// IsFatalCode reports whether the server ends the session after sending code.
// Command-level codes leave the session usable.
func IsFatalCode(code string) bool {
	switch code {
	case ErrInvalidTarget, ErrRateLimit:
		return false
	default:
		return true
	}
}

// ServerError is an ERROR message surfaced as a Go error.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error %s", e.Code)
	}
	return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
}
