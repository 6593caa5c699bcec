package gateway

import "errors"

// Admission and session errors surfaced to the HTTP layer. Messages shown to
// visitors come from these or from ratelimit.LimitError; internal detail
// stays in the logs.
var (
	ErrBadCredential      = errors.New("invalid access credential")
	ErrBanned             = errors.New("identity is banned")
	ErrDuplicateSession   = errors.New("identity already has an active session")
	ErrSessionNotActive   = errors.New("session is not active")
	ErrBackendUnavailable = errors.New("specimen backend unavailable")
)
