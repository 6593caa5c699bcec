// Package session holds per-visitor conversation state and the registry that
// tracks live sessions. Sessions are single-flight: the gateway holds a
// session's lock for the whole of one message round trip, so counters and
// the transcript never interleave.
package session

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusQueued is reserved for a future waiting-line feature; no code
	// path currently creates a queued session.
	StatusQueued     Status = "queued"
	StatusActive     Status = "active"
	StatusEnded      Status = "ended"      // normal end: visitor left, timeout, or block limit
	StatusTerminated Status = "terminated" // operator or distress termination
	StatusBanned     Status = "banned"     // ended by banning the identity
)

// Terminal reports whether the session can never become active again.
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusTerminated || s == StatusBanned
}

// Limits bound a session's lifetime.
type Limits struct {
	MaxDuration time.Duration // wall-clock cap from session start
	IdleTimeout time.Duration // cap on the gap since last activity
	MaxMessages int           // visitor message cap

	MaxBlocks        int // blocked messages before the session ends
	MaxDistressFlags int // flagged responses before termination
}

// DefaultLimits are the production session bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxDuration:      30 * time.Minute,
		IdleTimeout:      5 * time.Minute,
		MaxMessages:      50,
		MaxBlocks:        3,
		MaxDistressFlags: 2,
	}
}

// Message is one entry in a session transcript.
type Message struct {
	Role     string    `json:"role"` // "visitor" or "specimen"
	Content  string    `json:"content"`
	Time     time.Time `json:"time"`
	Rule     string    `json:"rule,omitempty"`     // matched rule, for audit
	Redacted []string  `json:"redacted,omitempty"` // outbound rules that fired
}

// End reasons shown to visitors and written to the audit log.
const (
	ReasonVisitorLeft      = "visitor left"
	ReasonClientDisconnect = "client disconnect"
	ReasonTimeLimit        = "session time limit reached"
	ReasonIdle             = "session ended due to inactivity"
	ReasonMessageLimit     = "message limit reached"
	ReasonBlockLimit       = "too many policy violations"
	ReasonDistress         = "specimen distress"
	ReasonOperator         = "terminated by operator"
	ReasonBanned           = "banned"
)

// Session is one visitor conversation. The zero value is not usable; create
// through New. Callers mutate fields directly while holding the lock.
type Session struct {
	mu sync.Mutex

	ID            string
	IdentityToken string
	TankID        string
	Specimen      string
	Model         string // backend model override from the tank, may be empty

	Status       Status
	EndReason    string
	StartedAt    time.Time
	LastActivity time.Time

	Transcript    []Message
	MessageCount  int // visitor messages delivered to the specimen
	Blocks        int
	Warnings      int
	DistressFlags int
}

// New creates an active session.
func New(id, identityToken, tankID, specimen, model string, now time.Time) *Session {
	return &Session{
		ID:            id,
		IdentityToken: identityToken,
		TankID:        tankID,
		Specimen:      specimen,
		Model:         model,
		Status:        StatusActive,
		StartedAt:     now,
		LastActivity:  now,
	}
}

// Lock takes the session's lock. The gateway holds it across a whole message
// round trip.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session's lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// CheckTimeout reports whether the session has exceeded a lifetime bound.
// Checks run duration, then idle, then message count; the first hit names
// the end reason. Caller must hold the lock.
func (s *Session) CheckTimeout(limits Limits, now time.Time) (string, bool) {
	if limits.MaxDuration > 0 && now.Sub(s.StartedAt) >= limits.MaxDuration {
		return ReasonTimeLimit, true
	}
	if limits.IdleTimeout > 0 && now.Sub(s.LastActivity) >= limits.IdleTimeout {
		return ReasonIdle, true
	}
	if limits.MaxMessages > 0 && s.MessageCount >= limits.MaxMessages {
		return ReasonMessageLimit, true
	}
	return "", false
}

// End moves the session to a terminal status. Idempotent: a session that is
// already terminal keeps its first status and reason. Caller must hold the
// lock. Returns false if the session was already terminal.
func (s *Session) End(status Status, reason string) bool {
	if s.Status.Terminal() {
		return false
	}
	s.Status = status
	s.EndReason = reason
	return true
}

// Append adds a message to the transcript. Caller must hold the lock.
func (s *Session) Append(m Message) {
	s.Transcript = append(s.Transcript, m)
}

// Snapshot returns a copy of the session safe to read without the lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SnapshotLocked()
}

// SnapshotLocked is Snapshot for callers that already hold the lock.
func (s *Session) SnapshotLocked() Snapshot {
	transcript := make([]Message, len(s.Transcript))
	copy(transcript, s.Transcript)

	return Snapshot{
		ID:            s.ID,
		IdentityToken: s.IdentityToken,
		TankID:        s.TankID,
		Specimen:      s.Specimen,
		Status:        s.Status,
		EndReason:     s.EndReason,
		StartedAt:     s.StartedAt,
		LastActivity:  s.LastActivity,
		Transcript:    transcript,
		MessageCount:  s.MessageCount,
		Blocks:        s.Blocks,
		Warnings:      s.Warnings,
		DistressFlags: s.DistressFlags,
	}
}

// Snapshot is an immutable copy of session state.
type Snapshot struct {
	ID            string    `json:"id"`
	IdentityToken string    `json:"identity_token"`
	TankID        string    `json:"tank_id"`
	Specimen      string    `json:"specimen"`
	Status        Status    `json:"status"`
	EndReason     string    `json:"end_reason,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	LastActivity  time.Time `json:"last_activity"`
	Transcript    []Message `json:"transcript"`
	MessageCount  int       `json:"message_count"`
	Blocks        int       `json:"blocks"`
	Warnings      int       `json:"warnings"`
	DistressFlags int       `json:"distress_flags"`
}
