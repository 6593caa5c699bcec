package session

import (
	"errors"
	"log"
	"sync"
	"time"
)

// ErrNotFound is returned when a session ID is unknown.
var ErrNotFound = errors.New("session not found")

// ErrDuplicateID is returned when a session ID is already registered.
var ErrDuplicateID = errors.New("duplicate session ID")

// SweepInterval is how often the registry scans for expired sessions. A
// visitor who walks away mid-conversation still gets their tank reclaimed
// within one interval of the idle timeout.
const SweepInterval = 30 * time.Second

// TerminalRetention is how long a terminal session stays queryable before
// the sweep forgets it. Transcripts are on disk by then; the registry only
// keeps the tail so status lookups on a just-ended session still resolve.
const TerminalRetention = time.Hour

// ExpireFunc is called by the sweep loop for each session that has exceeded
// a lifetime bound. Called without any locks held; the callback owns its own
// locking and must tolerate the session having been ended concurrently.
type ExpireFunc func(sessionID, reason string)

// Registry tracks live sessions by ID. It keeps terminal sessions around
// until the owner removes them, so status queries on a just-ended session
// still resolve.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	limits   Limits
	onExpire ExpireFunc
	now      func() time.Time

	stopSweep chan struct{}
	closeOnce sync.Once
}

// NewRegistry creates a registry. The sweep loop does not start until
// StartSweep is called.
func NewRegistry(limits Limits) *Registry {
	return &Registry{
		sessions:  make(map[string]*Session),
		limits:    limits,
		now:       time.Now,
		stopSweep: make(chan struct{}),
	}
}

// SetClock overrides the time source for tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Now returns the registry's current time.
func (r *Registry) Now() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.now()
}

// Limits returns the configured session bounds.
func (r *Registry) Limits() Limits {
	return r.limits
}

// Add registers a session.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID]; exists {
		return ErrDuplicateID
	}
	r.sessions[s.ID] = s
	return nil
}

// Get returns the session for an ID.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Remove forgets a session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// all copies the session pointers out so callers can take session locks
// without holding the registry lock. Taking both at once invites lock-order
// cycles with the gateway, which holds a session lock while reading the
// registry clock.
func (r *Registry) all() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// FindActiveByIdentity returns the active session for an identity token, or
// nil. One identity holds at most one active session, enforced by the
// gateway at admission.
func (r *Registry) FindActiveByIdentity(token string) *Session {
	for _, s := range r.all() {
		s.Lock()
		match := s.IdentityToken == token && s.Status == StatusActive
		s.Unlock()
		if match {
			return s
		}
	}
	return nil
}

// ActiveByIdentity returns every active session belonging to an identity.
// Used by the ban cascade.
func (r *Registry) ActiveByIdentity(token string) []*Session {
	var out []*Session
	for _, s := range r.all() {
		s.Lock()
		match := s.IdentityToken == token && s.Status == StatusActive
		s.Unlock()
		if match {
			out = append(out, s)
		}
	}
	return out
}

// ActiveCount returns the number of active sessions.
func (r *Registry) ActiveCount() int {
	n := 0
	for _, s := range r.all() {
		s.Lock()
		if s.Status == StatusActive {
			n++
		}
		s.Unlock()
	}
	return n
}

// Snapshots returns copies of every tracked session.
func (r *Registry) Snapshots() []Snapshot {
	sessions := r.all()
	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// StartSweep launches the background expiry loop.
func (r *Registry) StartSweep(onExpire ExpireFunc) {
	r.mu.Lock()
	r.onExpire = onExpire
	r.mu.Unlock()

	go r.sweepLoop()
}

func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweepOnce()
		case <-r.stopSweep:
			return
		}
	}
}

// sweepOnce finds expired active sessions and hands them to the expire
// callback, then prunes terminal sessions past retention. The callback runs
// outside all registry and session locks and re-checks state itself, so a
// session ended between scan and callback is handled idempotently.
func (r *Registry) sweepOnce() {
	r.mu.RLock()
	onExpire := r.onExpire
	now := r.now()
	r.mu.RUnlock()
	sessions := r.all()

	if onExpire == nil {
		return
	}

	type expired struct {
		id     string
		reason string
	}
	var hits []expired
	var stale []string

	for _, s := range sessions {
		s.Lock()
		switch {
		case s.Status == StatusActive:
			if reason, ok := s.CheckTimeout(r.limits, now); ok {
				hits = append(hits, expired{s.ID, reason})
			}
		case s.Status.Terminal() && now.Sub(s.LastActivity) >= TerminalRetention:
			stale = append(stale, s.ID)
		}
		s.Unlock()
	}

	for _, h := range hits {
		log.Printf("[SWEEP] session %s expired: %s", h.id, h.reason)
		onExpire(h.id, h.reason)
	}
	for _, id := range stale {
		r.Remove(id)
		log.Printf("[SWEEP] session %s pruned after retention", id)
	}
}

// Close stops the sweep loop. Safe to call more than once.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.stopSweep)
	})
}
