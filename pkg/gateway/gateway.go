// Package gateway is the mediation core: it admits visitors to tanks, runs
// every message through the content policy in both directions, and enforces
// session lifetime and escalation rules.
package gateway

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/digiquarium/bouncer/pkg/audit"
	"github.com/digiquarium/bouncer/pkg/banlist"
	"github.com/digiquarium/bouncer/pkg/distress"
	"github.com/digiquarium/bouncer/pkg/filter"
	"github.com/digiquarium/bouncer/pkg/identity"
	"github.com/digiquarium/bouncer/pkg/patterns"
	"github.com/digiquarium/bouncer/pkg/pool"
	"github.com/digiquarium/bouncer/pkg/ratelimit"
	"github.com/digiquarium/bouncer/pkg/session"
	"github.com/digiquarium/bouncer/pkg/telemetry"
)

// Generator produces specimen responses. Implemented by *specimen.Client;
// tests substitute their own.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Options wires a Gateway's collaborators.
type Options struct {
	AccessSecret string
	Hasher       *identity.Hasher
	Bans         banlist.Store
	Limiter      *ratelimit.Limiter
	Pool         *pool.Pool
	Registry     *session.Registry
	Generator    Generator
	Audit        *audit.Logger
	Classifier   *filter.Classifier // defaults to filter.NewClassifier()
	Scorer       *distress.Scorer   // defaults to distress.NewScorer()
}

// Gateway mediates all visitor access to the specimen tanks.
type Gateway struct {
	secret     string
	hasher     *identity.Hasher
	bans       banlist.Store
	limiter    *ratelimit.Limiter
	pool       *pool.Pool
	registry   *session.Registry
	gen        Generator
	audit      *audit.Logger
	classifier *filter.Classifier
	scorer     *distress.Scorer
	counters   telemetry.Counters

	// admitMu serializes admission so the duplicate-session check and the
	// tank acquisition act as one step.
	admitMu sync.Mutex
}

// New creates a gateway.
func New(opts Options) *Gateway {
	g := &Gateway{
		secret:     opts.AccessSecret,
		hasher:     opts.Hasher,
		bans:       opts.Bans,
		limiter:    opts.Limiter,
		pool:       opts.Pool,
		registry:   opts.Registry,
		gen:        opts.Generator,
		audit:      opts.Audit,
		classifier: opts.Classifier,
		scorer:     opts.Scorer,
	}
	if g.classifier == nil {
		g.classifier = filter.NewClassifier()
	}
	if g.scorer == nil {
		g.scorer = distress.NewScorer()
	}
	return g
}

// StartSweep begins background expiry of idle and overlong sessions.
func (g *Gateway) StartSweep() {
	g.registry.StartSweep(func(sessionID, reason string) {
		if err := g.EndSession(sessionID, reason); err != nil {
			log.Printf("[SWEEP] end session %s: %v", sessionID, err)
		}
	})
}

// Close stops background work.
func (g *Gateway) Close() {
	g.registry.Close()
}

// StartResult describes a successful admission.
type StartResult struct {
	SessionID string `json:"session_id"`
	TankID    string `json:"tank_id"`
	Specimen  string `json:"specimen"`
}

// StartSession admits a visitor. Checks run in a fixed order: ban, then
// credential, then rate limits, then the single-session rule, then tank
// capacity. The first failing check refuses the attempt and nothing is
// counted against the visitor's quota.
func (g *Gateway) StartSession(ctx context.Context, rawIdentity, secret string) (StartResult, error) {
	token := g.hasher.Token(rawIdentity)

	banned, err := g.bans.Contains(ctx, token)
	if err != nil {
		return StartResult{}, fmt.Errorf("ban check: %w", err)
	}
	if banned {
		g.counters.Refused.Add(1)
		return StartResult{}, ErrBanned
	}

	if subtle.ConstantTimeCompare([]byte(secret), []byte(g.secret)) != 1 {
		g.counters.Refused.Add(1)
		return StartResult{}, ErrBadCredential
	}

	if err := g.limiter.Check(ctx, token); err != nil {
		g.counters.Refused.Add(1)
		return StartResult{}, err
	}

	g.admitMu.Lock()
	defer g.admitMu.Unlock()

	if existing := g.registry.FindActiveByIdentity(token); existing != nil {
		g.counters.Refused.Add(1)
		return StartResult{}, ErrDuplicateSession
	}

	sessionID := identity.NewSessionID()
	tank, err := g.pool.Acquire(sessionID)
	if err != nil {
		g.counters.Refused.Add(1)
		return StartResult{}, err
	}

	sess := session.New(sessionID, token, tank.ID, tank.Specimen, tank.Model, g.registry.Now())
	if err := g.registry.Add(sess); err != nil {
		g.pool.Release(tank.ID)
		return StartResult{}, fmt.Errorf("register session: %w", err)
	}

	if err := g.limiter.Record(ctx, token); err != nil {
		log.Printf("[WARN] record admission for %s: %v", token, err)
	}

	g.counters.Admitted.Add(1)
	g.audit.Record(sessionID, audit.KindSessionStart, map[string]string{
		"identity": token,
		"tank":     tank.ID,
		"specimen": tank.Specimen,
	})
	log.Printf("[ADMIT] session %s: identity %s -> %s (%s)", sessionID, token, tank.ID, tank.Specimen)

	return StartResult{SessionID: sessionID, TankID: tank.ID, Specimen: tank.Specimen}, nil
}

// Reply is the outcome of one message submission.
type Reply struct {
	Response string `json:"response,omitempty"` // sanitized specimen response
	Warning  string `json:"warning,omitempty"`  // set when delivered with a warning
	Refused  bool   `json:"refused,omitempty"`  // message refused, session continues
	Ended    bool   `json:"ended,omitempty"`    // session reached a terminal state
	Notice   string `json:"notice,omitempty"`   // visitor-facing explanation
}

// SubmitMessage runs one visitor message through the full pipeline. The
// session lock is held for the whole round trip, so a session processes one
// message at a time.
func (g *Gateway) SubmitMessage(ctx context.Context, sessionID, text string) (Reply, error) {
	sess, err := g.registry.Get(sessionID)
	if err != nil {
		return Reply{}, err
	}

	sess.Lock()
	defer sess.Unlock()

	if sess.Status != session.StatusActive {
		return Reply{}, fmt.Errorf("%w: %s (%s)", ErrSessionNotActive, sess.Status, sess.EndReason)
	}

	now := g.registry.Now()
	if reason, expired := sess.CheckTimeout(g.registry.Limits(), now); expired {
		g.endLocked(ctx, sess, session.StatusEnded, reason)
		return Reply{Ended: true, Notice: reason}, nil
	}

	verdict := g.classifier.ClassifyInbound(text)
	switch verdict.Action {
	case patterns.ActionBanned:
		return g.banLocked(ctx, sess, text, verdict), nil
	case patterns.ActionBlocked:
		return g.blockLocked(ctx, sess, text, verdict), nil
	case patterns.ActionWarned:
		sess.Warnings++
		g.counters.Warned.Add(1)
		g.audit.Record(sess.ID, audit.KindWarned, map[string]string{
			"rule": verdict.Rule, "warnings": strconv.Itoa(sess.Warnings),
		})
	}

	// A failed generation only touches last_activity: the message is not
	// counted and nothing lands in the transcript.
	sess.LastActivity = now

	raw, err := g.gen.Generate(ctx, sess.Model, promptFor(sess.Specimen, text))
	if err != nil {
		g.counters.BackendErrors.Add(1)
		log.Printf("[WARN] generate for session %s: %v", sess.ID, err)
		return Reply{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	sanitized, fired := g.classifier.SanitizeOutbound(raw)
	if len(fired) > 0 {
		g.counters.Redacted.Add(1)
		g.audit.Record(sess.ID, audit.KindRedacted, map[string]string{
			"rules": fmt.Sprint(fired),
		})
	}

	sess.Append(session.Message{Role: "visitor", Content: text, Time: now, Rule: verdict.Rule})
	sess.Append(session.Message{Role: "specimen", Content: sanitized, Time: g.registry.Now(), Redacted: fired})
	sess.MessageCount++
	g.counters.Messages.Add(1)
	g.audit.Record(sess.ID, audit.KindMessage, map[string]string{
		"count": strconv.Itoa(sess.MessageCount),
	})

	res := g.scorer.Score(ctx, raw)
	if res.Flagged {
		sess.DistressFlags++
		g.counters.DistressFlags.Add(1)
		g.audit.Record(sess.ID, audit.KindDistress, map[string]string{
			"signals": fmt.Sprint(res.Signals),
			"flags":   strconv.Itoa(sess.DistressFlags),
		})

		if sess.DistressFlags >= g.registry.Limits().MaxDistressFlags {
			// The response stays in the transcript for review, but the
			// visitor only sees the termination notice.
			g.counters.Terminated.Add(1)
			g.endLocked(ctx, sess, session.StatusTerminated, session.ReasonDistress)
			return Reply{Ended: true, Notice: "Session terminated: " + session.ReasonDistress}, nil
		}
	}

	reply := Reply{Response: sanitized}
	if verdict.Action == patterns.ActionWarned {
		reply.Warning = verdict.Message
	}
	return reply, nil
}

// banLocked handles a harassment verdict: the identity is banned, the
// session ends, and any other active sessions of the identity are cascaded.
// Caller holds the session lock.
func (g *Gateway) banLocked(ctx context.Context, sess *session.Session, text string, verdict filter.Verdict) Reply {
	sess.Append(session.Message{Role: "visitor", Content: text, Time: g.registry.Now(), Rule: verdict.Rule})

	if err := g.bans.Add(ctx, sess.IdentityToken, verdict.Rule); err != nil {
		log.Printf("[WARN] persist ban for %s: %v", sess.IdentityToken, err)
	}
	g.counters.Bans.Add(1)
	g.audit.Record(sess.ID, audit.KindBan, map[string]string{
		"identity": sess.IdentityToken, "rule": verdict.Rule,
	})
	log.Printf("[AUDIT] identity %s banned (rule %s)", sess.IdentityToken, verdict.Rule)

	g.endLocked(ctx, sess, session.StatusBanned, session.ReasonBanned)

	// The locked session is already terminal; this sweeps up any other
	// active session the identity still holds.
	g.cascadeBan(ctx, sess.IdentityToken, sess.ID)

	return Reply{Ended: true, Notice: verdict.Message}
}

// blockLocked handles a blocking verdict. Caller holds the session lock.
func (g *Gateway) blockLocked(ctx context.Context, sess *session.Session, text string, verdict filter.Verdict) Reply {
	sess.LastActivity = g.registry.Now()
	sess.Blocks++
	g.counters.Blocked.Add(1)
	sess.Append(session.Message{Role: "visitor", Content: text, Time: g.registry.Now(), Rule: verdict.Rule})
	g.audit.Record(sess.ID, audit.KindBlocked, map[string]string{
		"rule": verdict.Rule, "category": verdict.Category, "blocks": strconv.Itoa(sess.Blocks),
	})

	if sess.Blocks >= g.registry.Limits().MaxBlocks {
		g.endLocked(ctx, sess, session.StatusEnded, session.ReasonBlockLimit)
		return Reply{Ended: true, Notice: "Session ended: " + session.ReasonBlockLimit}
	}

	return Reply{Refused: true, Notice: verdict.Message}
}

// endLocked moves a session to a terminal state and releases its resources.
// Idempotent. Caller holds the session lock.
func (g *Gateway) endLocked(ctx context.Context, sess *session.Session, status session.Status, reason string) {
	if !sess.End(status, reason) {
		return
	}

	g.pool.Release(sess.TankID)
	if err := g.limiter.StartCooldown(ctx, sess.IdentityToken); err != nil {
		log.Printf("[WARN] start cooldown for %s: %v", sess.IdentityToken, err)
	}

	g.audit.Record(sess.ID, audit.KindSessionEnd, map[string]string{
		"status": string(status), "reason": reason,
		"messages": strconv.Itoa(sess.MessageCount),
		"blocks":   strconv.Itoa(sess.Blocks),
		"warnings": strconv.Itoa(sess.Warnings),
	})
	g.audit.WriteTranscript(sess.SnapshotLocked())
	log.Printf("[END] session %s: %s (%s)", sess.ID, status, reason)
}

// EndSession ends a session normally. Safe to call on a session that has
// already ended.
func (g *Gateway) EndSession(sessionID, reason string) error {
	sess, err := g.registry.Get(sessionID)
	if err != nil {
		return err
	}

	sess.Lock()
	defer sess.Unlock()
	g.endLocked(context.Background(), sess, session.StatusEnded, reason)
	return nil
}

// EmergencyTerminate force-ends a session on operator request. The reason
// lands in the transcript and the audit log; empty means a generic operator
// termination. Idempotent.
func (g *Gateway) EmergencyTerminate(sessionID, reason string) error {
	if reason == "" {
		reason = session.ReasonOperator
	}

	sess, err := g.registry.Get(sessionID)
	if err != nil {
		return err
	}

	sess.Lock()
	defer sess.Unlock()
	if sess.Status == session.StatusActive {
		g.counters.Terminated.Add(1)
	}
	g.endLocked(context.Background(), sess, session.StatusTerminated, reason)
	return nil
}

// adminAuditID is the audit stream for operator actions that have no session
// of their own.
const adminAuditID = "admin"

// BanIdentity bans a token on operator request and terminates every active
// session it holds.
func (g *Gateway) BanIdentity(ctx context.Context, token, reason string) error {
	if err := g.bans.Add(ctx, token, reason); err != nil {
		return fmt.Errorf("persist ban: %w", err)
	}
	g.counters.Bans.Add(1)
	g.audit.Record(adminAuditID, audit.KindBan, map[string]string{
		"identity": token, "reason": reason,
	})
	log.Printf("[AUDIT] identity %s banned by operator (%s)", token, reason)

	g.cascadeBan(ctx, token, "")
	return nil
}

// cascadeBan ends every active session of a banned identity, skipping the
// session (if any) the caller is already holding locked.
func (g *Gateway) cascadeBan(ctx context.Context, token, skipID string) {
	for _, s := range g.registry.ActiveByIdentity(token) {
		if s.ID == skipID {
			continue
		}
		s.Lock()
		g.endLocked(ctx, s, session.StatusBanned, session.ReasonBanned)
		s.Unlock()
	}
}

// UnbanIdentity lifts a ban.
func (g *Gateway) UnbanIdentity(ctx context.Context, token string) error {
	if err := g.bans.Remove(ctx, token); err != nil {
		return fmt.Errorf("remove ban: %w", err)
	}
	g.audit.Record(adminAuditID, audit.KindUnban, map[string]string{
		"identity": token,
	})
	log.Printf("[AUDIT] identity %s unbanned", token)
	return nil
}

// Sessions returns snapshots of every tracked session, terminal ones
// included until the registry prunes them. Served by the admin surface.
func (g *Gateway) Sessions() []session.Snapshot {
	return g.registry.Snapshots()
}

// SessionStatus returns a snapshot of one session.
func (g *Gateway) SessionStatus(sessionID string) (session.Snapshot, error) {
	sess, err := g.registry.Get(sessionID)
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Status is the gateway-wide view served by the status endpoint.
type Status struct {
	Capacity       int                `json:"capacity"`
	FreeTanks      int                `json:"free_tanks"`
	Occupancy      map[string]string  `json:"occupancy"` // tank ID -> session ID
	ActiveSessions int                `json:"active_sessions"`
	Bans           int                `json:"bans"`
	Counters       telemetry.Snapshot `json:"counters"`
}

// GetStatus reports pool occupancy and counters.
func (g *Gateway) GetStatus(ctx context.Context) Status {
	bans, err := g.bans.Count(ctx)
	if err != nil {
		log.Printf("[WARN] ban count: %v", err)
	}
	return Status{
		Capacity:       g.pool.Capacity(),
		FreeTanks:      g.pool.Free(),
		Occupancy:      g.pool.Occupancy(),
		ActiveSessions: g.registry.ActiveCount(),
		Bans:           bans,
		Counters:       g.counters.Snapshot(),
	}
}

// Hasher exposes the identity hasher so the HTTP layer can derive tokens.
func (g *Gateway) Hasher() *identity.Hasher {
	return g.hasher
}

// promptFor frames the visitor's text for the specimen's persona. The
// specimen never sees raw transport metadata, only the conversation.
func promptFor(specimen, text string) string {
	return fmt.Sprintf(
		"You are %s, a specimen in a public digital aquarium. A visitor says to you:\n\n%s\n\nRespond in character, briefly and kindly.",
		specimen, text,
	)
}
