// Package audit writes the gateway's durable record: one JSONL event stream
// per session, a transcript file when the session ends, and optionally a
// Postgres archive. Audit writes are best-effort; a failed write is logged
// and never fails the visitor's request.
package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/digiquarium/bouncer/pkg/session"
)

// Event is one line in a session's JSONL log. Detail keys hold rule names
// and counters, never raw visitor identifiers.
type Event struct {
	Time      time.Time         `json:"time"`
	SessionID string            `json:"session_id"`
	Kind      string            `json:"kind"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// Event kinds.
const (
	KindSessionStart = "session_start"
	KindMessage      = "message"
	KindBlocked      = "blocked"
	KindWarned       = "warned"
	KindRedacted     = "redacted"
	KindDistress     = "distress"
	KindSessionEnd   = "session_end"
	KindBan          = "ban"
	KindUnban        = "unban"
)

// Archiver is the optional durable sink behind the file log. Implemented by
// *PostgresArchive.
type Archiver interface {
	ArchiveEvent(e Event) error
	ArchiveTranscript(snap session.Snapshot) error
}

// Logger appends events to per-session JSONL files under
// <dir>/visitor_sessions/ and writes a transcript JSON when a session ends.
type Logger struct {
	mu      sync.Mutex
	dir     string
	archive Archiver
}

// NewLogger creates the log directory and returns a logger.
func NewLogger(dir string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Join(dir, "visitor_sessions"), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	return &Logger{dir: dir}, nil
}

// SetArchive attaches a durable archive sink.
func (l *Logger) SetArchive(a Archiver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.archive = a
}

func (l *Logger) eventPath(sessionID string) string {
	return filepath.Join(l.dir, "visitor_sessions", sessionID+".jsonl")
}

func (l *Logger) transcriptPath(sessionID string) string {
	return filepath.Join(l.dir, "visitor_sessions", sessionID+"_transcript.json")
}

// Record appends one event to the session's JSONL stream.
func (l *Logger) Record(sessionID, kind string, detail map[string]string) {
	e := Event{
		Time:      time.Now().UTC(),
		SessionID: sessionID,
		Kind:      kind,
		Detail:    detail,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	line, err := json.Marshal(e)
	if err != nil {
		log.Printf("[AUDIT] marshal event for %s: %v", sessionID, err)
		return
	}

	f, err := os.OpenFile(l.eventPath(sessionID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		log.Printf("[AUDIT] open event log for %s: %v", sessionID, err)
		return
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(line, '\n')); err != nil {
		log.Printf("[AUDIT] append event for %s: %v", sessionID, err)
	}

	if l.archive != nil {
		if err := l.archive.ArchiveEvent(e); err != nil {
			log.Printf("[AUDIT] archive event for %s: %v", sessionID, err)
		}
	}
}

// WriteTranscript persists the full session snapshot next to its event log.
// Called once when the session reaches a terminal state.
func (l *Logger) WriteTranscript(snap session.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		log.Printf("[AUDIT] marshal transcript for %s: %v", snap.ID, err)
		return
	}
	if err := os.WriteFile(l.transcriptPath(snap.ID), data, 0o600); err != nil {
		log.Printf("[AUDIT] write transcript for %s: %v", snap.ID, err)
	}

	if l.archive != nil {
		if err := l.archive.ArchiveTranscript(snap); err != nil {
			log.Printf("[AUDIT] archive transcript for %s: %v", snap.ID, err)
		}
	}
}
