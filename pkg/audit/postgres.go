package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/digiquarium/bouncer/pkg/session"
)

// PostgresArchive mirrors audit events and transcripts into Postgres for
// retention beyond the gateway host. Inserts use short timeouts so a slow
// database cannot stall a visitor's request path.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id          BIGSERIAL PRIMARY KEY,
	session_id  TEXT        NOT NULL,
	kind        TEXT        NOT NULL,
	detail      JSONB,
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_events_session_idx ON audit_events (session_id);

CREATE TABLE IF NOT EXISTS transcripts (
	session_id  TEXT PRIMARY KEY,
	snapshot    JSONB       NOT NULL,
	archived_at TIMESTAMPTZ NOT NULL
);
`

// NewPostgresArchive connects to databaseURL and ensures the archive tables
// exist.
func NewPostgresArchive(ctx context.Context, databaseURL string) (*PostgresArchive, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, archiveSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure archive schema: %w", err)
	}

	return &PostgresArchive{pool: pool}, nil
}

// ArchiveEvent implements Archiver.
func (a *PostgresArchive) ArchiveEvent(e Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	detail, err := json.Marshal(e.Detail)
	if err != nil {
		return fmt.Errorf("marshal detail: %w", err)
	}

	_, err = a.pool.Exec(ctx,
		`INSERT INTO audit_events (session_id, kind, detail, occurred_at) VALUES ($1, $2, $3, $4)`,
		e.SessionID, e.Kind, detail, e.Time,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ArchiveTranscript implements Archiver.
func (a *PostgresArchive) ArchiveTranscript(snap session.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = a.pool.Exec(ctx,
		`INSERT INTO transcripts (session_id, snapshot, archived_at) VALUES ($1, $2, $3)
		 ON CONFLICT (session_id) DO UPDATE SET snapshot = EXCLUDED.snapshot, archived_at = EXCLUDED.archived_at`,
		snap.ID, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (a *PostgresArchive) Close() {
	a.pool.Close()
}
