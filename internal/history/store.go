package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Row is one persisted job status.
type Row struct {
	WorkspaceID string
	Status      string
	Error       string
	ReceivedAt  time.Time
}

// Store persists batches of rows.
type Store interface {
	Insert(ctx context.Context, rows []Row) error
}

// DB is the subset of *pgxpool.Pool used by PGStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS job_status_events (
	id           BIGSERIAL PRIMARY KEY,
	workspace_id TEXT        NOT NULL,
	status       TEXT        NOT NULL,
	error        TEXT        NOT NULL DEFAULT '',
	received_at  TIMESTAMPTZ NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS job_status_events_workspace_idx
	ON job_status_events (workspace_id, received_at DESC);
`

const insertSQL = `
	INSERT INTO job_status_events (workspace_id, status, error, received_at)
	VALUES ($1, $2, $3, $4)
`

// PGStore writes rows to the job_status_events table.
type PGStore struct {
	db DB
}

// NewPGStore creates a store on db, typically a *pgxpool.Pool.
func NewPGStore(db DB) *PGStore {
	return &PGStore{db: db}
}

// EnsureSchema creates the job_status_events table if it does not exist.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure job_status_events schema: %w", err)
	}
	return nil
}

// Insert writes rows in a single pgx.Batch round trip.
func (s *PGStore) Insert(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertSQL, r.WorkspaceID, r.Status, r.Error, r.ReceivedAt)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	return nil
}
