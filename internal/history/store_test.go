package history

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeResults struct {
	execs  int
	failAt int // 1-based; 0 = never
	closed bool
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	r.execs++
	if r.failAt == r.execs {
		return pgconn.CommandTag{}, errors.New("duplicate key")
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not implemented") }
func (r *fakeResults) QueryRow() pgx.Row        { return nil }
func (r *fakeResults) Close() error             { r.closed = true; return nil }

type fakeDB struct {
	execSQL []string
	batch   *pgx.Batch
	results *fakeResults
	execErr error
}

func (d *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.execSQL = append(d.execSQL, sql)
	return pgconn.CommandTag{}, d.execErr
}

func (d *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	d.batch = b
	return d.results
}

func TestPGStore_Insert(t *testing.T) {
	db := &fakeDB{results: &fakeResults{}}
	s := NewPGStore(db)

	at := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	rows := []Row{
		{WorkspaceID: "ws-1", Status: "complete", ReceivedAt: at},
		{WorkspaceID: "ws-1", Status: "failed", Error: "oom", ReceivedAt: at},
	}

	if err := s.Insert(context.Background(), rows); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if db.batch.Len() != 2 {
		t.Fatalf("batch len = %d, want 2", db.batch.Len())
	}
	q := db.batch.QueuedQueries[1]
	if !strings.Contains(q.SQL, "INSERT INTO job_status_events") {
		t.Errorf("SQL = %q", q.SQL)
	}
	if len(q.Arguments) != 4 || q.Arguments[2] != "oom" {
		t.Errorf("Arguments = %v", q.Arguments)
	}
	if db.results.execs != 2 {
		t.Errorf("execs = %d, want 2", db.results.execs)
	}
	if !db.results.closed {
		t.Error("batch results not closed")
	}
}

func TestPGStore_InsertError(t *testing.T) {
	db := &fakeDB{results: &fakeResults{failAt: 2}}
	s := NewPGStore(db)

	rows := []Row{{WorkspaceID: "a"}, {WorkspaceID: "b"}, {WorkspaceID: "c"}}
	err := s.Insert(context.Background(), rows)
	if err == nil || !strings.Contains(err.Error(), "insert row 1") {
		t.Errorf("Insert() error = %v, want row 1 failure", err)
	}
	if !db.results.closed {
		t.Error("batch results not closed after error")
	}
}

func TestPGStore_InsertEmpty(t *testing.T) {
	db := &fakeDB{}
	if err := NewPGStore(db).Insert(context.Background(), nil); err != nil {
		t.Errorf("Insert(nil) error = %v", err)
	}
	if db.batch != nil {
		t.Error("empty insert should not send a batch")
	}
}

func TestPGStore_EnsureSchema(t *testing.T) {
	db := &fakeDB{}
	s := NewPGStore(db)

	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if len(db.execSQL) != 1 || !strings.Contains(db.execSQL[0], "CREATE TABLE IF NOT EXISTS job_status_events") {
		t.Errorf("exec SQL = %v", db.execSQL)
	}

	db.execErr = errors.New("permission denied")
	if err := s.EnsureSchema(context.Background()); err == nil {
		t.Error("expected error")
	}
}
