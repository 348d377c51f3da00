package core

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/elyra-ai/kfp-notebook/pkg/api"
)

// Store is a SQLite journal of node runs and the objects they moved.
type Store struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

const statusRunning = "running"

// Run is a journal row.
type Run struct {
	ID         string
	Pipeline   string
	File       string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Artifact is one fetch or put performed during a run.
type Artifact struct {
	RunID     string
	Direction string
	Name      string
	Key       string
	Bytes     int64
	Duration  time.Duration
	Error     string
}

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("db not initialized")
	}
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error { return s.db.Close() }

// StartRun inserts a running row and returns its id.
func (s *Store) StartRun(ctx context.Context, pipeline, file string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, pipeline, file, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, pipeline, file, statusRunning, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun stores the final status of a run.
func (s *Store) FinishRun(ctx context.Context, id string, status api.RunStatus, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), msg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// RecordArtifact appends a transfer to a run.
func (s *Store) RecordArtifact(ctx context.Context, a Artifact) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (run_id, direction, name, object_key, bytes, duration_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RunID, a.Direction, a.Name, a.Key, a.Bytes, a.Duration.Milliseconds(), a.Error, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

// GetRun loads a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	var r Run
	var finished sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, pipeline, file, status, error, started_at, finished_at FROM runs WHERE id = ?`, id).
		Scan(&r.ID, &r.Pipeline, &r.File, &r.Status, &r.Error, &r.StartedAt, &finished)
	if err != nil {
		return r, fmt.Errorf("get run %s: %w", id, err)
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return r, nil
}

// Artifacts lists the transfers of a run in the order they happened.
func (s *Store) Artifacts(ctx context.Context, runID string) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, direction, name, object_key, bytes, duration_ms, error FROM artifacts WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()
	var out []Artifact
	for rows.Next() {
		var a Artifact
		var ms int64
		if err := rows.Scan(&a.RunID, &a.Direction, &a.Name, &a.Key, &a.Bytes, &ms, &a.Error); err != nil {
			return nil, err
		}
		a.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, a)
	}
	return out, rows.Err()
}
