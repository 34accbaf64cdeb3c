package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// RunRepository handles processing run records.
type RunRepository struct {
	db DB
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a run, assigning ID and timestamp when unset.
func (r *RunRepository) Create(ctx context.Context, run *RunRecord) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO processing_runs (id, session_id, generation, file_name, mime_type,
			size_bytes, page_count, sha256, outcome, error_kind, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID.String(), run.SessionID, int64(run.Generation), run.FileName, run.MIMEType,
		run.SizeBytes, run.PageCount, run.SHA256, string(run.Outcome), run.ErrorKind,
		run.DurationMs, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by ID.
func (r *RunRepository) GetByID(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	query := `
		SELECT id, session_id, generation, file_name, mime_type, size_bytes, page_count,
			sha256, outcome, error_kind, duration_ms, created_at
		FROM processing_runs WHERE id = $1
	`
	run, err := scanRun(r.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// ListRecent returns the newest runs first.
func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, session_id, generation, file_name, mime_type, size_bytes, page_count,
			sha256, outcome, error_kind, duration_ms, created_at
		FROM processing_runs ORDER BY created_at DESC LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		run        RunRecord
		id         string
		generation int64
		outcome    string
	)
	err := row.Scan(&id, &run.SessionID, &generation, &run.FileName, &run.MIMEType,
		&run.SizeBytes, &run.PageCount, &run.SHA256, &outcome, &run.ErrorKind,
		&run.DurationMs, &run.CreatedAt)
	if err != nil {
		return nil, err
	}

	run.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", id, err)
	}
	run.Generation = uint64(generation)
	run.Outcome = RunOutcome(outcome)
	return &run, nil
}
