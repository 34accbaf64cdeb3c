// Package monitoring provides the processing run audit trail.
package monitoring

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/engidigitize/internal/observability"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/storage"
)

// RunStore persists run records.
type RunStore interface {
	Create(ctx context.Context, run *storage.RunRecord) error
}

// AuditLogger logs every processing run and, when a store is configured,
// persists it.
type AuditLogger struct {
	logger *observability.Logger
	store  RunStore
}

// NewAuditLogger creates a new audit logger. store may be nil.
func NewAuditLogger(logger *observability.Logger, store RunStore) *AuditLogger {
	return &AuditLogger{
		logger: logger.WithOperation("audit"),
		store:  store,
	}
}

// RecordRun records one settled or discarded processing cycle.
func (a *AuditLogger) RecordRun(ctx context.Context, run storage.RunRecord) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	a.logger.Info().
		Str("run_id", run.ID.String()).
		Str("session_id", run.SessionID).
		Uint64("generation", run.Generation).
		Str("file_name", run.FileName).
		Str("mime_type", run.MIMEType).
		Int64("size_bytes", run.SizeBytes).
		Int("page_count", run.PageCount).
		Str("outcome", string(run.Outcome)).
		Str("error_kind", run.ErrorKind).
		Int64("duration_ms", run.DurationMs).
		Msg("Processing run")

	if a.store == nil {
		return nil
	}

	if err := a.store.Create(ctx, &run); err != nil {
		a.logger.Error().Err(err).Str("run_id", run.ID.String()).Msg("Failed to persist processing run")
		return err
	}
	return nil
}
