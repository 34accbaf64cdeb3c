package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/engidigitize/internal/observability"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/storage"
)

const maxRunsLimit = 500

// RunReader reads the processing run audit trail.
type RunReader interface {
	ListRecent(ctx context.Context, limit int) ([]*storage.RunRecord, error)
	GetByID(ctx context.Context, id uuid.UUID) (*storage.RunRecord, error)
}

// RunsHandler serves the processing run audit trail.
type RunsHandler struct {
	logger *observability.Logger
	runs   RunReader
}

// NewRunsHandler creates a runs handler. runs is nil when audit is disabled.
func NewRunsHandler(logger *observability.Logger, runs RunReader) *RunsHandler {
	return &RunsHandler{
		logger: logger,
		runs:   runs,
	}
}

// RunsResponseDTO is the GET /runs response.
type RunsResponseDTO struct {
	Runs  []*storage.RunRecord `json:"runs"`
	Count int                  `json:"count"`
}

// List handles GET /runs?limit=N.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusNotFound, "audit disabled", "enable audit to record processing runs")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := h.runs.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("Run query failed")
		writeError(w, http.StatusInternalServerError, "run query failed", "")
		return
	}
	if runs == nil {
		runs = []*storage.RunRecord{}
	}

	writeJSON(w, http.StatusOK, RunsResponseDTO{Runs: runs, Count: len(runs)})
}

// Get handles GET /runs/{runId}.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusNotFound, "audit disabled", "enable audit to record processing runs")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "runId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id", "run id must be a UUID")
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found", "")
		return
	}
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Str("run_id", id.String()).Msg("Run lookup failed")
		writeError(w, http.StatusInternalServerError, "run query failed", "")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// Check is a named readiness probe.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthHandler serves liveness and readiness.
type HealthHandler struct {
	service string
	checks  []Check
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(service string, checks ...Check) *HealthHandler {
	return &HealthHandler{service: service, checks: checks}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": h.service})
}

// Ready handles GET /ready.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			results[c.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[c.Name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": results})
}
