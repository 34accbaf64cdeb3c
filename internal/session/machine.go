// Package session owns the upload lifecycle: idle, processing, then success or
// error, with a generation token so late results never touch a newer upload.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/spherical-ai/spherical/libs/engidigitize/internal/domain"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/encoder"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/observability"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/storage"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/transform"
)

// DefaultTimeout bounds one remote call when Config.Timeout is unset.
const DefaultTimeout = 120 * time.Second

// Inspector describes a document for logs and the audit trail.
type Inspector interface {
	Inspect(ctx context.Context, src domain.Source) (domain.DocumentInfo, error)
}

// Auditor records finished cycles.
type Auditor interface {
	RecordRun(ctx context.Context, run storage.RunRecord) error
}

// Config wires a Machine to its collaborators. Inspector and Auditor are optional.
type Config struct {
	Transformer transform.Transformer
	Objects     ObjectStore
	Inspector   Inspector
	Auditor     Auditor
	Logger      *observability.Logger
	// BaseContext bounds every cycle; cancelling it aborts in-flight calls.
	BaseContext context.Context
	Timeout     time.Duration
}

// Snapshot is a consistent copy of session state.
type Snapshot struct {
	SessionID  string
	Status     domain.SessionStatus
	Generation uint64
	Document   *domain.UploadedDocument
	ObjectURL  string
	Result     *domain.ProcessedResult
	Error      string
	StartedAt  time.Time
}

// Machine is one user's session.
type Machine struct {
	id          string
	transformer transform.Transformer
	objects     ObjectStore
	inspector   Inspector
	auditor     Auditor
	logger      *observability.Logger
	base        context.Context
	timeout     time.Duration

	mu         sync.Mutex
	status     domain.SessionStatus
	generation uint64
	document   *domain.UploadedDocument
	objectURL  string
	result     *domain.ProcessedResult
	errMsg     string
	startedAt  time.Time
	cancel     context.CancelFunc
	done       chan struct{}
	lastActive time.Time
}

// NewMachine creates an idle session.
func NewMachine(id string, cfg Config) *Machine {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	base := cfg.BaseContext
	if base == nil {
		base = context.Background()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Machine{
		id:          id,
		transformer: cfg.Transformer,
		objects:     cfg.Objects,
		inspector:   cfg.Inspector,
		auditor:     cfg.Auditor,
		logger:      logger.WithSession(id),
		base:        base,
		timeout:     timeout,
		status:      domain.StatusIdle,
		lastActive:  time.Now(),
	}
}

// ID returns the session ID.
func (m *Machine) ID() string { return m.id }

// Upload starts a processing cycle for src and returns its generation. The
// session is in processing when Upload returns. A session that is already
// processing rejects the upload with domain.ErrProcessingInFlight.
func (m *Machine) Upload(src domain.Source) (uint64, error) {
	m.mu.Lock()
	if m.status == domain.StatusProcessing {
		m.mu.Unlock()
		return 0, domain.ErrProcessingInFlight
	}

	// a success being superseded still holds its URL
	m.releaseObjectLocked()

	m.generation++
	gen := m.generation
	doc := domain.NewUploadedDocument(src)

	m.errMsg = ""
	m.result = nil
	m.document = doc
	m.objectURL = m.objects.Create(src)
	m.status = domain.StatusProcessing
	m.startedAt = time.Now()
	m.lastActive = m.startedAt

	ctx, cancel := context.WithTimeout(m.base, m.timeout)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	m.logger.Info().
		Uint64("generation", gen).
		Str("file_name", doc.Name).
		Str("mime_type", doc.MIMEType).
		Msg("Upload accepted")

	go m.run(ctx, gen, doc)

	return gen, nil
}

// Reset returns the session to idle from any state. An in-flight call is
// cancelled and its eventual outcome discarded.
func (m *Machine) Reset() {
	m.mu.Lock()
	was := m.status
	m.resetLocked()
	m.mu.Unlock()

	m.logger.Debug().Str("from", string(was)).Msg("Session reset")
}

// Snapshot returns the current state. A success missing its result or its
// object URL is treated as corrupt and reset before returning.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastActive = time.Now()

	if m.status == domain.StatusSuccess && (m.result == nil || m.objectURL == "") {
		m.logger.Warn().
			Bool("has_result", m.result != nil).
			Bool("has_object_url", m.objectURL != "").
			Msg("Corrupted success state, forcing reset")
		m.resetLocked()
	}

	snap := Snapshot{
		SessionID:  m.id,
		Status:     m.status,
		Generation: m.generation,
		Document:   m.document,
		ObjectURL:  m.objectURL,
		Error:      m.errMsg,
		StartedAt:  m.startedAt,
	}
	if m.result != nil {
		r := *m.result
		snap.Result = &r
	}
	return snap
}

// Wait blocks until the current cycle settles or is reset. It returns
// immediately when nothing is processing.
func (m *Machine) Wait(ctx context.Context) error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastActive reports when the session was last touched.
func (m *Machine) LastActive() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActive
}

// Status returns the current status without the corruption check.
func (m *Machine) Status() domain.SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Machine) run(ctx context.Context, gen uint64, doc *domain.UploadedDocument) {
	start := time.Now()
	run := storage.RunRecord{
		SessionID:  m.id,
		Generation: gen,
		FileName:   doc.Name,
		MIMEType:   doc.MIMEType,
	}

	result, err := m.process(ctx, doc, &run)
	applied := m.settle(gen, result, err)
	elapsed := time.Since(start)

	run.DurationMs = elapsed.Milliseconds()
	if err != nil {
		run.ErrorKind = string(domain.TypeOf(err))
	}

	switch {
	case !applied:
		run.Outcome = storage.RunOutcomeDiscarded
		m.logger.Info().
			Uint64("generation", gen).
			Dur("elapsed", elapsed).
			Msg("Discarding stale result")
	case err != nil:
		run.Outcome = storage.RunOutcomeError
		m.logger.Error().
			Err(err).
			Uint64("generation", gen).
			Str("kind", run.ErrorKind).
			Dur("elapsed", elapsed).
			Msg("Processing failed")
	default:
		run.Outcome = storage.RunOutcomeSuccess
		m.logger.Info().
			Uint64("generation", gen).
			Dur("elapsed", elapsed).
			Msg("Processing complete")
	}

	if m.auditor != nil {
		auditCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.auditor.RecordRun(auditCtx, run)
	}
}

// process runs encode then transform. Encode fully completes first.
func (m *Machine) process(ctx context.Context, doc *domain.UploadedDocument, run *storage.RunRecord) (domain.ProcessedResult, error) {
	payload, err := encoder.Encode(ctx, doc.Source)
	if err != nil {
		return domain.ProcessedResult{}, err
	}

	if m.inspector != nil {
		info, err := m.inspector.Inspect(ctx, doc.Source)
		if err != nil {
			m.logger.Warn().Err(err).Str("file_name", doc.Name).Msg("Document inspection failed")
		}
		run.SizeBytes = info.SizeBytes
		run.PageCount = info.PageCount
		run.SHA256 = info.SHA256
	}

	result, err := m.transformer.Transform(ctx, payload)
	if err != nil {
		if ctx.Err() != nil && !domain.IsType(err, domain.ErrorTypeTransport) {
			return domain.ProcessedResult{}, domain.TransportFailure("remote transform failed", ctx.Err())
		}
		return domain.ProcessedResult{}, err
	}
	if !result.Complete() {
		return domain.ProcessedResult{}, domain.MalformedResponse("AI response is missing required fields.", nil)
	}
	return result, nil
}

// settle applies a cycle outcome if gen is still current. It reports whether
// the outcome was applied.
func (m *Machine) settle(gen uint64, result domain.ProcessedResult, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.status != domain.StatusProcessing {
		return false
	}

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}

	if err != nil {
		m.status = domain.StatusError
		m.errMsg = domain.UserErrorMessage
		m.result = nil
	} else {
		m.status = domain.StatusSuccess
		m.errMsg = ""
		m.result = &result
	}

	m.closeDoneLocked()
	return true
}

func (m *Machine) resetLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.status == domain.StatusProcessing {
		// invalidate the in-flight cycle
		m.generation++
	}

	m.releaseObjectLocked()
	m.document = nil
	m.result = nil
	m.errMsg = ""
	m.startedAt = time.Time{}
	m.status = domain.StatusIdle
	m.lastActive = time.Now()
	m.closeDoneLocked()
}

func (m *Machine) releaseObjectLocked() {
	if m.objectURL == "" {
		return
	}
	if !m.objects.Release(m.objectURL) {
		m.logger.Warn().Str("object_url", m.objectURL).Msg("Object URL was already released")
	}
	m.objectURL = ""
}

func (m *Machine) closeDoneLocked() {
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
}
