package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/engidigitize/cmd/engidigitize-api/middleware"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/domain"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/observability"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/session"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/storage"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/views"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDRfake-body")

type gatedTransformer struct {
	mu     sync.Mutex
	gate   chan struct{}
	result domain.ProcessedResult
	err    error
}

func (g *gatedTransformer) Transform(ctx context.Context, payload domain.EncodedPayload) (domain.ProcessedResult, error) {
	g.mu.Lock()
	gate := g.gate
	g.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.ProcessedResult{}, domain.TransportFailure("remote transform failed", ctx.Err())
		}
	}
	return g.result, g.err
}

type testServer struct {
	router   http.Handler
	sessions *session.Manager
	objects  *session.MemoryObjects
	cookie   *http.Cookie
}

func newTestServer(t *testing.T, tr *gatedTransformer, maxUpload int64) *testServer {
	t.Helper()
	objects := session.NewMemoryObjects(ObjectURLPrefix)
	sessions := session.NewManager(func(id string) *session.Machine {
		return session.NewMachine(id, session.Config{Transformer: tr, Objects: objects, Timeout: 5 * time.Second})
	}, time.Hour, observability.NopLogger())
	t.Cleanup(sessions.Close)

	h := NewSessionHandler(observability.NopLogger(), sessions, objects, SessionHandlerConfig{
		Render:         views.RenderOptions{SimulatedDuration: 15 * time.Second},
		MaxUploadBytes: maxUpload,
	})

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Session(middleware.SessionConfig{CookieName: "sid"}))
		r.Get("/session", h.View)
		r.Post("/session/upload", h.Upload)
		r.Post("/session/reset", h.Reset)
		r.Get("/session/original", h.Original)
		r.Get("/session/downloads/{kind}", h.Download)
		r.Get("/objects/{objectId}", h.Object)
	})

	return &testServer{router: r, sessions: sessions, objects: objects}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if s.cookie != nil {
		req.AddCookie(s.cookie)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == "sid" {
			s.cookie = c
		}
	}
	return rec
}

func (s *testServer) machine(t *testing.T) *session.Machine {
	t.Helper()
	require.NotNil(t, s.cookie)
	m, ok := s.sessions.Get(s.cookie.Value)
	require.True(t, ok)
	return m
}

func (s *testServer) waitSettled(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.machine(t).Wait(ctx))
}

func uploadRequest(t *testing.T, name, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) views.View {
	t.Helper()
	var v views.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestSessionHandler_InitialView(t *testing.T) {
	s := newTestServer(t, &gatedTransformer{}, 0)

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, s.cookie)

	v := decodeView(t, rec)
	assert.Equal(t, views.ViewUpload, v.View)
	assert.Equal(t, domain.StatusIdle, v.Status)
	require.NotNil(t, v.Upload)
	assert.Equal(t, domain.AcceptedMIMETypes, v.Upload.Accept)
}

func TestSessionHandler_ReadsDoNotCreateSessions(t *testing.T) {
	s := newTestServer(t, &gatedTransformer{}, 0)

	for _, path := range []string{"/api/v1/session/original", "/api/v1/session/downloads/json"} {
		s.cookie = nil
		rec := s.do(t, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	assert.Equal(t, 0, s.sessions.Len())

	s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))
	assert.Equal(t, 1, s.sessions.Len())
}

func TestSessionHandler_UploadToResults(t *testing.T) {
	tr := &gatedTransformer{
		gate:   make(chan struct{}),
		result: domain.ProcessedResult{StructuredData: `{"part":"bracket","qty":2}`, VectorDrawing: "<svg><line/></svg>"},
	}
	s := newTestServer(t, tr, 0)

	rec := s.do(t, uploadRequest(t, "bracket.png", "image/png", pngBytes))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	assert.Equal(t, views.ViewProcessing, v.View)
	require.NotNil(t, v.Processing)
	assert.Equal(t, "bracket.png", v.Processing.FileName)
	assert.Equal(t, views.ProcessingNote, v.Processing.Note)

	// a second upload while processing is rejected
	rec = s.do(t, uploadRequest(t, "other.png", "image/png", pngBytes))
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(tr.gate)
	s.waitSettled(t)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	v = decodeView(t, rec)
	require.Equal(t, views.ViewResults, v.View)
	assert.Equal(t, "{\n  \"part\": \"bracket\",\n  \"qty\": 2\n}", v.Results.StructuredData)
	assert.True(t, strings.HasPrefix(v.Results.OriginalURL, ObjectURLPrefix))

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/session/downloads/json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename=bracket.json`)
	assert.Equal(t, v.Results.CopyText, rec.Body.String())

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/session/downloads/vector", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename=bracket.dxf`)
	assert.Equal(t, "<svg><line/></svg>", rec.Body.String())

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/session/original", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, pngBytes, rec.Body.Bytes())

	rec = s.do(t, httptest.NewRequest(http.MethodGet, v.Results.OriginalURL, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pngBytes, rec.Body.Bytes())
}

func TestSessionHandler_FailureShowsGenericError(t *testing.T) {
	tr := &gatedTransformer{err: domain.TransportFailure("remote transform failed", assert.AnError)}
	s := newTestServer(t, tr, 0)

	rec := s.do(t, uploadRequest(t, "plan.pdf", "application/pdf", []byte("%PDF-1.4\n")))
	require.Equal(t, http.StatusAccepted, rec.Code)
	s.waitSettled(t)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))
	v := decodeView(t, rec)
	assert.Equal(t, views.ViewUpload, v.View)
	assert.Equal(t, domain.StatusError, v.Status)
	assert.Equal(t, domain.UserErrorMessage, v.Upload.Error)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/session/downloads/json", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionHandler_ResetReleasesObject(t *testing.T) {
	tr := &gatedTransformer{result: domain.ProcessedResult{StructuredData: "{}", VectorDrawing: "<svg/>"}}
	s := newTestServer(t, tr, 0)

	rec := s.do(t, uploadRequest(t, "a.png", "", pngBytes))
	require.Equal(t, http.StatusAccepted, rec.Code)
	s.waitSettled(t)

	v := decodeView(t, s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)))
	require.Equal(t, views.ViewResults, v.View)
	original := v.Results.OriginalURL
	assert.Equal(t, 1, s.objects.Live())

	rec = s.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/session/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, views.ViewUpload, decodeView(t, rec).View)
	assert.Equal(t, 0, s.objects.Live())

	rec = s.do(t, httptest.NewRequest(http.MethodGet, original, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/session/original", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionHandler_UploadRejections(t *testing.T) {
	t.Run("unsupported type", func(t *testing.T) {
		s := newTestServer(t, &gatedTransformer{}, 0)
		rec := s.do(t, uploadRequest(t, "notes.txt", "text/plain", []byte("hello")))
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "unsupported file type", body["error"])
		assert.Equal(t, domain.StatusIdle, s.machine(t).Status())
	})

	t.Run("too large", func(t *testing.T) {
		s := newTestServer(t, &gatedTransformer{}, 64)
		big := append(append([]byte{}, pngBytes...), bytes.Repeat([]byte{0}, 128)...)
		rec := s.do(t, uploadRequest(t, "big.png", "image/png", big))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("missing file field", func(t *testing.T) {
		s := newTestServer(t, &gatedTransformer{}, 0)
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("note", "no file"))
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/api/v1/session/upload", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())

		rec := s.do(t, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not multipart", func(t *testing.T) {
		s := newTestServer(t, &gatedTransformer{}, 0)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/session/upload", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		rec := s.do(t, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSessionHandler_UnknownDownload(t *testing.T) {
	tr := &gatedTransformer{result: domain.ProcessedResult{StructuredData: "{}", VectorDrawing: "<svg/>"}}
	s := newTestServer(t, tr, 0)

	s.do(t, uploadRequest(t, "a.png", "image/png", pngBytes))
	s.waitSettled(t)

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/session/downloads/zip", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubRuns struct {
	runs  []*storage.RunRecord
	limit int
	err   error
}

func (s *stubRuns) ListRecent(ctx context.Context, limit int) ([]*storage.RunRecord, error) {
	s.limit = limit
	return s.runs, s.err
}

func (s *stubRuns) GetByID(ctx context.Context, id uuid.UUID) (*storage.RunRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, run := range s.runs {
		if run.ID == id {
			return run, nil
		}
	}
	return nil, storage.ErrNotFound
}

func TestRunsHandler(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		h := NewRunsHandler(observability.NopLogger(), nil)
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("lists with clamped limit", func(t *testing.T) {
		store := &stubRuns{runs: []*storage.RunRecord{{SessionID: "s1", Outcome: storage.RunOutcomeSuccess}}}
		h := NewRunsHandler(observability.NopLogger(), store)
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=9999", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, maxRunsLimit, store.limit)
		var resp RunsResponseDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
		assert.Equal(t, "s1", resp.Runs[0].SessionID)
	})

	t.Run("bad limit", func(t *testing.T) {
		h := NewRunsHandler(observability.NopLogger(), &stubRuns{})
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=-1", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("store error", func(t *testing.T) {
		h := NewRunsHandler(observability.NopLogger(), &stubRuns{err: assert.AnError})
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
	})
}

func TestRunsHandler_Get(t *testing.T) {
	known := uuid.New()
	store := &stubRuns{runs: []*storage.RunRecord{{ID: known, SessionID: "s1", Outcome: storage.RunOutcomeError, ErrorKind: "transport"}}}

	serve := func(h *RunsHandler, path string) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Get("/api/v1/runs/{runId}", h.Get)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	tests := []struct {
		name   string
		runs   RunReader
		path   string
		status int
	}{
		{name: "found", runs: store, path: "/api/v1/runs/" + known.String(), status: http.StatusOK},
		{name: "unknown id", runs: store, path: "/api/v1/runs/" + uuid.NewString(), status: http.StatusNotFound},
		{name: "malformed id", runs: store, path: "/api/v1/runs/not-a-uuid", status: http.StatusBadRequest},
		{name: "store error", runs: &stubRuns{err: assert.AnError}, path: "/api/v1/runs/" + known.String(), status: http.StatusInternalServerError},
		{name: "disabled", runs: nil, path: "/api/v1/runs/" + known.String(), status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(NewRunsHandler(observability.NopLogger(), tt.runs), tt.path)
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	rec := serve(NewRunsHandler(observability.NopLogger(), store), "/api/v1/runs/"+known.String())
	var run storage.RunRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, known, run.ID)
	assert.Equal(t, "transport", run.ErrorKind)
}

func TestHealthHandler(t *testing.T) {
	h := NewHealthHandler("engidigitize",
		Check{Name: "cache", Ping: func(ctx context.Context) error { return nil }},
	)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"service":"engidigitize"`)

	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	failing := NewHealthHandler("engidigitize",
		Check{Name: "audit", Ping: func(ctx context.Context) error { return assert.AnError }},
	)
	rec = httptest.NewRecorder()
	failing.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"not ready"`)
}
