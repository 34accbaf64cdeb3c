// Package handlers provides HTTP handlers for the EngiDigitize API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/spherical-ai/spherical/libs/engidigitize/cmd/engidigitize-api/middleware"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/domain"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/encoder"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/observability"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/session"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/views"
)

const (
	// DefaultMaxUploadBytes caps a single upload.
	DefaultMaxUploadBytes = 32 << 20

	// ObjectURLPrefix is where object URLs resolve.
	ObjectURLPrefix = "/api/v1/objects/"

	uploadField      = "file"
	multipartMemory  = 8 << 20
	multipartSlack   = 1 << 20
	downloadsBaseURL = "/api/v1/session/downloads/"
)

// SessionHandler serves the session lifecycle and its views.
type SessionHandler struct {
	logger         *observability.Logger
	sessions       *session.Manager
	objects        session.ObjectStore
	render         views.RenderOptions
	maxUploadBytes int64
}

// SessionHandlerConfig holds SessionHandler settings.
type SessionHandlerConfig struct {
	Render         views.RenderOptions
	MaxUploadBytes int64
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(logger *observability.Logger, sessions *session.Manager, objects session.ObjectStore, cfg SessionHandlerConfig) *SessionHandler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Render.Results.DownloadURL == nil {
		cfg.Render.Results.DownloadURL = func(kind string) string { return downloadsBaseURL + kind }
	}
	return &SessionHandler{
		logger:         logger,
		sessions:       sessions,
		objects:        objects,
		render:         cfg.Render,
		maxUploadBytes: cfg.MaxUploadBytes,
	}
}

// View handles GET /session.
func (h *SessionHandler) View(w http.ResponseWriter, r *http.Request) {
	s := h.current(r)
	h.writeJSON(w, http.StatusOK, views.Render(s.Snapshot(), h.render))
}

// Upload handles POST /session/upload.
func (h *SessionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.WithContext(r.Context())
	s := h.current(r)

	// a busy session is rejected before the body is read
	if s.Status() == domain.StatusProcessing {
		h.writeError(w, http.StatusConflict, "processing in progress", "reset the session before uploading again")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartSlack)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "file too large", fmt.Sprintf("limit is %d bytes", h.maxUploadBytes))
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "missing file", fmt.Sprintf("expected multipart field %q", uploadField))
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadBytes {
		h.writeError(w, http.StatusRequestEntityTooLarge, "file too large", fmt.Sprintf("limit is %d bytes", h.maxUploadBytes))
		return
	}

	// multipart temp files are removed when the request ends, so the
	// document is kept in memory for the background cycle
	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		logger.Warn().Err(err).Str("file_name", header.Filename).Msg("Failed to read upload")
		h.writeError(w, http.StatusBadRequest, "unreadable file", "")
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		h.writeError(w, http.StatusRequestEntityTooLarge, "file too large", fmt.Sprintf("limit is %d bytes", h.maxUploadBytes))
		return
	}

	mimeType, err := views.ValidateUpload(header.Header.Get("Content-Type"), data)
	if err != nil {
		logger.Info().Err(err).Str("file_name", header.Filename).Msg("Rejected upload")
		h.writeError(w, http.StatusUnsupportedMediaType, "unsupported file type", "accepted types: "+strings.Join(domain.AcceptedMIMETypes, ", "))
		return
	}

	gen, err := s.Upload(encoder.NewBytesSource(header.Filename, mimeType, data))
	if errors.Is(err, domain.ErrProcessingInFlight) {
		h.writeError(w, http.StatusConflict, "processing in progress", "reset the session before uploading again")
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("Upload failed")
		h.writeError(w, http.StatusInternalServerError, "upload failed", "")
		return
	}

	logger.Info().
		Str("session_id", s.ID()).
		Uint64("generation", gen).
		Str("file_name", header.Filename).
		Str("mime_type", mimeType).
		Int("size_bytes", len(data)).
		Msg("Upload started")

	h.writeJSON(w, http.StatusAccepted, views.Render(s.Snapshot(), h.render))
}

// Reset handles POST /session/reset.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	s := h.current(r)
	s.Reset()
	h.writeJSON(w, http.StatusOK, views.Render(s.Snapshot(), h.render))
}

// Original handles GET /session/original.
func (h *SessionHandler) Original(w http.ResponseWriter, r *http.Request) {
	s, ok := h.existing(r)
	if !ok || s.Snapshot().ObjectURL == "" {
		h.writeError(w, http.StatusNotFound, "no document", "upload a drawing first")
		return
	}
	h.serveObject(w, r, s.Snapshot().ObjectURL)
}

// Object handles GET /objects/{objectId}, the target of an object URL.
func (h *SessionHandler) Object(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "objectId")
	if id == "" {
		h.writeError(w, http.StatusNotFound, "object not found", "")
		return
	}
	h.serveObject(w, r, ObjectURLPrefix+id)
}

// Download handles GET /session/downloads/{kind}.
func (h *SessionHandler) Download(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	s, ok := h.existing(r)
	if !ok {
		h.writeError(w, http.StatusNotFound, "no results", "downloads are available after a successful run")
		return
	}

	v := views.Render(s.Snapshot(), h.render)
	if v.Results == nil {
		h.writeError(w, http.StatusNotFound, "no results", "downloads are available after a successful run")
		return
	}

	d, ok := v.Results.Download(kind)
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown download", "expected json or vector")
		return
	}

	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(d.Content)))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, d.Content)
}

func (h *SessionHandler) serveObject(w http.ResponseWriter, r *http.Request, url string) {
	src, ok := h.objects.Open(url)
	if !ok {
		h.writeError(w, http.StatusNotFound, "object not found", "")
		return
	}

	data, err := encoder.ReadAll(r.Context(), src)
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Str("object_url", url).Msg("Failed to read object")
		h.writeError(w, http.StatusInternalServerError, "object unreadable", "")
		return
	}

	w.Header().Set("Content-Type", src.MIMEType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": src.Name()}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *SessionHandler) current(r *http.Request) *session.Machine {
	return h.sessions.GetOrCreate(middleware.SessionFromContext(r.Context()))
}

// existing returns the caller's session without creating one.
func (h *SessionHandler) existing(r *http.Request) (*session.Machine, bool) {
	return h.sessions.Get(middleware.SessionFromContext(r.Context()))
}

func (h *SessionHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, v)
}

func (h *SessionHandler) writeError(w http.ResponseWriter, status int, message, detail string) {
	writeError(w, status, message, detail)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}
