// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport implements the per-session HTTP/WebSocket glue:
// the structured REST endpoint set, the raw byte stream, and bearer
// auth. Per spec.md §1 this surface's internals are not specified;
// SPEC_FULL.md §5 builds it anyway because the per-session runtime
// has no way to be exercised without a caller.
package transport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/wsh-dev/wsh/overlay"
	"github.com/wsh-dev/wsh/panel"
	"github.com/wsh-dev/wsh/session"
	"github.com/wsh-dev/wsh/vt"
	"github.com/wsh-dev/wsh/wire"
)

// Server routes the session control API and the WebSocket attach
// endpoint. Grounded on control-plane/main.go's chi.NewRouter/
// r.Route/r.Group structure.
type Server struct {
	registry     *session.Registry
	auth         *Authenticator
	logger       *slog.Logger
	router       chi.Router
	defaultShell    string
	maxSessions     int
	scrollbackLines int
	idleThreshold   time.Duration
}

// ServerOption configures optional Server behavior.
type ServerOption func(*Server)

// WithDefaultShell overrides the command used for CreateSession
// requests that omit one.
func WithDefaultShell(shell string) ServerOption {
	return func(s *Server) { s.defaultShell = shell }
}

// WithMaxSessions caps the number of concurrently live sessions.
// Zero (the default) means unlimited.
func WithMaxSessions(n int) ServerOption {
	return func(s *Server) { s.maxSessions = n }
}

// WithSessionDefaults sets the scrollback size and idle threshold
// applied to sessions created without an explicit override.
func WithSessionDefaults(scrollbackLines int, idleThreshold time.Duration) ServerOption {
	return func(s *Server) {
		s.scrollbackLines = scrollbackLines
		s.idleThreshold = idleThreshold
	}
}

// NewServer builds the full route tree.
func NewServer(registry *session.Registry, auth *Authenticator, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{registry: registry, auth: auth, logger: logger, defaultShell: "/bin/sh"}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(s.requireAuth)

	r.Get("/health", s.handleHealth)

	r.Post("/sessions", s.handleCreateSession)
	r.Get("/sessions", s.handleListSessions)
	r.Delete("/sessions/{name}", s.handleRemoveSession)

	r.Route("/sessions/{name}", func(r chi.Router) {
		r.Get("/screen", s.handleGetScreen)
		r.Get("/scrollback", s.handleGetScrollback)
		r.Post("/input", s.handlePostInput)
		r.Get("/quiesce", s.handleGetQuiesce)

		r.Post("/overlay", s.handleCreateOverlay)
		r.Get("/overlay", s.handleListOverlays)
		r.Get("/overlay/{id}", s.handleGetOverlay)
		r.Put("/overlay/{id}", s.handleUpdateOverlay)
		r.Patch("/overlay/{id}", s.handlePatchOverlay)
		r.Delete("/overlay/{id}", s.handleDeleteOverlay)

		r.Post("/panel", s.handleCreatePanel)
		r.Get("/panel", s.handleListPanels)
		r.Get("/panel/{id}", s.handleGetPanel)
		r.Put("/panel/{id}", s.handleUpdatePanel)
		r.Patch("/panel/{id}", s.handlePatchPanel)
		r.Delete("/panel/{id}", s.handleDeletePanel)

		r.Get("/attach", s.handleAttachWS)
		r.Get("/ws", s.handleStructuredWS)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		if code := s.auth.Verify(r); code != "" {
			writeWireError(w, httpStatusForCode(code), code, "authentication failed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type createSessionRequest struct {
	Name    string   `json:"name"`
	Command []string `json:"command"`
	Env     []string `json:"env"`
	Cwd     string   `json:"cwd"`
	Cols    int      `json:"cols"`
	Rows    int      `json:"rows"`
	Tags    []string `json:"tags"`
}

type sessionSummary struct {
	Name string `json:"name"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeWireError(w, http.StatusBadRequest, wire.ErrCodeInvalidRequest, err.Error())
		return
	}
	if s.maxSessions > 0 && s.registry.Len() >= s.maxSessions {
		writeWireError(w, http.StatusServiceUnavailable, wire.ErrCodeInternalError, "session limit reached")
		return
	}
	command := body.Command
	if len(command) == 0 {
		command = []string{s.defaultShell}
	}
	sess, err := s.registry.Create(r.Context(), session.NewSessionOptions{
		Name:            body.Name,
		Command:         command,
		Env:             body.Env,
		Cwd:             body.Cwd,
		Cols:            body.Cols,
		Rows:            body.Rows,
		Tags:            body.Tags,
		ScrollbackLines: s.scrollbackLines,
		IdleThreshold:   s.idleThreshold,
	})
	if err != nil {
		if errors.Is(err, session.ErrNameConflict) {
			writeWireError(w, http.StatusConflict, wire.ErrCodeNameConflict, err.Error())
			return
		}
		writeWireError(w, http.StatusInternalServerError, wire.ErrCodeInternalError, err.Error())
		return
	}
	cols, rows := sess.Size()
	writeJSON(w, http.StatusCreated, sessionSummary{Name: sess.Name, Cols: cols, Rows: rows})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.registry.List()
	out := make([]sessionSummary, len(sessions))
	for i, sess := range sessions {
		cols, rows := sess.Size()
		out[i] = sessionSummary{Name: sess.Name, Cols: cols, Rows: rows}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRemoveSession(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.registry.Remove(name); err != nil {
		writeWireError(w, http.StatusNotFound, wire.ErrCodeSessionNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sessionFromRequest(w http.ResponseWriter, r *http.Request) *session.Session {
	name := chi.URLParam(r, "name")
	sess, err := s.registry.Get(name)
	if err != nil {
		writeWireError(w, http.StatusNotFound, wire.ErrCodeSessionNotFound, err.Error())
		return nil
	}
	return sess
}

func (s *Server) handleGetScreen(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}
	result, err := sess.Parser().Screen(r.Context(), r.URL.Query().Get("styled") == "true")
	if err != nil {
		writeParserError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, screenResponse{
		Lines:           result.Lines,
		Cursor:          result.Cursor,
		Cols:            result.Cols,
		Rows:            result.Rows,
		AlternateScreen: result.AlternateScreen,
		FirstLineIndex:  result.FirstLineIndex,
		TotalLines:      result.TotalLines,
		Epoch:           result.Epoch,
		DroppedCount:    sess.Broker().DroppedCount(),
	})
}

type screenResponse struct {
	Lines           []vt.FormattedLine `json:"lines"`
	Cursor          vt.Cursor          `json:"cursor"`
	Cols            int                `json:"cols"`
	Rows            int                `json:"rows"`
	AlternateScreen bool               `json:"alternate_screen"`
	FirstLineIndex  uint64             `json:"first_line_index"`
	TotalLines      uint64             `json:"total_lines"`
	Epoch           uint64             `json:"epoch"`
	DroppedCount    uint64             `json:"dropped_count"`
}

func (s *Server) handleGetScrollback(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}
	offset := parseUintQuery(r, "offset", 0)
	limit := int(parseUintQuery(r, "limit", 100))
	result, err := sess.Parser().Scrollback(r.Context(), offset, limit, r.URL.Query().Get("styled") == "true")
	if err != nil {
		writeParserError(w, err)
		return
	}
	writeJSONMaybeCompressed(w, r, http.StatusOK, result)
}

func (s *Server) handlePostInput(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}
	var body struct {
		Data []byte `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeWireError(w, http.StatusBadRequest, wire.ErrCodeInvalidRequest, err.Error())
		return
	}
	if err := sess.SendInput(r.Context(), body.Data); err != nil {
		writeWireError(w, http.StatusInternalServerError, wire.ErrCodeInputSendFailed, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetQuiesce(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}
	timeout := parseDurationQuery(r, "timeout_ms", session.DefaultIdleThreshold)
	maxWait := parseDurationQuery(r, "max_wait_ms", defaultMaxWait)
	fresh := r.URL.Query().Get("fresh") == "true"

	var lastGeneration *uint64
	if raw := r.URL.Query().Get("last_generation"); raw != "" {
		g := parseUintQuery(r, "last_generation", 0)
		lastGeneration = &g
	}

	generation, err := sess.Activity().WaitForQuiescence(r.Context(), timeout, lastGeneration, fresh, maxWait)
	if err != nil {
		writeWireError(w, http.StatusGatewayTimeout, wire.ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"generation": generation})
}

// --- Overlay endpoints ---

func (s *Server) handleCreateOverlay(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}
	var body struct {
		X, Y  int
		Z     *int
		Spans []vt.Span
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeWireError(w, http.StatusBadRequest, wire.ErrCodeInvalidRequest, err.Error())
		return
	}
	ov := sess.CreateOverlay(body.X, body.Y, body.Z, body.Spans, ownerFromRequest(r))
	writeJSON(w, http.StatusCreated, ov)
}

func (s *Server) handleListOverlays(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}
	writeJSON(w, http.StatusOK, sess.ListOverlays())
}

func (s *Server) handleGetOverlay(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeWireError(w, http.StatusBadRequest, wire.ErrCodeInvalidRequest, err.Error())
		return
	}
	ov, err := sess.GetOverlay(id)
	if err != nil {
		writeWireError(w, http.StatusNotFound, wire.ErrCodeOverlayNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) handleUpdateOverlay(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeWireError(w, http.StatusBadRequest, wire.ErrCodeInvalidRequest, err.Error())
		return
	}
	var body struct{ Spans []vt.Span }
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeWireError(w, http.StatusBadRequest, wire.ErrCodeInvalidRequest, err.Error())
		return
	}
	if err := sess.UpdateOverlay(id, body.Spans); err != nil {
		writeWireError(w, http.StatusNotFound, wire.ErrCodeOverlayNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePatchOverlay(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeWireError(w, http.StatusBadRequest, wire.ErrCodeInvalidRequest, err.Error())
		return
	}
	var patch overlay.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeWireError(w, http.StatusBadRequest, wire.ErrCodeInvalidRequest, err.Error())
		return
	}
	if err := sess.PatchOverlay(id, patch); err != nil {
		writeWireError(w, http.StatusNotFound, wire.ErrCodeOverlayNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteOverlay(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeWireError(w, http.StatusBadRequest, wire.ErrCodeInvalidRequest, err.Error())
		return
	}
	if err := sess.DeleteOverlay(id); err != nil {
		writeWireError(w, http.StatusNotFound, wire.ErrCodeOverlayNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Panel endpoints ---

func (s *Server) handleCreatePanel(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}
	var body struct {
		Position panel.Position
		Height   int
		Z        int
		Spans    []vt.Span
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeWireError(w, http.StatusBadRequest, wire.ErrCodeInvalidRequest, err.Error())
		return
	}
	p := sess.CreatePanel(body.Position, body.Height, body.Z, body.Spans)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListPanels(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}
	writeJSON(w, http.StatusOK, sess.ListPanels())
}

func (s *Server) handleGetPanel(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeWireError(w, http.StatusBadRequest, wire.ErrCodeInvalidRequest, err.Error())
		return
	}
	p, err := sess.GetPanel(id)
	if err != nil {
		writeWireError(w, http.StatusNotFound, wire.ErrCodePanelNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdatePanel(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeWireError(w, http.StatusBadRequest, wire.ErrCodeInvalidRequest, err.Error())
		return
	}
	var body struct{ Spans []vt.Span }
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeWireError(w, http.StatusBadRequest, wire.ErrCodeInvalidRequest, err.Error())
		return
	}
	if err := sess.UpdatePanel(id, body.Spans); err != nil {
		writeWireError(w, http.StatusNotFound, wire.ErrCodePanelNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePatchPanel(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeWireError(w, http.StatusBadRequest, wire.ErrCodeInvalidRequest, err.Error())
		return
	}
	var patch panel.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeWireError(w, http.StatusBadRequest, wire.ErrCodeInvalidRequest, err.Error())
		return
	}
	if err := sess.PatchPanel(id, patch); err != nil {
		writeWireError(w, http.StatusNotFound, wire.ErrCodePanelNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeletePanel(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeWireError(w, http.StatusBadRequest, wire.ErrCodeInvalidRequest, err.Error())
		return
	}
	if err := sess.DeletePanel(id); err != nil {
		writeWireError(w, http.StatusNotFound, wire.ErrCodePanelNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeParserError(w http.ResponseWriter, err error) {
	if errors.Is(err, vt.ErrParserUnavailable) {
		writeWireError(w, http.StatusServiceUnavailable, wire.ErrCodeParserUnavailable, err.Error())
		return
	}
	writeWireError(w, http.StatusInternalServerError, wire.ErrCodeInternalError, err.Error())
}

func ownerFromRequest(r *http.Request) string {
	return r.RemoteAddr
}
