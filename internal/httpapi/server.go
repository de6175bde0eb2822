// Package httpapi serves the voice lab over HTTP: generation, sessions,
// artifacts, favorites and the persona and voice catalogs.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-lab/internal/core"
	"github.com/book-expert/voice-lab/internal/gemini"
	"github.com/book-expert/voice-lab/internal/observability"
	"github.com/book-expert/voice-lab/internal/persona"
	"github.com/book-expert/voice-lab/internal/session"
	"github.com/book-expert/voice-lab/internal/tts"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// BatchRunner runs a multi-voice generation.
type BatchRunner interface {
	Generate(ctx context.Context, req core.BatchRequest, sessionID string) []core.GenerationResult
}

// Option configures a Server.
type Option func(*Server)

// WithArchive restores audio missing on disk from store.
func WithArchive(store core.Archive) Option {
	return func(s *Server) {
		s.archive = store
	}
}

// WithMetrics serves gatherer on /metrics.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = gatherer
	}
}

// WithCredentialStatus reports credential validity on /auth/status.
func WithCredentialStatus(status func() gemini.Status) Option {
	return func(s *Server) {
		s.credentials = status
	}
}

// Server holds the handlers' dependencies.
type Server struct {
	sessions    *session.Store
	personas    *persona.Catalog
	generator   tts.Generator
	batch       BatchRunner
	archive     core.Archive
	gatherer    prometheus.Gatherer
	credentials func() gemini.Status
	logger      *logger.Logger
}

// New creates a server.
func New(
	sessions *session.Store,
	personas *persona.Catalog,
	generator tts.Generator,
	batch BatchRunner,
	log *logger.Logger,
	opts ...Option,
) *Server {
	server := &Server{
		sessions:  sessions,
		personas:  personas,
		generator: generator,
		batch:     batch,
		logger:    log,
		credentials: func() gemini.Status {
			return gemini.Status{Valid: false, Error: gemini.ErrNoCredentials.Error()}
		},
	}

	for _, opt := range opts {
		opt(server)
	}

	return server
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/auth/status", s.handleAuthStatus)

	if s.gatherer != nil {
		r.Handle("/metrics", observability.Handler(s.gatherer))
	}

	r.Post("/generate", s.handleGenerate)
	r.Post("/batch", s.handleBatch)

	r.Get("/personas", s.handleListPersonas)
	r.Get("/voices", s.handleListVoices)

	r.Get("/audio", s.handleListLegacyAudio)
	r.Get("/audio/{filename}", s.handleServeLegacyAudio)
	r.Get("/metadata/{filename}", s.handleServeLegacyMetadata)
	r.Get("/favorites", s.handleListLegacyFavorites)
	r.Post("/favorites/{filename}", s.handleAddLegacyFavorite)
	r.Delete("/favorites/{filename}", s.handleRemoveLegacyFavorite)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Post("/", s.handleCreateSession)
		r.Get("/active", s.handleActiveSession)
		r.Get("/{id}", s.handleGetSession)
		r.Patch("/{id}", s.handleUpdateSession)
		r.Patch("/{id}/favorites", s.handleUpdateSessionFavorites)
		r.Post("/{id}/activate", s.handleActivateSession)
		r.Get("/{id}/audio", s.handleListSessionAudio)
		r.Get("/{id}/audio/{filename}", s.handleServeSessionAudio)
		r.Get("/{id}/metadata/{filename}", s.handleServeSessionMetadata)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.credentials())
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()

	err := json.NewDecoder(r.Body).Decode(out)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}

		return err
	}

	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondStoreError maps session store failures to a status.
func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrNoActiveSession) {
		respondError(w, http.StatusNotFound, "session_not_found", "Session not found")

		return
	}

	s.logger.Error("Session store failure: %v", err)
	respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
}
