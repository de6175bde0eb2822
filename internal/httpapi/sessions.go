package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/book-expert/voice-lab/internal/session"
	"github.com/go-chi/chi/v5"
)

type updateSessionRequest struct {
	Voices []string `json:"voices"`
	Files  []string `json:"files"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions, err := s.sessions.List()
	if err != nil {
		s.respondStoreError(w, err)

		return
	}

	respondJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest

	err := decodeJSON(r, &req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())

		return
	}

	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "name is required")

		return
	}

	created, err := s.sessions.Create(req)
	if err != nil {
		s.respondStoreError(w, err)

		return
	}

	respondJSON(w, http.StatusOK, created)
}

func (s *Server) handleActiveSession(w http.ResponseWriter, _ *http.Request) {
	active, err := s.sessions.Active()
	if err != nil {
		s.respondStoreError(w, err)

		return
	}

	respondJSON(w, http.StatusOK, active)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	found, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err)

		return
	}

	respondJSON(w, http.StatusOK, found)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var req updateSessionRequest

	err := decodeJSON(r, &req)
	if err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())

		return
	}

	updated, err := s.sessions.Append(chi.URLParam(r, "id"), req.Voices, req.Files)
	if err != nil {
		s.respondStoreError(w, err)

		return
	}

	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleUpdateSessionFavorites(w http.ResponseWriter, r *http.Request) {
	var favorites []string

	err := decodeJSON(r, &favorites)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())

		return
	}

	updated, err := s.sessions.UpdateFavorites(chi.URLParam(r, "id"), favorites)
	if err != nil {
		s.respondStoreError(w, err)

		return
	}

	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleActivateSession(w http.ResponseWriter, r *http.Request) {
	activated, err := s.sessions.SetActive(chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err)

		return
	}

	respondJSON(w, http.StatusOK, activated)
}

func (s *Server) handleListSessionAudio(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	folder, ok := s.existingSessionFolder(sessionID)
	if ok {
		s.restoreFolder(r, sessionID, folder)
	}

	summaries, err := s.sessions.ListAudio(sessionID)
	if err != nil {
		s.respondStoreError(w, err)

		return
	}

	respondJSON(w, http.StatusOK, summaries)
}
