package httpapi

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/voice-lab/internal/fsutil"
	"github.com/book-expert/voice-lab/internal/tts"
	"github.com/go-chi/chi/v5"
)

const (
	contentTypeWAV          = "audio/wav"
	contentTypeText         = "text/plain; charset=utf-8"
	msgAudioNotFound        = "Audio file not found"
	msgMetadataNotFound     = "Metadata file not found"
	logFmtRestored          = "Restored %s from archive"
	logFmtRestoreWriteError = "Failed to write restored %s: %v"
	logFmtArchiveListError  = "Failed to list archive for %q: %v"
)

type favoritesResponse struct {
	Success   bool     `json:"success"`
	Favorites []string `json:"favorites"`
}

func (s *Server) handleListLegacyAudio(w http.ResponseWriter, r *http.Request) {
	s.restoreFolder(r, "", s.sessions.LegacyFolder())

	summaries, err := s.sessions.ListLegacyAudio()
	if err != nil {
		s.respondStoreError(w, err)

		return
	}

	respondJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleListLegacyFavorites(w http.ResponseWriter, r *http.Request) {
	s.restoreFolder(r, "", s.sessions.LegacyFolder())

	summaries, err := s.sessions.LegacyFavoriteAudio()
	if err != nil {
		s.respondStoreError(w, err)

		return
	}

	respondJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleAddLegacyFavorite(w http.ResponseWriter, r *http.Request) {
	favorites, err := s.sessions.AddLegacyFavorite(chi.URLParam(r, "filename"))
	if err != nil {
		s.respondStoreError(w, err)

		return
	}

	respondJSON(w, http.StatusOK, favoritesResponse{Success: true, Favorites: favorites})
}

func (s *Server) handleRemoveLegacyFavorite(w http.ResponseWriter, r *http.Request) {
	favorites, err := s.sessions.RemoveLegacyFavorite(chi.URLParam(r, "filename"))
	if err != nil {
		s.respondStoreError(w, err)

		return
	}

	respondJSON(w, http.StatusOK, favoritesResponse{Success: true, Favorites: favorites})
}

func (s *Server) handleServeLegacyAudio(w http.ResponseWriter, r *http.Request) {
	s.serveAudio(w, r, "", s.sessions.LegacyFolder())
}

func (s *Server) handleServeLegacyMetadata(w http.ResponseWriter, r *http.Request) {
	serveMetadata(w, r, s.sessions.LegacyFolder())
}

func (s *Server) handleServeSessionAudio(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	folder, ok := s.existingSessionFolder(sessionID)
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", msgAudioNotFound)

		return
	}

	s.serveAudio(w, r, sessionID, folder)
}

func (s *Server) handleServeSessionMetadata(w http.ResponseWriter, r *http.Request) {
	folder, err := s.sessions.Folder(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "not_found", msgMetadataNotFound)

		return
	}

	serveMetadata(w, r, folder)
}

// serveAudio serves a WAV from folder, restoring it from the archive first
// when it is missing on disk. Only regular `.wav` files are served.
func (s *Server) serveAudio(w http.ResponseWriter, r *http.Request, sessionID, folder string) {
	filename := chi.URLParam(r, "filename")
	if fsutil.ValidName(filename) != nil || !fsutil.IsAudioFile(filename) {
		respondError(w, http.StatusNotFound, "not_found", msgAudioNotFound)

		return
	}

	path := filepath.Join(folder, filename)

	if !fsutil.Exists(path) && !s.restore(r, sessionID, folder, filename) {
		respondError(w, http.StatusNotFound, "not_found", msgAudioNotFound)

		return
	}

	if !fsutil.IsRegularFile(path) {
		respondError(w, http.StatusNotFound, "not_found", msgAudioNotFound)

		return
	}

	w.Header().Set("Content-Type", contentTypeWAV)
	http.ServeFile(w, r, path)
}

// existingSessionFolder returns the folder of sessionID when it has a stored record.
func (s *Server) existingSessionFolder(sessionID string) (string, bool) {
	folder, err := s.sessions.Folder(sessionID)
	if err != nil {
		return "", false
	}

	exists, err := s.sessions.Exists(sessionID)
	if err != nil || !exists {
		return "", false
	}

	return folder, true
}

// restoreFolder copies every archived WAV of sessionID that is missing from
// folder back to disk, so listings include it.
func (s *Server) restoreFolder(r *http.Request, sessionID, folder string) {
	if s.archive == nil {
		return
	}

	keys, err := s.archive.Keys(r.Context())
	if err != nil {
		s.logger.Warn(logFmtArchiveListError, sessionID, err)

		return
	}

	prefix := tts.ArchiveKey(sessionID, "")

	for _, key := range keys {
		filename, found := strings.CutPrefix(key, prefix)
		if !found || fsutil.ValidName(filename) != nil || !fsutil.IsAudioFile(filename) {
			continue
		}

		if !fsutil.Exists(filepath.Join(folder, filename)) {
			s.restore(r, sessionID, folder, filename)
		}
	}
}

// restore copies an archived artifact back to folder. It reports whether the
// file now exists on disk.
func (s *Server) restore(r *http.Request, sessionID, folder, filename string) bool {
	if s.archive == nil {
		return false
	}

	key := tts.ArchiveKey(sessionID, filename)

	data, err := s.archive.Download(r.Context(), key)
	if err != nil {
		return false
	}

	err = fsutil.EnsureDir(folder)
	if err == nil {
		err = os.WriteFile(filepath.Join(folder, filename), data, fsutil.FilePermissions)
	}

	if err != nil {
		s.logger.Warn(logFmtRestoreWriteError, key, err)

		return false
	}

	s.logger.Info(logFmtRestored, key)

	return true
}

func serveMetadata(w http.ResponseWriter, r *http.Request, folder string) {
	filename := chi.URLParam(r, "filename")
	if fsutil.ValidName(filename) != nil {
		respondError(w, http.StatusNotFound, "not_found", msgMetadataNotFound)

		return
	}

	path := filepath.Join(folder, filename)
	if fsutil.Exists(path) && !fsutil.IsRegularFile(path) {
		respondError(w, http.StatusNotFound, "not_found", msgMetadataNotFound)

		return
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		respondError(w, http.StatusNotFound, "not_found", msgMetadataNotFound)

		return
	}

	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())

		return
	}

	w.Header().Set("Content-Type", contentTypeText)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
