package httpapi

import (
	"net/http"

	"github.com/book-expert/voice-lab/internal/core"
)

// generateRequest is the body of POST /generate. SessionID overrides the active session.
type generateRequest struct {
	core.GenerationRequest
	SessionID string `json:"session_id,omitempty"`
}

// batchRequest is the body of POST /batch.
type batchRequest struct {
	core.BatchRequest
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest

	err := decodeJSON(r, &req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())

		return
	}

	respondJSON(w, http.StatusOK, s.generator.Generate(r.Context(), req.GenerationRequest, req.SessionID))
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest

	err := decodeJSON(r, &req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())

		return
	}

	if len(req.Voices) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "voices cannot be empty")

		return
	}

	results := s.batch.Generate(r.Context(), req.BatchRequest, req.SessionID)

	respondJSON(w, http.StatusOK, core.BatchResult{Results: results, Total: len(results)})
}
