package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/book-expert/voice-lab/internal/persona"
)

type personasResponse struct {
	Personas []persona.Persona `json:"personas"`
}

type voicesResponse struct {
	Voices []json.RawMessage `json:"voices"`
}

func (s *Server) handleListPersonas(w http.ResponseWriter, _ *http.Request) {
	personas, err := s.personas.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "catalog_unreadable", err.Error())

		return
	}

	respondJSON(w, http.StatusOK, personasResponse{Personas: personas})
}

func (s *Server) handleListVoices(w http.ResponseWriter, _ *http.Request) {
	voices, err := s.personas.Voices()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "catalog_unreadable", err.Error())

		return
	}

	respondJSON(w, http.StatusOK, voicesResponse{Voices: voices})
}
