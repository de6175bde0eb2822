package core

import (
	"errors"
	"fmt"
)

// Model selects one of the supported model variants.
type Model string

// Supported model variants.
const (
	ModelFlash Model = "gemini-2.5-flash-preview-tts"
	ModelPro   Model = "gemini-2.5-pro-preview-tts"
)

// DefaultModel is used when a request leaves the model unset.
const DefaultModel = ModelFlash

// ErrUnsupportedModel indicates that a request named an unknown model variant.
var ErrUnsupportedModel = errors.New("unsupported model")

// ParseModel validates a model identifier. An empty string selects DefaultModel.
func ParseModel(value string) (Model, error) {
	switch Model(value) {
	case "":
		return DefaultModel, nil
	case ModelFlash, ModelPro:
		return Model(value), nil
	default:
		return "", fmt.Errorf("%w: '%s'", ErrUnsupportedModel, value)
	}
}

// GenerationRequest describes one text-to-speech generation.
// ToneInstructions, when set, takes precedence over the persona's own.
type GenerationRequest struct {
	Voice            string `json:"voice"`
	Text             string `json:"text"`
	PersonaID        string `json:"persona_id,omitempty"`
	ToneInstructions string `json:"tone_instructions,omitempty"`
	Model            Model  `json:"model,omitempty"`
}

// BatchRequest fans one text/persona request out across several voices.
type BatchRequest struct {
	Voices           []string `json:"voices"`
	Text             string   `json:"text"`
	PersonaID        string   `json:"persona_id,omitempty"`
	ToneInstructions string   `json:"tone_instructions,omitempty"`
	Model            Model    `json:"model,omitempty"`
}

// ForVoice returns the single-voice request for voice.
func (b BatchRequest) ForVoice(voice string) GenerationRequest {
	return GenerationRequest{
		Voice:            voice,
		Text:             b.Text,
		PersonaID:        b.PersonaID,
		ToneInstructions: b.ToneInstructions,
		Model:            b.Model,
	}
}

// GenerationResult is the tagged outcome of a generation. On success the file
// fields are set and Error is empty; on failure only Error is set.
type GenerationResult struct {
	Success      bool   `json:"success"`
	FilePath     string `json:"file_path,omitempty"`
	MetadataPath string `json:"metadata_path,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// BatchResult is the aggregate response of a batch generation.
type BatchResult struct {
	Results []GenerationResult `json:"results"`
	Total   int                `json:"total"`
}

// Succeeded builds a success result.
func Succeeded(filePath, metadataPath, sessionID string) GenerationResult {
	return GenerationResult{
		Success:      true,
		FilePath:     filePath,
		MetadataPath: metadataPath,
		SessionID:    sessionID,
	}
}

// Failed builds a failure result carrying err's message.
func Failed(err error) GenerationResult {
	return GenerationResult{Success: false, Error: err.Error()}
}
