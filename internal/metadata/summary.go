package metadata

import (
	"strings"

	"github.com/book-expert/voice-lab/internal/persona"
)

const unknownVoice = "unknown"

// Summary describes one stored audio artifact.
type Summary struct {
	Filename        string  `json:"filename"`
	Voice           string  `json:"voice"`
	Persona         string  `json:"persona"`
	Timestamp       string  `json:"timestamp"`
	SizeBytes       int64   `json:"size_bytes"`
	DurationSeconds float64 `json:"duration_seconds"`
	IsFavorite      bool    `json:"is_favorite"`
	SessionID       string  `json:"session_id,omitempty"`
}

// Labels are the descriptive fields of a summary.
type Labels struct {
	Voice     string
	Persona   string
	Timestamp string
}

// LabelsFromSidecar is the primary source of labels: a parsed sidecar.
func LabelsFromSidecar(fields Fields) Labels {
	labels := Labels{Voice: unknownVoice, Persona: persona.DefaultName}

	if voice, ok := fields[KeyVoice]; ok {
		labels.Voice = voice
	}

	if name, ok := fields[KeyPersonaName]; ok {
		labels.Persona = name
	} else if name, ok := fields[KeyLegacyPersona]; ok {
		labels.Persona = name
	}

	labels.Timestamp = fields[KeyGeneratedAt]

	return labels
}

// LabelsFromFilename is the heuristic fallback for artifacts without a sidecar.
// It splits a `{date}_{time}_{voice}_{persona...}` stem on underscores.
func LabelsFromFilename(stem string) Labels {
	labels := Labels{Voice: unknownVoice, Persona: persona.DefaultName}

	parts := strings.Split(stem, "_")
	if len(parts) < 3 {
		return labels
	}

	labels.Timestamp = parts[0] + "_" + parts[1]
	labels.Voice = parts[2]

	if len(parts) > 3 {
		labels.Persona = strings.Join(parts[3:], "_")
	}

	return labels
}
