// Package metadata reads and writes the plain-text sidecar stored next to every
// generated WAV, and derives artifact summaries from it.
package metadata

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/book-expert/voice-lab/internal/persona"
)

// TimestampLayout is the second-resolution stamp used in artifact and session names.
const TimestampLayout = "2006-01-02_150405"

// Sidecar keys.
const (
	KeyVoice            = "voice"
	KeyPersonaID        = "persona_id"
	KeyPersonaName      = "persona_name"
	KeyLocalName        = "local_name"
	KeyArchetype        = "archetype"
	KeyTraits           = "traits"
	KeyToneInstructions = "tone_instructions"
	KeyRecommendedVoice = "recommended_voice"
	KeyIsCustom         = "is_custom"
	KeyModel            = "model"
	KeyText             = "text"
	KeyGeneratedAt      = "generated_at"

	// KeyLegacyPersona is the persona key written before persona_name existed.
	KeyLegacyPersona = "persona"
)

const keySeparator = ": "

// Sidecar is the metadata written for one artifact.
type Sidecar struct {
	Voice string
	// Persona is the resolved record, or persona.Default.
	Persona         persona.Persona
	PersonaResolved bool
	// ToneInstructions is the tone actually injected into the prompt.
	ToneInstructions string
	Model            string
	Text             string
	GeneratedAt      string
}

// Format renders the sidecar as newline-terminated `key: value` lines in the
// fixed key order. The persona detail block, tone instructions included, is
// only written for a resolved persona.
func (s Sidecar) Format() string {
	var builder strings.Builder

	line := func(key, value string) {
		builder.WriteString(key)
		builder.WriteString(keySeparator)
		builder.WriteString(value)
		builder.WriteString("\n")
	}

	line(KeyVoice, s.Voice)
	line(KeyPersonaID, s.Persona.ID)
	line(KeyPersonaName, s.Persona.Name)

	if s.PersonaResolved {
		line(KeyLocalName, s.Persona.LocalName)
		line(KeyArchetype, s.Persona.Archetype)
		line(KeyTraits, s.Persona.Traits)
		line(KeyToneInstructions, s.ToneInstructions)
		line(KeyRecommendedVoice, s.Persona.RecommendedVoice)
		line(KeyIsCustom, strconv.FormatBool(s.Persona.IsCustom))
	}

	line(KeyModel, s.Model)
	line(KeyText, s.Text)
	line(KeyGeneratedAt, s.GeneratedAt)

	return builder.String()
}

// Fields holds the parsed key/value pairs of a sidecar.
type Fields map[string]string

// Has reports whether key was present.
func (f Fields) Has(key string) bool {
	_, ok := f[key]

	return ok
}

var knownKeys = map[string]struct{}{
	KeyVoice: {}, KeyPersonaID: {}, KeyPersonaName: {}, KeyLocalName: {},
	KeyArchetype: {}, KeyTraits: {}, KeyToneInstructions: {}, KeyRecommendedVoice: {},
	KeyIsCustom: {}, KeyModel: {}, KeyText: {}, KeyGeneratedAt: {}, KeyLegacyPersona: {},
}

// Parse reads a sidecar. Values are trimmed. A line that does not start with a
// known key continues the previous value, which keeps multi-line request text intact.
func Parse(reader io.Reader) (Fields, error) {
	fields := make(Fields)
	lastKey := ""

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		text := scanner.Text()

		key, value, found := strings.Cut(text, ":")
		key = strings.TrimSpace(key)

		if _, known := knownKeys[key]; found && known {
			fields[key] = strings.TrimSpace(value)
			lastKey = key

			continue
		}

		if lastKey != "" {
			fields[lastKey] += "\n" + text
		}
	}

	err := scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to read sidecar: %w", err)
	}

	return fields, nil
}
