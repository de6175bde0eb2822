package tts

import (
	"github.com/book-expert/voice-lab/internal/core"
	"github.com/book-expert/voice-lab/internal/persona"
)

// BuildPrompt returns the literal text sent to the model. With non-empty tone
// instructions the text is prefixed by a reading directive; otherwise it is
// returned unchanged.
func BuildPrompt(text, toneInstructions string) string {
	if toneInstructions == "" {
		return text
	}

	return "Read aloud in " + toneInstructions + "\n\n" + text
}

// EffectiveTone picks the tone instructions for req: the literal override when
// present, else the resolved persona's own, else none.
func EffectiveTone(req core.GenerationRequest, resolution persona.Resolution) string {
	if req.ToneInstructions != "" {
		return req.ToneInstructions
	}

	if resolution.Found {
		return resolution.Persona.ToneInstructions
	}

	return ""
}
