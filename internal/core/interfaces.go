// Package core defines the shared types and boundary interfaces for the voice-lab service.
package core

import (
	"context"
	"iter"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// Archive is an ObjectStore that can enumerate its keys.
type Archive interface {
	ObjectStore
	Keys(ctx context.Context) ([]string, error)
}

// SpeechRequest is what the engine hands to the external model for one generation.
type SpeechRequest struct {
	Model       Model
	Voice       string
	Prompt      string
	Temperature float32
}

// AudioChunk is one event of a model response stream. A chunk without Data
// carries no audio and is skipped by consumers.
type AudioChunk struct {
	MIMEType string
	Data     []byte
}

// SpeechSource is the external generative model. Stream returns a lazy, finite,
// non-restartable sequence of chunks; a non-nil error ends the sequence.
type SpeechSource interface {
	Stream(ctx context.Context, req SpeechRequest) iter.Seq2[AudioChunk, error]
}
