package tts

import (
	"bytes"
	"errors"
	"fmt"
	"iter"

	"github.com/book-expert/voice-lab/internal/audio"
	"github.com/book-expert/voice-lab/internal/core"
)

// ErrNoAudio is returned when a stream ends without a single audio payload.
// The message is part of the public result contract.
//
//nolint:staticcheck // capitalized message is the documented client-facing text
var ErrNoAudio = errors.New("No audio data received")

// Assembled is the fold of one response stream.
type Assembled struct {
	PCM      []byte
	MIMEType string
	Chunks   int
}

// Assemble drains chunks in arrival order, concatenating every audio payload
// and keeping the first MIME descriptor seen. Chunks without data are skipped.
// When no chunk carried a descriptor the default L16/24 kHz one is used.
func Assemble(chunks iter.Seq2[core.AudioChunk, error]) (Assembled, error) {
	var (
		pcm      bytes.Buffer
		mimeType string
		count    int
	)

	for chunk, err := range chunks {
		if err != nil {
			return Assembled{}, fmt.Errorf("speech stream failed: %w", err)
		}

		if len(chunk.Data) == 0 {
			continue
		}

		pcm.Write(chunk.Data)

		count++

		if mimeType == "" && chunk.MIMEType != "" {
			mimeType = chunk.MIMEType
		}
	}

	if count == 0 {
		return Assembled{}, ErrNoAudio
	}

	if mimeType == "" {
		mimeType = audio.DefaultMIMEType
	}

	return Assembled{PCM: pcm.Bytes(), MIMEType: mimeType, Chunks: count}, nil
}
