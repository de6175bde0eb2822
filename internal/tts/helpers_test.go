package tts_test

import (
	"context"
	"errors"
	"iter"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-lab/internal/core"
	"github.com/book-expert/voice-lab/internal/persona"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream exploded")

// scriptedSource replays a fixed list of chunks, optionally followed by an error.
type scriptedSource struct {
	mutex    sync.Mutex
	chunks   []core.AudioChunk
	err      error
	hang     bool
	requests []core.SpeechRequest
}

func (s *scriptedSource) Stream(ctx context.Context, req core.SpeechRequest) iter.Seq2[core.AudioChunk, error] {
	s.mutex.Lock()
	s.requests = append(s.requests, req)
	s.mutex.Unlock()

	return func(yield func(core.AudioChunk, error) bool) {
		if s.hang {
			<-ctx.Done()
			yield(core.AudioChunk{}, ctx.Err())

			return
		}

		for _, chunk := range s.chunks {
			if !yield(chunk, nil) {
				return
			}
		}

		if s.err != nil {
			yield(core.AudioChunk{}, s.err)
		}
	}
}

func (s *scriptedSource) lastRequest() core.SpeechRequest {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.requests[len(s.requests)-1]
}

// jitterSource delivers chunks from a producer goroutine with random delays.
type jitterSource struct {
	chunks []core.AudioChunk
}

func (s *jitterSource) Stream(ctx context.Context, _ core.SpeechRequest) iter.Seq2[core.AudioChunk, error] {
	return func(yield func(core.AudioChunk, error) bool) {
		delivered := make(chan core.AudioChunk)

		go func() {
			defer close(delivered)

			for _, chunk := range s.chunks {
				time.Sleep(time.Duration(rand.IntN(3000)) * time.Microsecond)

				select {
				case delivered <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}()

		for chunk := range delivered {
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// staticPersonas is an in-memory persona lookup.
type staticPersonas map[string]persona.Persona

func (p staticPersonas) Resolve(id string) (persona.Resolution, error) {
	found, ok := p[id]
	if !ok {
		return persona.NotFound(), nil
	}

	return persona.Resolution{Persona: found, Found: true}, nil
}

type failingPersonas struct{}

func (failingPersonas) Resolve(string) (persona.Resolution, error) {
	return persona.NotFound(), errors.New("catalog unreadable")
}

var busyBoss = persona.Persona{
	ID:               "busy_boss",
	Name:             "Busy Boss",
	LocalName:        "Mang",
	Archetype:        "SME Owner",
	Traits:           "Impatient, abrupt, rushing",
	ToneInstructions: "Fast pace, annoyed tone.",
	RecommendedVoice: "Fenrir",
}

// memoryStore is an in-memory core.ObjectStore.
type memoryStore struct {
	mutex   sync.Mutex
	objects map[string][]byte
	fail    bool
}

func (m *memoryStore) Upload(_ context.Context, key string, data []byte) error {
	if m.fail {
		return errUpstream
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}

	m.objects[key] = data

	return nil
}

func (m *memoryStore) Download(_ context.Context, key string) ([]byte, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.objects[key], nil
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "tts-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testLogger.Close() })

	return testLogger
}

func fixedClock() time.Time {
	return time.Date(2026, 1, 14, 1, 44, 10, 0, time.Local)
}

// recordingJitterSource records each voice's prompt and streams a short PCM payload.
type recordingJitterSource struct {
	prompts *sync.Map
}

func (s *recordingJitterSource) Stream(ctx context.Context, req core.SpeechRequest) iter.Seq2[core.AudioChunk, error] {
	s.prompts.Store(req.Voice, req.Prompt)

	inner := &jitterSource{chunks: []core.AudioChunk{
		{MIMEType: "audio/L16;rate=24000", Data: make([]byte, 4800)},
		{Data: make([]byte, 4800)},
	}}

	return inner.Stream(ctx, req)
}
