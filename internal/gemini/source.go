package gemini

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-lab/internal/core"
	"google.golang.org/genai"
)

const (
	modalityAudio      = "AUDIO"
	logFmtClientOpened = "Gemini client opened (%s)"
	errFmtClientFailed = "failed to create Gemini client: %w"
)

// Source streams synthesized speech from Gemini. The client is opened on first
// use, so a service without credentials still starts and reports the problem
// per generation.
type Source struct {
	settings Settings
	logger   *logger.Logger

	mutex  sync.Mutex
	client *genai.Client
}

// NewSource creates a lazily connected source.
func NewSource(settings Settings, log *logger.Logger) *Source {
	return &Source{settings: settings, logger: log}
}

// Stream implements core.SpeechSource.
func (s *Source) Stream(ctx context.Context, req core.SpeechRequest) iter.Seq2[core.AudioChunk, error] {
	return func(yield func(core.AudioChunk, error) bool) {
		client, err := s.connect(ctx)
		if err != nil {
			yield(core.AudioChunk{}, err)

			return
		}

		responses := client.Models.GenerateContentStream(ctx, string(req.Model), genai.Text(req.Prompt), contentConfig(req))

		for response, streamErr := range responses {
			if streamErr != nil {
				yield(core.AudioChunk{}, streamErr)

				return
			}

			for _, chunk := range audioChunks(response) {
				if !yield(chunk, nil) {
					return
				}
			}
		}
	}
}

func (s *Source) connect(ctx context.Context) (*genai.Client, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	credentials, err := ResolveCredentials(s.settings)
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, clientConfig(credentials))
	if err != nil {
		return nil, fmt.Errorf(errFmtClientFailed, err)
	}

	s.logger.Info(logFmtClientOpened, credentials.Method)
	s.client = client

	return client, nil
}

func clientConfig(credentials Credentials) *genai.ClientConfig {
	if credentials.Method == MethodAPIKey {
		return &genai.ClientConfig{
			APIKey:  credentials.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
	}

	return &genai.ClientConfig{
		Project:  credentials.Project,
		Location: credentials.Location,
		Backend:  genai.BackendVertexAI,
	}
}

func contentConfig(req core.SpeechRequest) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:        genai.Ptr(req.Temperature),
		ResponseModalities: []string{modalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: req.Voice},
			},
		},
	}
}

// audioChunks extracts the inline audio parts of the first candidate in order.
// Responses without a candidate, content or parts yield nothing.
func audioChunks(response *genai.GenerateContentResponse) []core.AudioChunk {
	if response == nil || len(response.Candidates) == 0 {
		return nil
	}

	content := response.Candidates[0].Content
	if content == nil {
		return nil
	}

	chunks := make([]core.AudioChunk, 0, len(content.Parts))

	for _, part := range content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}

		chunks = append(chunks, core.AudioChunk{
			MIMEType: part.InlineData.MIMEType,
			Data:     part.InlineData.Data,
		})
	}

	return chunks
}
