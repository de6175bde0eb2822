// Package tts turns a generation request into a stored WAV artifact: it builds
// the prompt, drains the model's response stream, frames the audio, writes the
// WAV and its sidecar, and registers the artifact with the owning session.
package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-lab/internal/audio"
	"github.com/book-expert/voice-lab/internal/core"
	"github.com/book-expert/voice-lab/internal/fsutil"
	"github.com/book-expert/voice-lab/internal/metadata"
	"github.com/book-expert/voice-lab/internal/observability"
	"github.com/book-expert/voice-lab/internal/persona"
	"github.com/google/uuid"
)

// Defaults.
const (
	DefaultTimeout     = 120 * time.Second
	DefaultTemperature = 1.0
)

// Static errors.
var (
	ErrVoiceEmpty     = errors.New("voice cannot be empty")
	ErrTextEmpty      = errors.New("text cannot be empty")
	// ErrUnknownSession is returned when the owning session has no stored record.
	ErrUnknownSession = errors.New("session not found")
)

// Log formats.
const (
	logFmtGenerated        = "[%s] Generated %s (%d chunks, %d bytes) in %s"
	logFmtFailed           = "[%s] Generation for voice %s failed: %v"
	logFmtArchiveFailed    = "[%s] Failed to archive %s: %v"
	logFmtCleanupFailed    = "[%s] Failed to remove partial artifact %s: %v"
	errFmtWriteFailed      = "failed to write %s: %w"
	errFmtRegisterFailed   = "failed to register artifact with session %s: %w"
	errFmtResolveFailed    = "failed to resolve persona '%s': %w"
	errFmtDestinationError = "failed to prepare output folder: %w"
	errFmtUnknownSession   = "%w: %s"
)

// Sessions is the part of the session store the engine depends on.
type Sessions interface {
	ActiveID() string
	LegacyFolder() string
	Folder(id string) (string, error)
	// Exists reports whether id has a stored record.
	Exists(id string) (bool, error)
	// RecordArtifact reports false when the session has no stored record.
	RecordArtifact(id, filename, voice string) (bool, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithArchive mirrors every written WAV into store.
func WithArchive(store core.ObjectStore) Option {
	return func(e *Engine) {
		e.archive = store
	}
}

// WithMetrics records generation outcomes.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// WithClock replaces the clock used for artifact names.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithTimeout bounds a single generation. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		e.timeout = timeout
	}
}

// WithDefaultModel selects the model used when a request names none.
func WithDefaultModel(model core.Model) Option {
	return func(e *Engine) {
		e.defaultModel = model
	}
}

// WithTemperature sets the sampling temperature sent to the model.
func WithTemperature(temperature float32) Option {
	return func(e *Engine) {
		e.temperature = temperature
	}
}

// Engine runs single generations. It is safe for concurrent use.
type Engine struct {
	source       core.SpeechSource
	personas     persona.Lookup
	sessions     Sessions
	archive      core.ObjectStore
	metrics      *observability.Metrics
	logger       *logger.Logger
	now          func() time.Time
	timeout      time.Duration
	temperature  float32
	defaultModel core.Model
}

// NewEngine creates an engine over the given model source, persona lookup and session store.
func NewEngine(
	source core.SpeechSource,
	personas persona.Lookup,
	sessions Sessions,
	log *logger.Logger,
	opts ...Option,
) *Engine {
	engine := &Engine{
		source:       source,
		personas:     personas,
		sessions:     sessions,
		logger:       log,
		now:          time.Now,
		timeout:      DefaultTimeout,
		temperature:  DefaultTemperature,
		defaultModel: core.DefaultModel,
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// artifact is a generation that has been written to disk.
type artifact struct {
	audioName    string
	metadataName string
	owner        string
	size         int
	chunks       int
}

// Generate runs one generation. sessionID selects the owning session; when it
// is empty the active session is used, and without one the artifact goes to the
// legacy folder. A session without a stored record fails the generation before
// the model is called. Every failure is returned as a failed result, never as a panic
// or error.
func (e *Engine) Generate(ctx context.Context, req core.GenerationRequest, sessionID string) core.GenerationResult {
	jobID := uuid.NewString()
	started := time.Now()

	written, err := e.generate(ctx, jobID, req, sessionID)
	if err != nil {
		e.logger.Error(logFmtFailed, jobID, req.Voice, err)
		e.metrics.ObserveGeneration(observability.OutcomeFailure, time.Since(started), 0)

		return core.Failed(err)
	}

	elapsed := time.Since(started)
	e.metrics.ObserveGeneration(observability.OutcomeSuccess, elapsed, written.size)
	e.logger.Info(logFmtGenerated, jobID, written.audioName, written.chunks, written.size, elapsed)

	return core.Succeeded(written.audioName, written.metadataName, written.owner)
}

func (e *Engine) generate(
	ctx context.Context,
	jobID string,
	req core.GenerationRequest,
	sessionID string,
) (artifact, error) {
	model, err := e.validateRequest(req)
	if err != nil {
		return artifact{}, err
	}

	resolution, err := e.personas.Resolve(req.PersonaID)
	if err != nil {
		return artifact{}, fmt.Errorf(errFmtResolveFailed, req.PersonaID, err)
	}

	tone := EffectiveTone(req, resolution)

	owner, folder, err := e.destination(sessionID)
	if err != nil {
		return artifact{}, err
	}

	assembled, err := e.stream(ctx, core.SpeechRequest{
		Model:       model,
		Voice:       req.Voice,
		Prompt:      BuildPrompt(req.Text, tone),
		Temperature: e.temperature,
	})
	if err != nil {
		return artifact{}, err
	}

	wavData := audio.EncodeWAV(assembled.PCM, assembled.MIMEType)

	stamp := e.now().Format(metadata.TimestampLayout)
	baseName := fmt.Sprintf("%s_%s_%s", stamp, fsutil.SafeName(req.Voice), fsutil.SafeName(resolution.Persona.Name))

	written := artifact{
		audioName:    baseName + fsutil.ExtWAV,
		metadataName: baseName + fsutil.ExtTXT,
		owner:        owner,
		size:         len(wavData),
		chunks:       assembled.Chunks,
	}

	sidecar := metadata.Sidecar{
		Voice:            req.Voice,
		Persona:          resolution.Persona,
		PersonaResolved:  resolution.Found,
		ToneInstructions: tone,
		Model:            string(model),
		Text:             req.Text,
		GeneratedAt:      stamp,
	}

	err = e.writeArtifact(jobID, folder, written, wavData, []byte(sidecar.Format()))
	if err != nil {
		return artifact{}, err
	}

	if owner != "" {
		err = e.register(jobID, folder, written, req.Voice)
		if err != nil {
			return artifact{}, err
		}
	}

	e.archiveAudio(ctx, jobID, owner, written.audioName, wavData)

	return written, nil
}

func (e *Engine) validateRequest(req core.GenerationRequest) (core.Model, error) {
	if req.Voice == "" {
		return "", ErrVoiceEmpty
	}

	if req.Text == "" {
		return "", ErrTextEmpty
	}

	if req.Model == "" {
		return e.defaultModel, nil
	}

	return core.ParseModel(string(req.Model))
}

func (e *Engine) stream(ctx context.Context, req core.SpeechRequest) (Assembled, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	return Assemble(e.source.Stream(ctx, req))
}

// destination resolves the owning session and its folder. Only an empty id with
// no active session falls back to the legacy folder; a session without a stored
// record is an error.
func (e *Engine) destination(sessionID string) (string, string, error) {
	owner := sessionID
	if owner == "" {
		owner = e.sessions.ActiveID()
	}

	if owner == "" {
		return "", e.sessions.LegacyFolder(), nil
	}

	folder, err := e.sessions.Folder(owner)
	if err != nil {
		return "", "", fmt.Errorf(errFmtDestinationError, err)
	}

	exists, err := e.sessions.Exists(owner)
	if err != nil {
		return "", "", fmt.Errorf(errFmtDestinationError, err)
	}

	if !exists {
		return "", "", fmt.Errorf(errFmtUnknownSession, ErrUnknownSession, owner)
	}

	return owner, folder, nil
}

// writeArtifact writes the WAV then the sidecar. If the sidecar cannot be
// written the WAV is removed again.
func (e *Engine) writeArtifact(jobID, folder string, written artifact, wavData, sidecar []byte) error {
	err := fsutil.EnsureDir(folder)
	if err != nil {
		return fmt.Errorf(errFmtDestinationError, err)
	}

	audioPath := filepath.Join(folder, written.audioName)

	err = os.WriteFile(audioPath, wavData, fsutil.FilePermissions)
	if err != nil {
		e.removePartial(jobID, audioPath)

		return fmt.Errorf(errFmtWriteFailed, written.audioName, err)
	}

	err = os.WriteFile(filepath.Join(folder, written.metadataName), sidecar, fsutil.FilePermissions)
	if err != nil {
		e.removePartial(jobID, filepath.Join(folder, written.metadataName))
		e.removePartial(jobID, audioPath)

		return fmt.Errorf(errFmtWriteFailed, written.metadataName, err)
	}

	return nil
}

func (e *Engine) register(jobID, folder string, written artifact, voice string) error {
	recorded, err := e.sessions.RecordArtifact(written.owner, written.audioName, voice)
	if err == nil && recorded {
		return nil
	}

	if err == nil {
		err = ErrUnknownSession
	}

	e.removePartial(jobID, filepath.Join(folder, written.metadataName))
	e.removePartial(jobID, filepath.Join(folder, written.audioName))

	return fmt.Errorf(errFmtRegisterFailed, written.owner, err)
}

func (e *Engine) removePartial(jobID, path string) {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		e.logger.Warn(logFmtCleanupFailed, jobID, path, err)
	}
}

// archiveAudio mirrors the WAV into the object store. Archive failures are
// logged only; the artifact on disk is the source of truth.
func (e *Engine) archiveAudio(ctx context.Context, jobID, owner, audioName string, wavData []byte) {
	if e.archive == nil {
		return
	}

	key := ArchiveKey(owner, audioName)

	err := e.archive.Upload(ctx, key, wavData)
	if err != nil {
		e.logger.Warn(logFmtArchiveFailed, jobID, key, err)
	}
}

// LegacyArchivePrefix is the archive folder key for artifacts without a session.
const LegacyArchivePrefix = "legacy"

// ArchiveKey names an artifact inside the object store.
func ArchiveKey(sessionID, filename string) string {
	if sessionID == "" {
		return LegacyArchivePrefix + "/" + filename
	}

	return sessionID + "/" + filename
}
