package tts_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/voice-lab/internal/audio"
	"github.com/book-expert/voice-lab/internal/core"
	"github.com/book-expert/voice-lab/internal/metadata"
	"github.com/book-expert/voice-lab/internal/session"
	"github.com/book-expert/voice-lab/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const expectedStem = "2026-01-14_014410_Zephyr_Busy_Boss"

type engineFixture struct {
	store  *session.Store
	source *scriptedSource
	engine *tts.Engine
}

func newEngineFixture(t *testing.T, source *scriptedSource, opts ...tts.Option) engineFixture {
	t.Helper()

	log := newTestLogger(t)

	store, err := session.NewStore(t.TempDir(), log, session.WithClock(fixedClock))
	require.NoError(t, err)

	opts = append([]tts.Option{tts.WithClock(fixedClock)}, opts...)
	personas := staticPersonas{busyBoss.ID: busyBoss}

	return engineFixture{
		store:  store,
		source: source,
		engine: tts.NewEngine(source, personas, store, log, opts...),
	}
}

func pcmSource() *scriptedSource {
	return &scriptedSource{chunks: []core.AudioChunk{
		{MIMEType: "audio/L16;rate=24000", Data: []byte("AB")},
		{Data: []byte("CD")},
		{Data: []byte("EF")},
	}}
}

func folderEntries(t *testing.T, folder string) []string {
	t.Helper()

	entries, err := os.ReadDir(folder)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}

	return names
}

func TestEngine_WritesLegacyArtifact(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t, pcmSource())

	result := fixture.engine.Generate(context.Background(), core.GenerationRequest{
		Voice:     "Zephyr",
		Text:      "Where is the report?",
		PersonaID: busyBoss.ID,
	}, "")

	require.True(t, result.Success, result.Error)
	assert.Equal(t, expectedStem+".wav", result.FilePath)
	assert.Equal(t, expectedStem+".txt", result.MetadataPath)
	assert.Empty(t, result.SessionID)

	folder := fixture.store.LegacyFolder()

	wavData, err := os.ReadFile(filepath.Join(folder, result.FilePath))
	require.NoError(t, err)
	assert.Len(t, wavData, audio.HeaderSize+6)
	assert.Equal(t, []byte("ABCDEF"), wavData[audio.HeaderSize:])
	assert.Equal(t, audio.EncodeWAV([]byte("ABCDEF"), "audio/L16;rate=24000"), wavData)

	sidecar, err := os.ReadFile(filepath.Join(folder, result.MetadataPath))
	require.NoError(t, err)

	fields, err := metadata.Parse(strings.NewReader(string(sidecar)))
	require.NoError(t, err)
	assert.Equal(t, "Zephyr", fields[metadata.KeyVoice])
	assert.Equal(t, "busy_boss", fields[metadata.KeyPersonaID])
	assert.Equal(t, "Busy Boss", fields[metadata.KeyPersonaName])
	assert.Equal(t, "Fast pace, annoyed tone.", fields[metadata.KeyToneInstructions])
	assert.Equal(t, "false", fields[metadata.KeyIsCustom])
	assert.Equal(t, string(core.ModelFlash), fields[metadata.KeyModel])
	assert.Equal(t, "Where is the report?", fields[metadata.KeyText])
	assert.Equal(t, "2026-01-14_014410", fields[metadata.KeyGeneratedAt])

	request := fixture.source.lastRequest()
	assert.Equal(t, "Read aloud in Fast pace, annoyed tone.\n\nWhere is the report?", request.Prompt)
	assert.Equal(t, "Zephyr", request.Voice)
	assert.Equal(t, core.ModelFlash, request.Model)
	assert.InDelta(t, tts.DefaultTemperature, request.Temperature, 0.0001)
}

func TestEngine_ToneOverrideWins(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t, pcmSource(), tts.WithTemperature(0.4))

	result := fixture.engine.Generate(context.Background(), core.GenerationRequest{
		Voice:            "Zephyr",
		Text:             "Hi",
		PersonaID:        busyBoss.ID,
		ToneInstructions: "Slow and warm.",
		Model:            core.ModelPro,
	}, "")
	require.True(t, result.Success, result.Error)

	request := fixture.source.lastRequest()
	assert.Equal(t, "Read aloud in Slow and warm.\n\nHi", request.Prompt)
	assert.Equal(t, core.ModelPro, request.Model)
	assert.InDelta(t, 0.4, request.Temperature, 0.0001)

	sidecar, err := os.ReadFile(filepath.Join(fixture.store.LegacyFolder(), result.MetadataPath))
	require.NoError(t, err)
	assert.Contains(t, string(sidecar), "tone_instructions: Slow and warm.\n")
}

func TestEngine_UnknownPersonaUsesDefaultLabel(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t, pcmSource())

	result := fixture.engine.Generate(context.Background(), core.GenerationRequest{
		Voice:     "Puck",
		Text:      "Hi",
		PersonaID: "ghost",
	}, "")
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "2026-01-14_014410_Puck_default.wav", result.FilePath)
	assert.Equal(t, "Hi", fixture.source.lastRequest().Prompt)

	sidecar, err := os.ReadFile(filepath.Join(fixture.store.LegacyFolder(), result.MetadataPath))
	require.NoError(t, err)
	assert.Equal(t,
		"voice: Puck\npersona_id: none\npersona_name: default\nmodel: "+string(core.ModelFlash)+
			"\ntext: Hi\ngenerated_at: 2026-01-14_014410\n",
		string(sidecar))
}

func TestEngine_ToneOverrideWithoutPersonaKeepsKeyOrder(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t, pcmSource())

	result := fixture.engine.Generate(context.Background(), core.GenerationRequest{
		Voice:            "Puck",
		Text:             "Hi",
		ToneInstructions: "Slow and warm.",
	}, "")
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "Read aloud in Slow and warm.\n\nHi", fixture.source.lastRequest().Prompt)

	sidecar, err := os.ReadFile(filepath.Join(fixture.store.LegacyFolder(), result.MetadataPath))
	require.NoError(t, err)
	assert.Equal(t,
		"voice: Puck\npersona_id: none\npersona_name: default\nmodel: "+string(core.ModelFlash)+
			"\ntext: Hi\ngenerated_at: 2026-01-14_014410\n",
		string(sidecar))
}

func TestEngine_NoAudioLeavesNoFiles(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t, &scriptedSource{chunks: []core.AudioChunk{{MIMEType: "audio/L16;rate=24000"}}})

	result := fixture.engine.Generate(context.Background(), core.GenerationRequest{Voice: "Zephyr", Text: "Hi"}, "")

	assert.False(t, result.Success)
	assert.Equal(t, "No audio data received", result.Error)
	assert.Empty(t, result.FilePath)
	assert.Empty(t, folderEntries(t, fixture.store.LegacyFolder()))
}

func TestEngine_UpstreamErrorLeavesNoFiles(t *testing.T) {
	t.Parallel()

	source := pcmSource()
	source.err = errUpstream
	fixture := newEngineFixture(t, source)

	result := fixture.engine.Generate(context.Background(), core.GenerationRequest{Voice: "Zephyr", Text: "Hi"}, "")

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, errUpstream.Error())
	assert.Empty(t, folderEntries(t, fixture.store.LegacyFolder()))
}

func TestEngine_TimeoutFailsGeneration(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t, &scriptedSource{hang: true}, tts.WithTimeout(20*time.Millisecond))

	result := fixture.engine.Generate(context.Background(), core.GenerationRequest{Voice: "Zephyr", Text: "Hi"}, "")

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, context.DeadlineExceeded.Error())
}

func TestEngine_RejectsInvalidRequests(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t, pcmSource())

	testCases := []struct {
		name    string
		request core.GenerationRequest
		message string
	}{
		{"missing voice", core.GenerationRequest{Text: "Hi"}, tts.ErrVoiceEmpty.Error()},
		{"missing text", core.GenerationRequest{Voice: "Puck"}, tts.ErrTextEmpty.Error()},
		{"bad model", core.GenerationRequest{Voice: "Puck", Text: "Hi", Model: "gpt-voice"}, core.ErrUnsupportedModel.Error()},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			result := fixture.engine.Generate(context.Background(), testCase.request, "")
			assert.False(t, result.Success)
			assert.Contains(t, result.Error, testCase.message)
		})
	}
}

func TestEngine_PersonaLookupFailure(t *testing.T) {
	t.Parallel()

	log := newTestLogger(t)
	store, err := session.NewStore(t.TempDir(), log)
	require.NoError(t, err)

	engine := tts.NewEngine(pcmSource(), failingPersonas{}, store, log)

	result := engine.Generate(context.Background(), core.GenerationRequest{Voice: "Puck", Text: "Hi", PersonaID: "x"}, "")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "catalog unreadable")
}

func TestEngine_WritesIntoActiveSession(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t, pcmSource())

	created, err := fixture.store.Create(session.CreateRequest{Name: "Demo"})
	require.NoError(t, err)

	result := fixture.engine.Generate(context.Background(), core.GenerationRequest{Voice: "Zephyr", Text: "Hi"}, "")
	require.True(t, result.Success, result.Error)
	assert.Equal(t, created.ID, result.SessionID)

	folder, err := fixture.store.Folder(created.ID)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(folder, result.FilePath))
	assert.FileExists(t, filepath.Join(folder, result.MetadataPath))
	assert.Empty(t, folderEntries(t, fixture.store.LegacyFolder()))

	stored, err := fixture.store.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Zephyr"}, stored.VoicesTested)
	assert.Equal(t, []string{result.FilePath}, stored.GeneratedFiles)
}

func TestEngine_ExplicitSessionOverridesActive(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t, pcmSource())

	first, err := fixture.store.Create(session.CreateRequest{Name: "First"})
	require.NoError(t, err)

	// Second session with a distinct id becomes active.
	clock := fixedClock().Add(time.Minute)
	storeWithLaterClock, err := session.NewStore(fixture.store.LegacyFolder(), newTestLogger(t), session.WithClock(func() time.Time { return clock }))
	require.NoError(t, err)

	second, err := storeWithLaterClock.Create(session.CreateRequest{Name: "Second"})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	result := fixture.engine.Generate(context.Background(), core.GenerationRequest{Voice: "Puck", Text: "Hi"}, second.ID)
	require.True(t, result.Success, result.Error)
	assert.Equal(t, second.ID, result.SessionID)

	stored, err := fixture.store.Get(second.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{result.FilePath}, stored.GeneratedFiles)

	untouched, err := fixture.store.Get(first.ID)
	require.NoError(t, err)
	assert.Empty(t, untouched.GeneratedFiles)
}

func TestEngine_UnknownSessionFailsWithoutWriting(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t, pcmSource())

	result := fixture.engine.Generate(context.Background(), core.GenerationRequest{Voice: "Puck", Text: "Hi"}, "typo_session")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, tts.ErrUnknownSession.Error())
	assert.Empty(t, result.SessionID)
	assert.Empty(t, fixture.source.requests, "the model must not be called for an unknown session")

	folder, err := fixture.store.Folder("typo_session")
	require.NoError(t, err)
	assert.NoDirExists(t, folder)
	assert.Empty(t, folderEntries(t, fixture.store.LegacyFolder()))
}

func TestEngine_InvalidSessionIDFails(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t, pcmSource())

	result := fixture.engine.Generate(context.Background(), core.GenerationRequest{Voice: "Puck", Text: "Hi"}, "../escape")
	assert.False(t, result.Success)
	assert.Empty(t, folderEntries(t, fixture.store.LegacyFolder()))
}

func TestEngine_WriteFailureLeavesNoPartialFiles(t *testing.T) {
	t.Parallel()

	for _, blocked := range []string{expectedStem + ".wav", expectedStem + ".txt"} {
		t.Run(blocked, func(t *testing.T) {
			t.Parallel()

			fixture := newEngineFixture(t, pcmSource())
			folder := fixture.store.LegacyFolder()

			// A directory at the target path makes the file write fail.
			require.NoError(t, os.Mkdir(filepath.Join(folder, blocked), 0o755))

			result := fixture.engine.Generate(context.Background(), core.GenerationRequest{
				Voice:     "Zephyr",
				Text:      "Hi",
				PersonaID: busyBoss.ID,
			}, "")

			assert.False(t, result.Success)
			assert.Contains(t, result.Error, "failed to write "+blocked)
			assert.Empty(t, folderEntries(t, folder))
		})
	}
}

var errRecordFailed = errors.New("session record unwritable")

// unrecordableSessions is a real store whose artifact registration fails.
type unrecordableSessions struct {
	*session.Store

	err error
}

func (u unrecordableSessions) RecordArtifact(string, string, string) (bool, error) {
	return false, u.err
}

func TestEngine_RegisterFailureRemovesArtifact(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		err     error
		message string
	}{
		{"save fails", errRecordFailed, errRecordFailed.Error()},
		{"record vanished", nil, tts.ErrUnknownSession.Error()},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			log := newTestLogger(t)

			store, err := session.NewStore(t.TempDir(), log, session.WithClock(fixedClock))
			require.NoError(t, err)

			created, err := store.Create(session.CreateRequest{Name: "Demo"})
			require.NoError(t, err)

			engine := tts.NewEngine(pcmSource(), staticPersonas{}, unrecordableSessions{Store: store, err: testCase.err}, log,
				tts.WithClock(fixedClock))

			result := engine.Generate(context.Background(), core.GenerationRequest{Voice: "Zephyr", Text: "Hi"}, created.ID)
			assert.False(t, result.Success)
			assert.Contains(t, result.Error, testCase.message)

			folder, err := store.Folder(created.ID)
			require.NoError(t, err)
			assert.Equal(t, []string{session.RecordFileName}, folderEntries(t, folder))
		})
	}
}

func TestEngine_ArchivesAudio(t *testing.T) {
	t.Parallel()

	archive := &memoryStore{}
	fixture := newEngineFixture(t, pcmSource(), tts.WithArchive(archive))

	result := fixture.engine.Generate(context.Background(), core.GenerationRequest{Voice: "Zephyr", Text: "Hi", PersonaID: busyBoss.ID}, "")
	require.True(t, result.Success, result.Error)

	archived, err := archive.Download(context.Background(), tts.ArchiveKey("", result.FilePath))
	require.NoError(t, err)
	assert.Equal(t, "legacy/"+expectedStem+".wav", tts.ArchiveKey("", result.FilePath))
	assert.Equal(t, audio.EncodeWAV([]byte("ABCDEF"), "audio/L16;rate=24000"), archived)
}

func TestEngine_ArchiveFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t, pcmSource(), tts.WithArchive(&memoryStore{fail: true}))

	result := fixture.engine.Generate(context.Background(), core.GenerationRequest{Voice: "Zephyr", Text: "Hi"}, "")
	assert.True(t, result.Success, result.Error)
}

func TestArchiveKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "session_1/a.wav", tts.ArchiveKey("session_1", "a.wav"))
	assert.Equal(t, "legacy/a.wav", tts.ArchiveKey("", "a.wav"))
}

func TestEngine_ConfiguredDefaultModel(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t, pcmSource(), tts.WithDefaultModel(core.ModelPro))

	result := fixture.engine.Generate(context.Background(), core.GenerationRequest{Voice: "Kore", Text: "Hi"}, "")
	require.True(t, result.Success, result.Error)
	assert.Equal(t, core.ModelPro, fixture.source.lastRequest().Model)
}
