package session_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-lab/internal/audio"
	"github.com/book-expert/voice-lab/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steppingClock returns a clock that advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	var (
		mutex   sync.Mutex
		current = start
	)

	return func() time.Time {
		mutex.Lock()
		defer mutex.Unlock()

		current = current.Add(time.Second)

		return current
	}
}

func newTestStore(t *testing.T) (*session.Store, string) {
	t.Helper()

	root := t.TempDir()

	testLogger, err := logger.New(t.TempDir(), "session-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testLogger.Close() })

	clock := steppingClock(time.Date(2026, 1, 14, 1, 44, 0, 0, time.Local))

	store, err := session.NewStore(root, testLogger, session.WithClock(clock))
	require.NoError(t, err)

	return store, root
}

func TestStore_CreatePersistsAndActivates(t *testing.T) {
	t.Parallel()

	store, root := newTestStore(t)

	created, err := store.Create(session.CreateRequest{
		Name:        "Demo",
		PersonaID:   "busy_boss",
		TextContent: "Hello",
	})
	require.NoError(t, err)

	assert.Equal(t, "session_2026-01-14_014401", created.ID)
	assert.Equal(t, "2026-01-14T01:44:01.000000", created.CreatedAt)
	assert.Equal(t, session.DefaultTextType, created.TextType)
	assert.Empty(t, created.VoicesTested)
	assert.Empty(t, created.Favorites)
	assert.Empty(t, created.GeneratedFiles)
	assert.Equal(t, created.ID, store.ActiveID())

	assert.FileExists(t, filepath.Join(root, "sessions", created.ID, "session.json"))

	loaded, err := store.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, loaded)
}

func TestStore_CreateReplacesActiveSession(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	first, err := store.Create(session.CreateRequest{Name: "first"})
	require.NoError(t, err)

	second, err := store.Create(session.CreateRequest{Name: "second"})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, second.ID, store.ActiveID())

	active, err := store.Active()
	require.NoError(t, err)
	assert.Equal(t, "second", active.Name)
}

func TestStore_GetUnknown(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	for _, id := range []string{"session_2000-01-01_000000", "../escape", ""} {
		_, err := store.Get(id)
		require.ErrorIs(t, err, session.ErrSessionNotFound, id)
	}

	_, err := store.Active()
	require.ErrorIs(t, err, session.ErrNoActiveSession)
}

func TestStore_CreateInSameSecondKeepsEarlierSession(t *testing.T) {
	t.Parallel()

	testLogger, err := logger.New(t.TempDir(), "session-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testLogger.Close() })

	stamp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.Local)
	store, err := session.NewStore(t.TempDir(), testLogger, session.WithClock(func() time.Time { return stamp }))
	require.NoError(t, err)

	first, err := store.Create(session.CreateRequest{Name: "First"})
	require.NoError(t, err)

	_, err = store.AddFile(first.ID, "a.wav", "Zephyr")
	require.NoError(t, err)

	second, err := store.Create(session.CreateRequest{Name: "Second"})
	require.NoError(t, err)

	assert.Equal(t, "session_2026-01-01_000000", first.ID)
	assert.Equal(t, "session_2026-01-01_000001", second.ID)
	assert.Equal(t, second.ID, store.ActiveID())

	kept, err := store.Get(first.ID)
	require.NoError(t, err)
	assert.Equal(t, "First", kept.Name)
	assert.Equal(t, []string{"a.wav"}, kept.GeneratedFiles)

	listed, err := store.List()
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, second.ID, listed[0].ID)
}

func TestStore_Exists(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	created, err := store.Create(session.CreateRequest{Name: "Demo"})
	require.NoError(t, err)

	exists, err := store.Exists(created.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	for _, id := range []string{"typo_session", "../escape"} {
		exists, err = store.Exists(id)
		require.NoError(t, err, id)
		assert.False(t, exists, id)
	}
}

func TestStore_ListMostRecentFirst(t *testing.T) {
	t.Parallel()

	store, root := newTestStore(t)

	// A pre-existing, older session written by an earlier process.
	older := filepath.Join(root, "sessions", "session_2025-12-31_235959")
	require.NoError(t, os.MkdirAll(older, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(older, "session.json"),
		[]byte(`{"id":"session_2025-12-31_235959","name":"old","voices_tested":["Puck"]}`), 0o600))

	// Folders without a record are ignored.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sessions", "stray"), 0o750))

	created, err := store.Create(session.CreateRequest{Name: "new"})
	require.NoError(t, err)

	sessions, err := store.List()
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, created.ID, sessions[0].ID)
	assert.Equal(t, "session_2025-12-31_235959", sessions[1].ID)
	assert.Equal(t, []string{"Puck"}, sessions[1].VoicesTested)
	assert.Equal(t, []string{}, sessions[1].Favorites)
}

func TestStore_SetActive(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	first, err := store.Create(session.CreateRequest{Name: "first"})
	require.NoError(t, err)

	second, err := store.Create(session.CreateRequest{Name: "second"})
	require.NoError(t, err)
	require.Equal(t, second.ID, store.ActiveID())

	activated, err := store.SetActive(first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, activated.ID)
	assert.Equal(t, first.ID, store.ActiveID())

	_, err = store.SetActive("session_1999-01-01_000000")
	require.ErrorIs(t, err, session.ErrSessionNotFound)
	assert.Equal(t, first.ID, store.ActiveID(), "a failed activation must not move the pointer")
}

func TestStore_UpdateFavoritesReplaces(t *testing.T) {
	t.Parallel()

	store, root := newTestStore(t)

	created, err := store.Create(session.CreateRequest{Name: "Demo"})
	require.NoError(t, err)

	_, err = store.UpdateFavorites(created.ID, []string{"x.wav", "y.wav"})
	require.NoError(t, err)

	_, err = store.UpdateFavorites(created.ID, []string{"a.wav"})
	require.NoError(t, err)

	loaded, err := store.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.wav"}, loaded.Favorites)

	mirror, err := os.ReadFile(filepath.Join(root, "sessions", created.ID, "favorites.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `["a.wav"]`, string(mirror))

	_, err = store.UpdateFavorites("session_1999-01-01_000000", []string{"a.wav"})
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestStore_AddFileIsIdempotent(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	created, err := store.Create(session.CreateRequest{Name: "Demo"})
	require.NoError(t, err)

	_, err = store.AddFile(created.ID, "a.wav", "Zephyr")
	require.NoError(t, err)

	updated, err := store.AddFile(created.ID, "a.wav", "Zephyr")
	require.NoError(t, err)

	assert.Equal(t, []string{"a.wav"}, updated.GeneratedFiles)
	assert.Equal(t, []string{"Zephyr"}, updated.VoicesTested)

	updated, err = store.AddFile(created.ID, "b.wav", "Zephyr")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.wav", "b.wav"}, updated.GeneratedFiles)
	assert.Equal(t, []string{"Zephyr"}, updated.VoicesTested)

	_, err = store.AddFile("session_1999-01-01_000000", "a.wav", "Zephyr")
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestStore_ConcurrentAddFileKeepsEveryFile(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	created, err := store.Create(session.CreateRequest{Name: "Demo"})
	require.NoError(t, err)

	voices := []string{"Zephyr", "Puck", "Charon", "Kore", "Fenrir", "Leda", "Orus", "Aoede"}

	var waitGroup sync.WaitGroup

	for _, voice := range voices {
		waitGroup.Add(1)

		go func() {
			defer waitGroup.Done()

			_, addErr := store.AddFile(created.ID, voice+".wav", voice)
			assert.NoError(t, addErr)
		}()
	}

	waitGroup.Wait()

	loaded, err := store.Get(created.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, voices, loaded.VoicesTested)
	assert.Len(t, loaded.GeneratedFiles, len(voices))
}

func TestStore_CreateSeedsVoicesAndFiles(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	created, err := store.Create(session.CreateRequest{
		Name:   "Seeded",
		Voices: []string{"Zephyr", "Puck", "Zephyr"},
		Files:  []string{"file1.wav", "file2.wav"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Zephyr", "Puck"}, created.VoicesTested)
	assert.Equal(t, []string{"file1.wav", "file2.wav"}, created.GeneratedFiles)

	appended, err := store.Append(created.ID, []string{"Puck", "Kore"}, []string{"file3.wav"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Zephyr", "Puck", "Kore"}, appended.VoicesTested)
	assert.Equal(t, []string{"file1.wav", "file2.wav", "file3.wav"}, appended.GeneratedFiles)
}

func writeArtifact(t *testing.T, folder, stem, sidecar string) {
	t.Helper()

	wav := audio.EncodeWAV(make([]byte, 48000), audio.DefaultMIMEType)
	require.NoError(t, os.WriteFile(filepath.Join(folder, stem+".wav"), wav, 0o600))

	if sidecar != "" {
		require.NoError(t, os.WriteFile(filepath.Join(folder, stem+".txt"), []byte(sidecar), 0o600))
	}
}

func TestStore_ListAudio(t *testing.T) {
	t.Parallel()

	store, root := newTestStore(t)

	created, err := store.Create(session.CreateRequest{Name: "Demo"})
	require.NoError(t, err)

	folder := filepath.Join(root, "sessions", created.ID)
	writeArtifact(t, folder, "2026-01-14_014410_Zephyr_Busy_Boss",
		"voice: Zephyr\npersona_id: busy_boss\npersona_name: Busy Boss\ngenerated_at: 2026-01-14_014410\n")
	writeArtifact(t, folder, "2026-01-14_014420_Puck_Chatty_Elder", "")

	_, err = store.UpdateFavorites(created.ID, []string{"2026-01-14_014410_Zephyr_Busy_Boss.wav"})
	require.NoError(t, err)

	summaries, err := store.ListAudio(created.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	newest := summaries[0]
	assert.Equal(t, "2026-01-14_014420_Puck_Chatty_Elder.wav", newest.Filename)
	assert.Equal(t, "Puck", newest.Voice)
	assert.Equal(t, "Chatty_Elder", newest.Persona)
	assert.Equal(t, "2026-01-14_014420", newest.Timestamp)
	assert.False(t, newest.IsFavorite)
	assert.Equal(t, created.ID, newest.SessionID)

	oldest := summaries[1]
	assert.Equal(t, "Busy Boss", oldest.Persona)
	assert.Equal(t, "Zephyr", oldest.Voice)
	assert.True(t, oldest.IsFavorite)
	assert.Equal(t, int64(audio.HeaderSize+48000), oldest.SizeBytes)
	assert.InDelta(t, 1.0, oldest.DurationSeconds, 0.01)

	_, err = store.ListAudio("session_1999-01-01_000000")
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestStore_LegacyFavorites(t *testing.T) {
	t.Parallel()

	store, root := newTestStore(t)

	writeArtifact(t, root, "2026-01-14_014410_Zephyr_default", "voice: Zephyr\npersona: default\n")
	writeArtifact(t, root, "2026-01-14_014411_Puck_default", "")

	favorites, err := store.LegacyFavorites()
	require.NoError(t, err)
	assert.Empty(t, favorites)

	favorites, err = store.AddLegacyFavorite("2026-01-14_014410_Zephyr_default.wav")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-01-14_014410_Zephyr_default.wav"}, favorites)

	favorites, err = store.AddLegacyFavorite("2026-01-14_014410_Zephyr_default.wav")
	require.NoError(t, err)
	assert.Len(t, favorites, 1)

	favoriteAudio, err := store.LegacyFavoriteAudio()
	require.NoError(t, err)
	require.Len(t, favoriteAudio, 1)
	assert.Equal(t, "Zephyr", favoriteAudio[0].Voice)

	all, err := store.ListLegacyAudio()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2026-01-14_014411_Puck_default.wav", all[0].Filename)

	favorites, err = store.RemoveLegacyFavorite("2026-01-14_014410_Zephyr_default.wav")
	require.NoError(t, err)
	assert.Empty(t, favorites)

	favorites, err = store.RemoveLegacyFavorite("never-added.wav")
	require.NoError(t, err)
	assert.Empty(t, favorites)
}
