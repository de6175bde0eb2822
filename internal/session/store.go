// Package session manages named sessions of generated artifacts. Each session
// owns a folder under `{root}/sessions/{id}` holding its `session.json` record,
// its `favorites.json` and every artifact generated while it was active.
// Artifacts generated without a session land in the legacy root folder.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-lab/internal/fsutil"
	"github.com/book-expert/voice-lab/internal/metadata"
	"github.com/book-expert/voice-lab/internal/observability"
)

// Layout constants.
const (
	SessionsDirName = "sessions"
	RecordFileName  = "session.json"
	FavoritesFile   = "favorites.json"
	idPrefix        = "session_"
	createdAtLayout = "2006-01-02T15:04:05.000000"
	legacyLockKey   = ""
	eventCreated    = "created"
	eventActivated  = "activated"
	eventFavorited  = "favorites_updated"
	eventFileAdded  = "file_added"
	maxIDAttempts   = 60
)

var (
	// ErrSessionNotFound is returned when an id does not resolve to a stored session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNoActiveSession is returned by Active when no session has been activated.
	ErrNoActiveSession = errors.New("no active session")
	// ErrSessionExists is returned by Create when no free id could be allocated.
	ErrSessionExists = errors.New("session already exists")
)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the clock used for session ids and creation stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithMetrics records session events.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Store) {
		s.metrics = metrics
	}
}

// Store is the file-backed session store. It also holds the process-wide
// active-session pointer. Record writes are serialized per session id.
type Store struct {
	root        string
	sessionsDir string
	log         *logger.Logger
	metrics     *observability.Metrics
	now         func() time.Time

	activeMu sync.RWMutex
	activeID string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewStore creates a store rooted at root, creating the sessions folder.
func NewStore(root string, log *logger.Logger, opts ...Option) (*Store, error) {
	store := &Store{
		root:        root,
		sessionsDir: filepath.Join(root, SessionsDirName),
		log:         log,
		now:         time.Now,
		locks:       make(map[string]*sync.Mutex),
	}

	for _, opt := range opts {
		opt(store)
	}

	err := fsutil.EnsureDir(store.sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare session store: %w", err)
	}

	return store, nil
}

// LegacyFolder is where artifacts go when no session is active.
func (s *Store) LegacyFolder() string {
	return s.root
}

// Folder returns the folder owned by session id without creating it.
func (s *Store) Folder(id string) (string, error) {
	err := fsutil.ValidName(id)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSessionNotFound, err)
	}

	return filepath.Join(s.sessionsDir, id), nil
}

// Create allocates a second-resolution id, creates the session folder, persists
// the record and makes it the active session, replacing any previous one. When
// the id for the current second is taken, the next free second is used.
func (s *Store) Create(req CreateRequest) (Session, error) {
	now := s.now()

	session := Session{
		CreatedAt:      now.Format(createdAtLayout),
		Name:           req.Name,
		PersonaID:      req.PersonaID,
		TextType:       req.TextType,
		TextContent:    req.TextContent,
		VoicesTested:   appendUnique([]string{}, req.Voices...),
		Favorites:      []string{},
		GeneratedFiles: appendUnique([]string{}, req.Files...),
	}

	if session.TextType == "" {
		session.TextType = DefaultTextType
	}

	created := false

	for attempt := 0; attempt < maxIDAttempts && !created; attempt++ {
		session.ID = idPrefix + now.Add(time.Duration(attempt)*time.Second).Format(metadata.TimestampLayout)

		var err error

		created, err = s.claim(session)
		if err != nil {
			return Session{}, err
		}
	}

	if !created {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionExists, session.ID)
	}

	s.setActiveID(session.ID)
	s.metrics.SessionEvent(eventCreated)
	s.log.Info("Created session %s (%q); it is now active", session.ID, session.Name)

	return session, nil
}

// claim persists session under its id unless that id is already taken.
func (s *Store) claim(session Session) (bool, error) {
	lock := s.lockFor(session.ID)
	lock.Lock()
	defer lock.Unlock()

	folder := filepath.Join(s.sessionsDir, session.ID)
	if fsutil.Exists(folder) {
		return false, nil
	}

	err := fsutil.EnsureDir(folder)
	if err != nil {
		return false, fmt.Errorf("failed to create session folder: %w", err)
	}

	err = s.save(session)
	if err != nil {
		return false, err
	}

	return true, nil
}

// Get loads session id.
func (s *Store) Get(id string) (Session, error) {
	folder, err := s.Folder(id)
	if err != nil {
		return Session{}, err
	}

	return s.load(folder)
}

// Exists reports whether id has a stored record.
func (s *Store) Exists(id string) (bool, error) {
	_, err := s.Get(id)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}

// List returns every stored session, most recent first. Session ids sort
// chronologically because they embed a fixed-width timestamp.
func (s *Store) List() ([]Session, error) {
	entries, err := os.ReadDir(s.sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions folder: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}

	slices.Sort(names)
	slices.Reverse(names)

	sessions := make([]Session, 0, len(names))

	for _, name := range names {
		session, loadErr := s.load(filepath.Join(s.sessionsDir, name))
		if errors.Is(loadErr, ErrSessionNotFound) {
			continue
		}

		if loadErr != nil {
			s.log.Warn("Skipping unreadable session %s: %v", name, loadErr)

			continue
		}

		sessions = append(sessions, session)
	}

	return sessions, nil
}

// ActiveID returns the active session id, or "" when none is set.
func (s *Store) ActiveID() string {
	s.activeMu.RLock()
	defer s.activeMu.RUnlock()

	return s.activeID
}

// Active loads the active session.
func (s *Store) Active() (Session, error) {
	id := s.ActiveID()
	if id == "" {
		return Session{}, ErrNoActiveSession
	}

	return s.Get(id)
}

// SetActive makes id the active session. The pointer is left unchanged when id
// does not resolve.
func (s *Store) SetActive(id string) (Session, error) {
	session, err := s.Get(id)
	if err != nil {
		return Session{}, err
	}

	s.setActiveID(id)
	s.metrics.SessionEvent(eventActivated)
	s.log.Info("Session %s is now active", id)

	return session, nil
}

// UpdateFavorites replaces the favorites of session id with favorites and
// mirrors them to the session folder's favorites file.
func (s *Store) UpdateFavorites(id string, favorites []string) (Session, error) {
	updated, err := s.mutate(id, func(session *Session) {
		session.Favorites = append([]string{}, favorites...)
	})
	if err != nil {
		return Session{}, err
	}

	folder, _ := s.Folder(id)

	err = writeJSON(filepath.Join(folder, FavoritesFile), updated.Favorites)
	if err != nil {
		return Session{}, err
	}

	s.metrics.SessionEvent(eventFavorited)

	return updated, nil
}

// AddFile appends filename and voice to session id unless already present.
func (s *Store) AddFile(id, filename, voice string) (Session, error) {
	updated, err := s.mutate(id, func(session *Session) {
		session.GeneratedFiles = appendUnique(session.GeneratedFiles, filename)
		session.VoicesTested = appendUnique(session.VoicesTested, voice)
	})
	if err != nil {
		return Session{}, err
	}

	s.metrics.SessionEvent(eventFileAdded)

	return updated, nil
}

// Append adds voices and files to session id with the same append-if-absent rule as AddFile.
func (s *Store) Append(id string, voices, files []string) (Session, error) {
	return s.mutate(id, func(session *Session) {
		session.VoicesTested = appendUnique(session.VoicesTested, voices...)
		session.GeneratedFiles = appendUnique(session.GeneratedFiles, files...)
	})
}

// RecordArtifact registers a generated file with session id. It reports false,
// without error, when id has no stored record.
func (s *Store) RecordArtifact(id, filename, voice string) (bool, error) {
	_, err := s.AddFile(id, filename, voice)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}

func (s *Store) mutate(id string, apply func(*Session)) (Session, error) {
	folder, err := s.Folder(id)
	if err != nil {
		return Session{}, err
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.load(folder)
	if err != nil {
		return Session{}, err
	}

	apply(&session)

	err = s.save(session)
	if err != nil {
		return Session{}, err
	}

	return session, nil
}

func (s *Store) load(folder string) (Session, error) {
	path := filepath.Join(folder, RecordFileName)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, filepath.Base(folder))
	}

	if err != nil {
		return Session{}, fmt.Errorf("failed to read session record '%s': %w", path, err)
	}

	var session Session

	err = parseJSON(data, &session)
	if err != nil {
		return Session{}, fmt.Errorf("failed to parse session record '%s': %w", path, err)
	}

	session.normalize()

	return session, nil
}

func (s *Store) save(session Session) error {
	session.normalize()

	return writeJSON(filepath.Join(s.sessionsDir, session.ID, RecordFileName), session)
}

func (s *Store) setActiveID(id string) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()

	s.activeID = id
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}

	return lock
}
