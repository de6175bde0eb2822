package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/book-expert/voice-lab/internal/audio"
	"github.com/book-expert/voice-lab/internal/fsutil"
	"github.com/book-expert/voice-lab/internal/metadata"
)

// ListAudio summarizes the artifacts stored in the folder of session id,
// newest first. Favorites come from the session record.
func (s *Store) ListAudio(id string) ([]metadata.Summary, error) {
	session, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	folder, _ := s.Folder(id)

	return s.listFolder(folder, id, session.Favorites)
}

// ListLegacyAudio summarizes the artifacts of the legacy folder, newest first.
func (s *Store) ListLegacyAudio() ([]metadata.Summary, error) {
	favorites, err := readFavorites(s.root)
	if err != nil {
		return nil, err
	}

	return s.listFolder(s.root, "", favorites)
}

// LegacyFavoriteAudio returns the legacy artifacts that are favorited.
func (s *Store) LegacyFavoriteAudio() ([]metadata.Summary, error) {
	all, err := s.ListLegacyAudio()
	if err != nil {
		return nil, err
	}

	return slices.DeleteFunc(all, func(summary metadata.Summary) bool { return !summary.IsFavorite }), nil
}

func (s *Store) listFolder(folder, sessionID string, favorites []string) ([]metadata.Summary, error) {
	entries, err := os.ReadDir(folder)
	if errors.Is(err, os.ErrNotExist) {
		return []metadata.Summary{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read folder '%s': %w", folder, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && fsutil.IsAudioFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}

	slices.Sort(names)
	slices.Reverse(names)

	summaries := make([]metadata.Summary, 0, len(names))

	for _, name := range names {
		summary, summaryErr := s.summarize(folder, name)
		if summaryErr != nil {
			s.log.Warn("Skipping artifact %s: %v", name, summaryErr)

			continue
		}

		summary.SessionID = sessionID
		summary.IsFavorite = contains(favorites, name)
		summaries = append(summaries, summary)
	}

	return summaries, nil
}

func (s *Store) summarize(folder, name string) (metadata.Summary, error) {
	path := filepath.Join(folder, name)

	info, err := os.Stat(path)
	if err != nil {
		return metadata.Summary{}, fmt.Errorf("failed to stat artifact: %w", err)
	}

	labels, err := s.labels(folder, name)
	if err != nil {
		return metadata.Summary{}, err
	}

	summary := metadata.Summary{
		Filename:  name,
		Voice:     labels.Voice,
		Persona:   labels.Persona,
		Timestamp: labels.Timestamp,
		SizeBytes: info.Size(),
	}

	wavInfo, probeErr := audio.Probe(path)
	if probeErr == nil {
		summary.DurationSeconds = wavInfo.Duration.Seconds()
	}

	return summary, nil
}

// labels prefers the sidecar and falls back to the file-name heuristic only
// when no sidecar exists.
func (s *Store) labels(folder, name string) (metadata.Labels, error) {
	stem := fsutil.Stem(name)

	file, err := os.Open(filepath.Join(folder, stem+fsutil.ExtTXT))
	if errors.Is(err, os.ErrNotExist) {
		return metadata.LabelsFromFilename(stem), nil
	}

	if err != nil {
		return metadata.Labels{}, fmt.Errorf("failed to open sidecar: %w", err)
	}
	defer file.Close()

	fields, err := metadata.Parse(file)
	if err != nil {
		return metadata.Labels{}, err
	}

	return metadata.LabelsFromSidecar(fields), nil
}
