package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// readFavorites loads the favorites file of folder. A missing file reads as empty.
func readFavorites(folder string) ([]string, error) {
	path := filepath.Join(folder, FavoritesFile)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read favorites '%s': %w", path, err)
	}

	favorites := []string{}

	err = parseJSON(data, &favorites)
	if err != nil {
		return nil, fmt.Errorf("failed to parse favorites '%s': %w", path, err)
	}

	return favorites, nil
}

// LegacyFavorites returns the favorites of the legacy folder.
func (s *Store) LegacyFavorites() ([]string, error) {
	return readFavorites(s.root)
}

// AddLegacyFavorite appends filename to the legacy favorites unless present.
func (s *Store) AddLegacyFavorite(filename string) ([]string, error) {
	return s.updateLegacyFavorites(func(favorites []string) []string {
		return appendUnique(favorites, filename)
	})
}

// RemoveLegacyFavorite drops filename from the legacy favorites if present.
func (s *Store) RemoveLegacyFavorite(filename string) ([]string, error) {
	return s.updateLegacyFavorites(func(favorites []string) []string {
		return slices.DeleteFunc(favorites, func(item string) bool { return item == filename })
	})
}

func (s *Store) updateLegacyFavorites(apply func([]string) []string) ([]string, error) {
	lock := s.lockFor(legacyLockKey)
	lock.Lock()
	defer lock.Unlock()

	favorites, err := readFavorites(s.root)
	if err != nil {
		return nil, err
	}

	updated := apply(slices.Clone(favorites))
	if slices.Equal(updated, favorites) {
		return favorites, nil
	}

	err = writeJSON(filepath.Join(s.root, FavoritesFile), updated)
	if err != nil {
		return nil, err
	}

	return updated, nil
}
