// Package fsutil provides the folder and file-name helpers shared by the
// artifact writers and the session store.
//
// Every name that reaches the filesystem from a request (session ids, artifact
// file names) passes through ValidName before it is joined onto a folder.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File and directory permissions.
const (
	FilePermissions = 0o600
	DirPermissions  = 0o750
)

// File extension constants.
const (
	ExtWAV  = ".wav"
	ExtTXT  = ".txt"
	ExtJSON = ".json"
)

const (
	invalidCharReplacement  = "_"
	errFmtFailedToCreateDir = "failed to create directory %s: %w"
)

// ErrInvalidName is returned when a name would escape its folder.
var ErrInvalidName = errors.New("invalid file name")

// EnsureDir ensures a directory exists at the given path, creating it if it doesn't.
func EnsureDir(path string) error {
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		mkdirErr := os.MkdirAll(path, DirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
		}
	}

	return nil
}

// SafeName turns a display name into a file-name component: spaces become
// underscores and characters invalid in most filesystems are replaced.
func SafeName(name string) string {
	replacer := strings.NewReplacer(
		" ", invalidCharReplacement,
		"<", invalidCharReplacement,
		">", invalidCharReplacement,
		":", invalidCharReplacement,
		"\"", invalidCharReplacement,
		"/", invalidCharReplacement,
		"\\", invalidCharReplacement,
		"|", invalidCharReplacement,
		"?", invalidCharReplacement,
		"*", invalidCharReplacement,
	)

	return replacer.Replace(name)
}

// ValidName reports an error unless name is a single, non-special path element.
func ValidName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return nil
}

// Stem returns the file name without its extension.
func Stem(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

// IsAudioFile reports whether filename is a stored audio artifact.
func IsAudioFile(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ExtWAV)
}

// IsRegularFile reports whether path names a regular file.
func IsRegularFile(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular()
}

// Exists reports whether path exists. Errors other than "not exist" count as existing
// so callers go on to surface them from the real operation.
func Exists(path string) bool {
	_, err := os.Stat(path)

	return !errors.Is(err, os.ErrNotExist)
}
