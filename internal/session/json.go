package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/book-expert/voice-lab/internal/fsutil"
)

// parseJSON parses JSON data into the target interface.
func parseJSON(data []byte, target any) error {
	err := json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return nil
}

// writeJSON overwrites path with the indented encoding of value. Non-ASCII text
// is written as-is.
func writeJSON(path string, value any) error {
	var buf bytes.Buffer

	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(value)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON for '%s': %w", path, err)
	}

	err = os.WriteFile(path, buf.Bytes(), fsutil.FilePermissions)
	if err != nil {
		return fmt.Errorf("failed to write '%s': %w", path, err)
	}

	return nil
}
