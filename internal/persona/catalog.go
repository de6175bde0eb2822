// Package persona is the read-only persona and voice catalog. Built-in and
// user-authored personas live in flat JSON files in the data directory; the
// custom file wins on identifier collisions.
package persona

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/voice-lab/internal/fsutil"
)

// Catalog file names inside the data directory.
const (
	BuiltinFile = "personas.json"
	CustomFile  = "custom_personas.json"
	VoicesFile  = "voices.json"
)

// DefaultID and DefaultName label artifacts generated without a resolved persona.
const (
	DefaultID   = "none"
	DefaultName = "default"
)

// Persona is one catalog entry.
type Persona struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	LocalName        string `json:"local_name"`
	Archetype        string `json:"archetype"`
	Traits           string `json:"traits"`
	ToneInstructions string `json:"tone_instructions"`
	RecommendedVoice string `json:"recommended_voice"`
	IsCustom         bool   `json:"is_custom"`
}

// Default is the distinguished record used when resolution finds nothing.
var Default = Persona{ID: DefaultID, Name: DefaultName}

// Resolution is the tagged result of a lookup. When Found is false Persona is Default.
type Resolution struct {
	Persona Persona
	Found   bool
}

// NotFound returns the resolution carrying the Default persona.
func NotFound() Resolution {
	return Resolution{Persona: Default, Found: false}
}

// Lookup resolves persona identifiers. Implementations report storage failures
// as errors and unknown identifiers as a NotFound resolution.
type Lookup interface {
	Resolve(id string) (Resolution, error)
}

type personasFile struct {
	Personas []Persona `json:"personas"`
}

type voicesFile struct {
	Voices []json.RawMessage `json:"voices"`
}

// Catalog reads personas and voices from dataDir on every call so edits to the
// files are visible without a restart.
type Catalog struct {
	dataDir string
}

// NewCatalog creates a catalog rooted at dataDir.
func NewCatalog(dataDir string) *Catalog {
	return &Catalog{dataDir: dataDir}
}

// Resolve looks id up in the merged catalog.
func (c *Catalog) Resolve(id string) (Resolution, error) {
	if id == "" {
		return NotFound(), nil
	}

	merged, err := c.merged()
	if err != nil {
		return NotFound(), err
	}

	found, ok := merged[id]
	if !ok {
		return NotFound(), nil
	}

	return Resolution{Persona: found, Found: true}, nil
}

// List returns built-in personas in file order followed by custom personas
// that do not override a built-in one.
func (c *Catalog) List() ([]Persona, error) {
	builtin, err := c.readPersonas(BuiltinFile)
	if err != nil {
		return nil, err
	}

	custom, err := c.readPersonas(CustomFile)
	if err != nil {
		return nil, err
	}

	overrides := make(map[string]Persona, len(custom))
	for _, entry := range custom {
		entry.IsCustom = true
		overrides[entry.ID] = entry
	}

	list := make([]Persona, 0, len(builtin)+len(custom))

	for _, entry := range builtin {
		if override, ok := overrides[entry.ID]; ok {
			entry = override
			delete(overrides, entry.ID)
		}

		list = append(list, entry)
	}

	for _, entry := range custom {
		if _, pending := overrides[entry.ID]; pending {
			list = append(list, overrides[entry.ID])
			delete(overrides, entry.ID)
		}
	}

	return list, nil
}

// FindBySlug returns the persona whose display name, made file-name safe,
// equals slug. Artifact file names carry that slug.
func (c *Catalog) FindBySlug(slug string) (Resolution, error) {
	list, err := c.List()
	if err != nil {
		return NotFound(), err
	}

	for _, entry := range list {
		if fsutil.SafeName(entry.Name) == slug {
			return Resolution{Persona: entry, Found: true}, nil
		}
	}

	return NotFound(), nil
}

// Voices returns the raw voice catalog entries.
func (c *Catalog) Voices() ([]json.RawMessage, error) {
	var file voicesFile

	err := c.readJSON(VoicesFile, &file)
	if err != nil {
		return nil, err
	}

	if file.Voices == nil {
		return []json.RawMessage{}, nil
	}

	return file.Voices, nil
}

func (c *Catalog) merged() (map[string]Persona, error) {
	list, err := c.List()
	if err != nil {
		return nil, err
	}

	merged := make(map[string]Persona, len(list))
	for _, entry := range list {
		merged[entry.ID] = entry
	}

	return merged, nil
}

func (c *Catalog) readPersonas(name string) ([]Persona, error) {
	var file personasFile

	err := c.readJSON(name, &file)
	if err != nil {
		return nil, err
	}

	return file.Personas, nil
}

// readJSON decodes a catalog file. A missing file reads as empty.
func (c *Catalog) readJSON(name string, target any) error {
	path := filepath.Join(c.dataDir, name)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to read catalog file '%s': %w", path, err)
	}

	err = json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("failed to parse catalog file '%s': %w", path, err)
	}

	return nil
}
