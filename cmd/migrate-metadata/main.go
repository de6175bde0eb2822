// Command migrate-metadata rewrites legacy sidecars (voice, persona, model,
// text, generated_at) into the full key order, resolving the persona from the
// slug embedded in the artifact name.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-lab/internal/core"
	"github.com/book-expert/voice-lab/internal/fsutil"
	"github.com/book-expert/voice-lab/internal/metadata"
	"github.com/book-expert/voice-lab/internal/persona"
	"github.com/book-expert/voice-lab/internal/session"
)

const (
	flagOutputDesc = "Output folder holding the legacy artifacts and the sessions folder"
	flagDataDesc   = "Folder holding the persona catalogs"
	flagDryRunDesc = "Report what would change without writing"
)

const (
	logFmtMigrated = "Migrated %s (persona %s)"
	logFmtSkipped  = "Skipped %s: already migrated"
	logFmtFailed   = "Failed to migrate %s: %v"
	outSummary     = "Done! Migrated %d files, skipped %d, failed %d.\n"
	unknownVoice   = "unknown"
	logFileName    = "migrate-metadata.log"
)

// Stamp components in `{date}_{time}_{voice}_{persona slug}`.
const slugOffset = 3

// stats counts the outcome of a run.
type stats struct {
	migrated int
	skipped  int
	failed   int
}

type migrator struct {
	catalog *persona.Catalog
	log     *logger.Logger
	dryRun  bool
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run(args []string, out io.Writer) error {
	flagSet := flag.NewFlagSet("migrate-metadata", flag.ContinueOnError)
	outputDir := flagSet.String("output", "output", flagOutputDesc)
	dataDir := flagSet.String("data", "../data", flagDataDesc)
	dryRun := flagSet.Bool("dry-run", false, flagDryRunDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return err
	}

	migrateLog, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer migrateLog.Close()

	worker := migrator{catalog: persona.NewCatalog(*dataDir), log: migrateLog, dryRun: *dryRun}

	result, err := worker.migrateTree(*outputDir)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, outSummary, result.migrated, result.skipped, result.failed)

	return nil
}

// migrateTree migrates the legacy folder and every session folder below it.
func (m migrator) migrateTree(outputDir string) (stats, error) {
	if !fsutil.Exists(outputDir) {
		return stats{}, fmt.Errorf("output directory not found: %s", outputDir)
	}

	folders := []string{outputDir}

	sessions, err := os.ReadDir(filepath.Join(outputDir, session.SessionsDirName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return stats{}, fmt.Errorf("failed to read sessions folder: %w", err)
	}

	for _, entry := range sessions {
		if entry.IsDir() {
			folders = append(folders, filepath.Join(outputDir, session.SessionsDirName, entry.Name()))
		}
	}

	var total stats

	for _, folder := range folders {
		err = m.migrateFolder(folder, &total)
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

func (m migrator) migrateFolder(folder string, total *stats) error {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return fmt.Errorf("failed to read folder '%s': %w", folder, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != fsutil.ExtTXT {
			continue
		}

		path := filepath.Join(folder, entry.Name())

		migrated, err := m.migrateFile(path)

		switch {
		case err != nil:
			total.failed++

			m.log.Error(logFmtFailed, path, err)
		case migrated:
			total.migrated++
		default:
			total.skipped++

			m.log.Info(logFmtSkipped, path)
		}
	}

	return nil
}

// migrateFile rewrites one sidecar. It reports false for files that already
// carry both persona_id and persona_name.
func (m migrator) migrateFile(path string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("failed to open sidecar: %w", err)
	}

	fields, err := metadata.Parse(file)
	_ = file.Close()

	if err != nil {
		return false, err
	}

	if fields.Has(metadata.KeyPersonaID) && fields.Has(metadata.KeyPersonaName) {
		return false, nil
	}

	resolution, err := m.catalog.FindBySlug(slugFromName(filepath.Base(path)))
	if err != nil {
		return false, err
	}

	sidecar := metadata.Sidecar{
		Voice:            valueOr(fields[metadata.KeyVoice], unknownVoice),
		Persona:          resolution.Persona,
		PersonaResolved:  resolution.Found,
		ToneInstructions: resolution.Persona.ToneInstructions,
		Model:            valueOr(fields[metadata.KeyModel], string(core.DefaultModel)),
		Text:             fields[metadata.KeyText],
		GeneratedAt:      fields[metadata.KeyGeneratedAt],
	}

	if !m.dryRun {
		err = os.WriteFile(path, []byte(sidecar.Format()), fsutil.FilePermissions)
		if err != nil {
			return false, fmt.Errorf("failed to write sidecar: %w", err)
		}
	}

	m.log.Info(logFmtMigrated, path, resolution.Persona.Name)

	return true, nil
}

// slugFromName extracts the persona slug from `{date}_{time}_{voice}_{slug}.txt`.
func slugFromName(name string) string {
	parts := strings.Split(fsutil.Stem(name), "_")
	if len(parts) <= slugOffset {
		return persona.DefaultName
	}

	return strings.Join(parts[slugOffset:], "_")
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}
