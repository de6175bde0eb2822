// Command voice-client drives a running voice-lab service from the command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-lab/internal/core"
)

// Flag descriptions and messages.
const (
	flagTextDesc    = "Text to convert to speech"
	flagVoicesDesc  = "Comma-separated voice names; more than one runs a batch"
	flagPersonaDesc = "Persona id"
	flagToneDesc    = "Tone instructions overriding the persona's"
	flagModelDesc   = "Model id (defaults to the service's default model)"
	flagSessionDesc = "Session id to write into (defaults to the active session)"
	flagServerDesc  = "Base URL of the voice-lab service"
	flagTimeoutDesc = "Request timeout"
	flagHealthDesc  = "Check service health and exit"
)

// Flag names.
const (
	flagText    = "text"
	flagVoices  = "voices"
	flagPersona = "persona"
	flagTone    = "tone"
	flagModel   = "model"
	flagSession = "session"
	flagServer  = "server"
	flagTimeout = "timeout"
	flagHealth  = "health"
)

// Error messages.
const (
	errTextRequired      = "--text must be provided"
	errVoicesRequired    = "--voices must name at least one voice"
	errHealthCheckFailed = "Health check failed: %v"
	errServiceNotHealthy = "voice-lab service is not healthy: %v\n"
	msgServiceHealthy    = "voice-lab service is healthy"
)

// Log messages.
const (
	logGenerating = "Generating %d voice(s) against %s"
	logResult     = "%s: %s"
	outOK         = "OK    %s (%s)\n"
	outFailed     = "FAIL  %s\n"
	outSummary    = "%d/%d succeeded\n"
)

const (
	defaultServer  = "http://localhost:8000"
	defaultTimeout = 5 * time.Minute
	logFileName    = "voice-client.log"
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text    string
	voices  []string
	persona string
	tone    string
	model   string
	session string
	server  string
	timeout time.Duration
	health  bool
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run(args []string, out io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	clientLog, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer clientLog.Close()

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	client := newAPIClient(flags.server, flags.timeout)

	if flags.health {
		return handleHealthCheck(ctx, client, clientLog, out)
	}

	err = validateFlags(flags)
	if err != nil {
		return err
	}

	clientLog.Info(logGenerating, len(flags.voices), flags.server)

	results, err := generate(ctx, client, flags)
	if err != nil {
		return err
	}

	return report(results, clientLog, out)
}

// parseFlags defines and parses command-line flags.
func parseFlags(args []string) (appFlags, error) {
	var (
		flags  appFlags
		voices string
	)

	flagSet := flag.NewFlagSet("voice-client", flag.ContinueOnError)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&voices, flagVoices, "", flagVoicesDesc)
	flagSet.StringVar(&flags.persona, flagPersona, "", flagPersonaDesc)
	flagSet.StringVar(&flags.tone, flagTone, "", flagToneDesc)
	flagSet.StringVar(&flags.model, flagModel, "", flagModelDesc)
	flagSet.StringVar(&flags.session, flagSession, "", flagSessionDesc)
	flagSet.StringVar(&flags.server, flagServer, defaultServer, flagServerDesc)
	flagSet.DurationVar(&flags.timeout, flagTimeout, defaultTimeout, flagTimeoutDesc)
	flagSet.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, err
	}

	flags.voices = splitVoices(voices)
	flags.server = strings.TrimRight(flags.server, "/")

	return flags, nil
}

func splitVoices(value string) []string {
	voices := make([]string, 0)

	for _, voice := range strings.Split(value, ",") {
		voice = strings.TrimSpace(voice)
		if voice != "" {
			voices = append(voices, voice)
		}
	}

	return voices
}

// validateFlags checks the arguments of a generation run.
func validateFlags(flags appFlags) error {
	if strings.TrimSpace(flags.text) == "" {
		return errors.New(errTextRequired)
	}

	if len(flags.voices) == 0 {
		return errors.New(errVoicesRequired)
	}

	return nil
}

func handleHealthCheck(ctx context.Context, client *apiClient, clientLog *logger.Logger, out io.Writer) error {
	err := client.Health(ctx)
	if err != nil {
		clientLog.Error(errHealthCheckFailed, err)
		fmt.Fprintf(out, errServiceNotHealthy, err)

		return err
	}

	fmt.Fprintln(out, msgServiceHealthy)

	return nil
}

// generate posts a single generation for one voice and a batch otherwise.
func generate(ctx context.Context, client *apiClient, flags appFlags) ([]core.GenerationResult, error) {
	batch := core.BatchRequest{
		Voices:           flags.voices,
		Text:             flags.text,
		PersonaID:        flags.persona,
		ToneInstructions: flags.tone,
		Model:            core.Model(flags.model),
	}

	if len(flags.voices) == 1 {
		result, err := client.Generate(ctx, batch.ForVoice(flags.voices[0]), flags.session)
		if err != nil {
			return nil, err
		}

		return []core.GenerationResult{result}, nil
	}

	return client.Batch(ctx, batch, flags.session)
}

func report(results []core.GenerationResult, clientLog *logger.Logger, out io.Writer) error {
	succeeded := 0

	for _, result := range results {
		if result.Success {
			succeeded++

			fmt.Fprintf(out, outOK, result.FilePath, folderLabel(result.SessionID))
			clientLog.Info(logResult, "generated", result.FilePath)

			continue
		}

		fmt.Fprintf(out, outFailed, result.Error)
		clientLog.Warn(logResult, "failed", result.Error)
	}

	fmt.Fprintf(out, outSummary, succeeded, len(results))

	if succeeded == 0 && len(results) > 0 {
		return errors.New(results[0].Error)
	}

	return nil
}

func folderLabel(sessionID string) string {
	if sessionID == "" {
		return "legacy folder"
	}

	return sessionID
}
