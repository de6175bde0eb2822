// Command voice-lab serves the voice lab: HTTP API, optional NATS bus surface
// and the artifact archive.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-lab/internal/config"
	"github.com/book-expert/voice-lab/internal/core"
	"github.com/book-expert/voice-lab/internal/gemini"
	"github.com/book-expert/voice-lab/internal/httpapi"
	"github.com/book-expert/voice-lab/internal/objectstore"
	"github.com/book-expert/voice-lab/internal/observability"
	"github.com/book-expert/voice-lab/internal/persona"
	"github.com/book-expert/voice-lab/internal/session"
	"github.com/book-expert/voice-lab/internal/tts"
	"github.com/book-expert/voice-lab/internal/worker"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const (
	metricsNamespace = "voice_lab"
	shutdownTimeout  = 10 * time.Second
	readHeaderLimit  = 10 * time.Second
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	bootstrapLog, err := setupLogger(os.TempDir(), "voice-lab-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	logsDir := cfg.Paths.BaseLogsDir
	if logsDir == "" {
		logsDir = os.TempDir()
	}

	finalLog, err := setupLogger(logsDir, "voice-lab.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, finalLog)
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	defaultModel, err := core.ParseModel(cfg.Gemini.DefaultModel)
	if err != nil {
		return fmt.Errorf("invalid gemini.default_model: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics := observability.NewMetrics(metricsNamespace, registry)

	store, err := session.NewStore(cfg.Paths.OutputDir, log, session.WithMetrics(metrics))
	if err != nil {
		return err
	}

	catalog := persona.NewCatalog(cfg.Paths.DataDir)
	settings := gemini.Settings{
		APIKey:    cfg.Gemini.APIKey,
		ProjectID: cfg.Gemini.ProjectID,
		Location:  cfg.Gemini.Location,
	}

	status := gemini.CheckCredentials(settings)
	if !status.Valid {
		log.Warn("Gemini credentials unavailable: %s", status.Error)
	}

	engineOpts := []tts.Option{
		tts.WithMetrics(metrics),
		tts.WithTimeout(cfg.Timeout()),
		tts.WithTemperature(float32(cfg.Gemini.Temperature)),
		tts.WithDefaultModel(defaultModel),
	}
	serverOpts := []httpapi.Option{
		httpapi.WithMetrics(registry),
		httpapi.WithCredentialStatus(func() gemini.Status { return gemini.CheckCredentials(settings) }),
	}

	var (
		natsConnection *nats.Conn
		archive        core.Archive
	)

	if cfg.BusEnabled() {
		natsConnection, archive, err = connectBus(cfg)
		if err != nil {
			return err
		}
		defer natsConnection.Close()

		engineOpts = append(engineOpts, tts.WithArchive(archive))
		serverOpts = append(serverOpts, httpapi.WithArchive(archive))
	}

	engine := tts.NewEngine(gemini.NewSource(settings, log), catalog, store, log, engineOpts...)
	batch := tts.NewBatch(engine, cfg.Generation.BatchConcurrency, metrics, log)
	api := httpapi.New(store, catalog, engine, batch, log, serverOpts...)

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: readHeaderLimit,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.System("voice-lab listening on %s (output %s)", cfg.HTTP.Addr, cfg.Paths.OutputDir)

		serveErr := httpServer.ListenAndServe()
		if errors.Is(serveErr, http.ErrServerClosed) {
			return nil
		}

		return serveErr
	})

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	})

	if natsConnection != nil {
		busWorker := worker.NewNatsWorker(
			natsConnection, cfg.NATS.GenerateSubject, cfg.NATS.BatchSubject, engine, batch, archive, log,
		)

		group.Go(func() error {
			return busWorker.Run(groupCtx)
		})
	}

	err = group.Wait()
	log.System("voice-lab stopped")

	return err
}

// connectBus opens the NATS connection and the audio archive bucket.
func connectBus(cfg *config.Config) (*nats.Conn, core.Archive, error) {
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name("voice-lab"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to open JetStream context: %w", err)
	}

	archive, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		natsConnection.Close()

		return nil, nil, err
	}

	return natsConnection, archive, nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
