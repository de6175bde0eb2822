package tts

import (
	"context"
	"fmt"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-lab/internal/core"
	"github.com/book-expert/voice-lab/internal/observability"
	"golang.org/x/sync/semaphore"
)

// DefaultBatchConcurrency is the number of generations a batch runs at once.
const DefaultBatchConcurrency = 5

const (
	logFmtBatchStarted  = "Batch of %d voices started (concurrency %d)"
	logFmtBatchFinished = "Batch finished: %d/%d succeeded"
	errFmtSlotFailed    = "voice %s was not started: %w"
	errFmtPanicked      = "generation for voice %s panicked: %v"
)

// Generator runs one generation.
type Generator interface {
	Generate(ctx context.Context, req core.GenerationRequest, sessionID string) core.GenerationResult
}

// Batch fans a request out across voices under a fixed concurrency bound.
type Batch struct {
	generator   Generator
	concurrency int64
	metrics     *observability.Metrics
	logger      *logger.Logger
}

// NewBatch creates a coordinator. A concurrency below one falls back to
// DefaultBatchConcurrency.
func NewBatch(generator Generator, concurrency int, metrics *observability.Metrics, log *logger.Logger) *Batch {
	if concurrency < 1 {
		concurrency = DefaultBatchConcurrency
	}

	return &Batch{
		generator:   generator,
		concurrency: int64(concurrency),
		metrics:     metrics,
		logger:      log,
	}
}

// Generate returns exactly one result per entry of req.Voices, in input order,
// duplicates included. Every voice runs to completion independently: a failure
// never cancels its siblings. Slots are granted first come, first served.
func (b *Batch) Generate(ctx context.Context, req core.BatchRequest, sessionID string) []core.GenerationResult {
	results := make([]core.GenerationResult, len(req.Voices))
	slots := semaphore.NewWeighted(b.concurrency)

	b.metrics.ObserveBatch(len(req.Voices))
	b.logger.Info(logFmtBatchStarted, len(req.Voices), b.concurrency)

	var waitGroup sync.WaitGroup

	for index, voice := range req.Voices {
		waitGroup.Add(1)

		go func() {
			defer waitGroup.Done()

			results[index] = b.runVoice(ctx, slots, req.ForVoice(voice), sessionID)
		}()
	}

	waitGroup.Wait()

	succeeded := 0

	for _, result := range results {
		if result.Success {
			succeeded++
		}
	}

	b.logger.Info(logFmtBatchFinished, succeeded, len(results))

	return results
}

func (b *Batch) runVoice(
	ctx context.Context,
	slots *semaphore.Weighted,
	req core.GenerationRequest,
	sessionID string,
) (result core.GenerationResult) {
	err := slots.Acquire(ctx, 1)
	if err != nil {
		return core.Failed(fmt.Errorf(errFmtSlotFailed, req.Voice, err))
	}

	b.metrics.SlotAcquired()

	defer func() {
		b.metrics.SlotReleased()
		slots.Release(1)
	}()

	defer func() {
		recovered := recover()
		if recovered != nil {
			result = core.Failed(fmt.Errorf(errFmtPanicked, req.Voice, recovered))
		}
	}()

	return b.generator.Generate(ctx, req, sessionID)
}
