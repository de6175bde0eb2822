// Package worker exposes generation and batch generation as NATS request/reply subjects.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-lab/internal/core"
	"github.com/book-expert/voice-lab/internal/tts"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// QueueGroup load-balances requests across service instances.
const QueueGroup = "voice-lab"

const (
	drainTimeout      = 5 * time.Second
	drainPollInterval = 10 * time.Millisecond
)

// ErrNoTextSource is returned when a message carries a text key but the worker has no store.
var ErrNoTextSource = errors.New("text_key given but no object store is configured")

const (
	logFmtListening    = "Listening for generation requests on %s and %s"
	logFmtReceived     = "[%s] Received %s request for %d voice(s)"
	logFmtReplyFailed  = "[%s] Failed to reply on %s: %v"
	logFmtInvalid      = "[%s] Rejected message on %s: %v"
	errFmtSubscribe    = "failed to subscribe to subject %s: %w"
	errFmtDrain        = "failed to drain subscription: %w"
	errFmtUnmarshal    = "failed to unmarshal request: %w"
	errFmtTextDownload = "failed to download text for key '%s': %w"
	kindGenerate       = "generate"
	kindBatch          = "batch"
)

// BatchRunner runs a multi-voice generation.
type BatchRunner interface {
	Generate(ctx context.Context, req core.BatchRequest, sessionID string) []core.GenerationResult
}

// GenerateMessage is the payload of the generate subject. When Text is empty
// and TextKey is set, the text is read from the object store.
type GenerateMessage struct {
	core.GenerationRequest
	SessionID string `json:"session_id,omitempty"`
	TextKey   string `json:"text_key,omitempty"`
}

// BatchMessage is the payload of the batch subject.
type BatchMessage struct {
	core.BatchRequest
	SessionID string `json:"session_id,omitempty"`
	TextKey   string `json:"text_key,omitempty"`
}

// NatsWorker serves generation requests from the bus.
type NatsWorker struct {
	natsConnection  *nats.Conn
	generateSubject string
	batchSubject    string
	generator       tts.Generator
	batch           BatchRunner
	store           core.ObjectStore
	log             *logger.Logger

	closeMutex sync.Mutex
	closed     bool
	inFlight   sync.WaitGroup
}

// NewNatsWorker creates a worker. store may be nil, in which case text keys are rejected.
func NewNatsWorker(
	natsConnection *nats.Conn,
	generateSubject string,
	batchSubject string,
	generator tts.Generator,
	batch BatchRunner,
	store core.ObjectStore,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection:  natsConnection,
		generateSubject: generateSubject,
		batchSubject:    batchSubject,
		generator:       generator,
		batch:           batch,
		store:           store,
		log:             log,
	}
}

// Run subscribes to both subjects and serves until ctx is cancelled. Requests
// still running at shutdown are allowed to finish.
func (w *NatsWorker) Run(ctx context.Context) error {
	generateSub, err := w.natsConnection.QueueSubscribe(w.generateSubject, QueueGroup, w.dispatch(ctx, w.handleGenerate))
	if err != nil {
		return fmt.Errorf(errFmtSubscribe, w.generateSubject, err)
	}

	batchSub, err := w.natsConnection.QueueSubscribe(w.batchSubject, QueueGroup, w.dispatch(ctx, w.handleBatch))
	if err != nil {
		_ = generateSub.Unsubscribe()

		return fmt.Errorf(errFmtSubscribe, w.batchSubject, err)
	}

	w.log.System(logFmtListening, w.generateSubject, w.batchSubject)

	<-ctx.Done()

	drainErr := errors.Join(generateSub.Drain(), batchSub.Drain())
	awaitDrained(generateSub, batchSub)

	w.closeMutex.Lock()
	w.closed = true
	w.closeMutex.Unlock()

	w.inFlight.Wait()

	if drainErr != nil {
		return fmt.Errorf(errFmtDrain, drainErr)
	}

	return nil
}

// dispatch runs each message on its own goroutine so a long batch does not
// hold up the subscription.
func (w *NatsWorker) dispatch(ctx context.Context, handle func(context.Context, string, *nats.Msg) any) nats.MsgHandler {
	return func(msg *nats.Msg) {
		w.closeMutex.Lock()
		if w.closed {
			w.closeMutex.Unlock()

			return
		}

		w.inFlight.Add(1)
		w.closeMutex.Unlock()

		go func() {
			defer w.inFlight.Done()

			requestID := uuid.NewString()
			reply := handle(context.WithoutCancel(ctx), requestID, msg)

			w.respond(requestID, msg, reply)
		}()
	}
}

// awaitDrained waits, up to drainTimeout, for draining subscriptions to deliver
// their pending messages.
func awaitDrained(subscriptions ...*nats.Subscription) {
	deadline := time.Now().Add(drainTimeout)

	for _, subscription := range subscriptions {
		for subscription.IsValid() && time.Now().Before(deadline) {
			time.Sleep(drainPollInterval)
		}
	}
}

func (w *NatsWorker) handleGenerate(ctx context.Context, requestID string, msg *nats.Msg) any {
	var message GenerateMessage

	err := json.Unmarshal(msg.Data, &message)
	if err != nil {
		w.log.Warn(logFmtInvalid, requestID, msg.Subject, err)

		return core.Failed(fmt.Errorf(errFmtUnmarshal, err))
	}

	w.log.Info(logFmtReceived, requestID, kindGenerate, 1)

	message.Text, err = w.resolveText(ctx, message.Text, message.TextKey)
	if err != nil {
		return core.Failed(err)
	}

	return w.generator.Generate(ctx, message.GenerationRequest, message.SessionID)
}

func (w *NatsWorker) handleBatch(ctx context.Context, requestID string, msg *nats.Msg) any {
	var message BatchMessage

	err := json.Unmarshal(msg.Data, &message)
	if err != nil {
		w.log.Warn(logFmtInvalid, requestID, msg.Subject, err)

		return core.BatchResult{Results: []core.GenerationResult{core.Failed(fmt.Errorf(errFmtUnmarshal, err))}, Total: 1}
	}

	w.log.Info(logFmtReceived, requestID, kindBatch, len(message.Voices))

	message.Text, err = w.resolveText(ctx, message.Text, message.TextKey)
	if err != nil {
		results := make([]core.GenerationResult, len(message.Voices))
		for index := range results {
			results[index] = core.Failed(err)
		}

		return core.BatchResult{Results: results, Total: len(results)}
	}

	results := w.batch.Generate(ctx, message.BatchRequest, message.SessionID)

	return core.BatchResult{Results: results, Total: len(results)}
}

func (w *NatsWorker) resolveText(ctx context.Context, text, textKey string) (string, error) {
	if text != "" || textKey == "" {
		return text, nil
	}

	if w.store == nil {
		return "", ErrNoTextSource
	}

	data, err := w.store.Download(ctx, textKey)
	if err != nil {
		return "", fmt.Errorf(errFmtTextDownload, textKey, err)
	}

	return string(data), nil
}

func (w *NatsWorker) respond(requestID string, msg *nats.Msg, reply any) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(reply)
	if err != nil {
		w.log.Error(logFmtReplyFailed, requestID, msg.Subject, err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error(logFmtReplyFailed, requestID, msg.Subject, err)
	}
}
