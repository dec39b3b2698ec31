// Package worker provides a NATS worker that turns processed text into speech.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/book-expert/dashscope-tts/internal/core"
	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	handleMessageTimeout = 3 * time.Minute
	regionalVoicePrefix  = "zh-CN-"
)

var (
	// ErrTextEmpty indicates that the downloaded text has no content.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrUnsupportedVoice indicates that the provided voice is not supported.
	ErrUnsupportedVoice = errors.New("unsupported voice")
	// ErrFormatEmpty indicates that no output format was configured.
	ErrFormatEmpty = errors.New("audio format cannot be empty")
)

// NatsWorker listens for TTS jobs on a NATS subject and processes them.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	format         string
	store          core.ObjectStore
	synthesizer    core.Synthesizer
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. Audio is requested
// in format and stored under "<uuid>.<format>".
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	format string,
	store core.ObjectStore,
	synthesizer core.Synthesizer,
	log *logger.Logger,
) (*NatsWorker, error) {
	if format == "" {
		return nil, ErrFormatEmpty
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		format:         format,
		store:          store,
		synthesizer:    synthesizer,
		log:            log,
	}, nil
}

// Run starts the worker and begins listening for messages.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for TTS jobs on subject: %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, err := w.parseEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse event: %v", err)

		return
	}

	audioKey, processErr := w.processTTSJob(ctx, event)
	if processErr != nil {
		w.log.Error("Failed to process TTS job for workflow %s: %v", event.Header.WorkflowID, processErr)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// processTTSJob downloads the text, streams the synthesized audio into the
// object store and returns the audio key.
func (w *NatsWorker) processTTSJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	text := strings.TrimSpace(string(textData))
	if text == "" {
		return "", fmt.Errorf("%w: key '%s'", ErrTextEmpty, event.TextKey)
	}

	err = w.validateVoice(event.Voice)
	if err != nil {
		return "", err
	}

	result, err := w.synthesizer.Synthesize(ctx, text, core.SynthesisOptions{
		Voice:  event.Voice,
		Format: w.format,
		Stream: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start speech synthesis: %w", err)
	}

	defer func() {
		closeErr := result.Stream.Close()
		if closeErr != nil {
			w.log.Warn("Failed to close audio stream for workflow %s: %v", event.Header.WorkflowID, closeErr)
		}
	}()

	audioKey := uuid.NewString() + "." + w.format

	err = w.store.UploadStream(ctx, audioKey, result.Stream)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	w.log.Info("Stored audio %s for workflow %s (page %d/%d)",
		audioKey, event.Header.WorkflowID, event.PageNumber, event.TotalPages)

	return audioKey, nil
}

// publishReplyEvent marshals and responds with the AudioChunkCreatedEvent.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func (w *NatsWorker) parseEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}

// validateVoice accepts an empty voice (engine default) or one of the
// synthesizer's voices, with or without the regional prefix.
func (w *NatsWorker) validateVoice(voice string) error {
	if voice == "" {
		return nil
	}

	voices := w.synthesizer.Voices()
	if slices.Contains(voices, voice) || slices.Contains(voices, regionalVoicePrefix+voice) {
		return nil
	}

	return fmt.Errorf("%w: '%s'", ErrUnsupportedVoice, voice)
}
