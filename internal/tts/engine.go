// Package tts drives DashScope speech synthesis tasks over a duplex
// WebSocket connection.
//
// Each Synthesize call opens its own connection and runs the task protocol
// run-task, task-started, continue-task, finish-task, task-finished (or
// task-failed). Audio arrives as binary frames and is delivered to one of
// three outputs chosen up front: an in-memory buffer, a live stream, or a
// file.
package tts

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/book-expert/dashscope-tts/internal/config"
	"github.com/book-expert/dashscope-tts/internal/core"
	"github.com/book-expert/logger"
)

const (
	// DefaultTaskTimeout bounds a task when the configuration leaves it unset.
	DefaultTaskTimeout = 120 * time.Second

	handshakeTimeout = 10 * time.Second

	headerAuthorization  = "Authorization"
	headerDataInspection = "X-DashScope-DataInspection"
	headerWorkspace      = "X-DashScope-WorkSpace"
	dataInspectionOn     = "enable"

	defaultFailureMessage = "speech synthesis task failed"
)

// Static errors.
var (
	ErrMissingAPIKey         = errors.New("dashscope api key is required")
	ErrUnsupportedFormat     = errors.New("unsupported audio format")
	ErrUnsupportedOutputType = errors.New("unsupported output type")
	ErrOutputPathEmpty       = errors.New("output path cannot be empty")
	ErrTransport             = errors.New("dashscope transport error")
	ErrTaskTimeout           = errors.New("synthesis task timed out")
	errMissingEvent          = errors.New("control frame has no event")
)

// TaskError is a task-failed event reported by the remote side.
type TaskError struct {
	TaskID  string
	Code    string
	Message string
}

func newTaskError(taskID, code, message string) *TaskError {
	if message == "" {
		message = defaultFailureMessage
	}

	return &TaskError{TaskID: taskID, Code: code, Message: message}
}

func (e *TaskError) Error() string {
	return e.Message
}

// Engine synthesizes speech with the DashScope CosyVoice models.
type Engine struct {
	cfg     config.DashScopeConfig
	dialer  Dialer
	timeout time.Duration
	log     *logger.Logger
}

// NewEngine creates an engine that connects with gorilla/websocket.
// It fails immediately when no API key is configured.
func NewEngine(cfg config.DashScopeConfig, log *logger.Logger) (*Engine, error) {
	return NewEngineWithDialer(cfg, log, NewWebsocketDialer(handshakeTimeout))
}

// NewEngineWithDialer creates an engine with a custom transport.
func NewEngineWithDialer(cfg config.DashScopeConfig, log *logger.Logger, dialer Dialer) (*Engine, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	if cfg.URL == "" {
		cfg.URL = config.DefaultURL
	}

	if cfg.Model == "" {
		cfg.Model = config.DefaultModel
	}

	if cfg.Voice == "" {
		cfg.Voice = config.DefaultVoice
	}

	if cfg.Format == "" {
		cfg.Format = config.DefaultFormat
	}

	timeout := DefaultTaskTimeout

	switch {
	case cfg.TimeoutSeconds > 0:
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	case cfg.TimeoutSeconds < 0:
		timeout = 0
	}

	return &Engine{
		cfg:     cfg,
		dialer:  dialer,
		timeout: timeout,
		log:     log,
	}, nil
}

// Synthesize converts text to speech.
//
// With opts.OutputType set to core.OutputFile the audio is written to
// opts.Output and the result holds an empty Audio slice. With opts.Stream the
// result holds a live Stream as soon as the connection is up; task errors
// surface from its Read, and ctx must stay alive until the stream is drained.
// Otherwise the call blocks until the task ends and returns the audio.
func (e *Engine) Synthesize(ctx context.Context, text string, opts core.SynthesisOptions) (*core.SynthesisResult, error) {
	params, err := e.mapParameters(opts)
	if err != nil {
		return nil, err
	}

	out, err := newSink(opts)
	if err != nil {
		return nil, err
	}

	s := &session{
		taskID:  newTaskID(),
		text:    text,
		model:   e.cfg.Model,
		url:     e.cfg.URL,
		header:  e.header(),
		params:  params,
		timeout: e.timeout,
		dialer:  e.dialer,
		sink:    out,
		log:     e.log,
		phase:   phaseConnecting,
	}

	return s.run(ctx)
}

func (e *Engine) header() http.Header {
	header := http.Header{}
	header.Set(headerAuthorization, "bearer "+e.cfg.APIKey)

	if e.cfg.DataInspection == nil || *e.cfg.DataInspection {
		header.Set(headerDataInspection, dataInspectionOn)
	}

	if e.cfg.Workspace != "" {
		header.Set(headerWorkspace, e.cfg.Workspace)
	}

	return header
}
