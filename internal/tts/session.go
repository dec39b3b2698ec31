package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/dashscope-tts/internal/core"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

type phase int

const (
	phaseConnecting phase = iota
	phaseStarted
	phaseFinished
	phaseFailed
)

func (p phase) String() string {
	switch p {
	case phaseConnecting:
		return "connecting"
	case phaseStarted:
		return "started"
	case phaseFinished:
		return "finished"
	case phaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

func (p phase) terminal() bool {
	return p == phaseFinished || p == phaseFailed
}

// canTransition allows forward moves only; terminal phases are final.
func (p phase) canTransition(to phase) bool {
	if p.terminal() {
		return false
	}

	if to == phaseStarted {
		return p == phaseConnecting
	}

	return to.terminal()
}

// session runs one synthesis task over its own connection.
type session struct {
	taskID  string
	text    string
	model   string
	url     string
	header  http.Header
	params  parameters
	timeout time.Duration
	dialer  Dialer
	sink    sink
	log     *logger.Logger

	conn Conn

	mu    sync.Mutex
	phase phase
	audio []byte
	err   error
}

func newTaskID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// run dials, submits run-task and waits for the task to end. In stream mode
// it returns as soon as run-task is on the wire.
func (s *session) run(ctx context.Context) (*core.SynthesisResult, error) {
	conn, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrTransport, err)
		s.fail(err)

		return nil, err
	}

	s.conn = conn
	s.log.Info("DashScope connection open for task %s", s.taskID)

	err = s.send(newRunTask(s.taskID, s.model, s.params))
	if err != nil {
		s.fail(err)

		return nil, err
	}

	stopWatch := s.watch(ctx)

	var group errgroup.Group

	group.Go(func() error {
		defer stopWatch()

		return s.readLoop()
	})

	if out, ok := s.sink.(*streamSink); ok {
		return &core.SynthesisResult{Stream: out.stream}, nil
	}

	err = group.Wait()
	if err != nil {
		return nil, err
	}

	return &core.SynthesisResult{Audio: s.audio}, nil
}

// watch fails the task on context cancellation or timeout. The returned
// func releases both watchers.
func (s *session) watch(ctx context.Context) func() {
	stopCtx := context.AfterFunc(ctx, func() {
		s.fail(fmt.Errorf("synthesis task %s cancelled: %w", s.taskID, context.Cause(ctx)))
	})

	if s.timeout <= 0 {
		return func() { stopCtx() }
	}

	timer := time.AfterFunc(s.timeout, func() {
		s.fail(fmt.Errorf("%w: task %s exceeded %s", ErrTaskTimeout, s.taskID, s.timeout))
	})

	return func() {
		stopCtx()
		timer.Stop()
	}
}

// readLoop dispatches inbound frames one at a time until the task ends.
func (s *session) readLoop() error {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(fmt.Errorf("%w: %w", ErrTransport, err))

			return s.outcome()
		}

		switch messageType {
		case websocket.BinaryMessage:
			s.onAudio(data)
		case websocket.TextMessage:
			s.onControl(data)
		}

		if s.ended() {
			return s.outcome()
		}
	}
}

func (s *session) onAudio(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase.terminal() {
		return
	}

	err := s.sink.write(chunk)
	if err != nil {
		s.failLocked(err)
	}
}

func (s *session) onControl(data []byte) {
	ev, err := parseEvent(data)
	if err != nil {
		s.log.Error("Ignoring malformed control frame for task %s: %v", s.taskID, err)

		return
	}

	s.log.Info("DashScope event received: %s", data)

	if ev.Header.TaskID != "" && ev.Header.TaskID != s.taskID {
		s.log.Warn("Ignoring %s for foreign task %s (expected %s)", ev.Header.Event, ev.Header.TaskID, s.taskID)

		return
	}

	switch ev.Header.Event {
	case eventTaskStarted:
		s.onStarted()
	case eventResultGenerated:
		// Audit only; the audio arrives as binary frames.
	case eventTaskFinished:
		s.finish()
	case eventTaskFailed:
		s.fail(newTaskError(s.taskID, ev.Header.ErrorCode, ev.Header.ErrorMessage))
	default:
		s.log.Warn("Unknown DashScope event %q for task %s", ev.Header.Event, s.taskID)
	}
}

// onStarted submits the whole text as one continue-task and closes input
// with finish-task.
func (s *session) onStarted() {
	if !s.transition(phaseStarted) {
		s.log.Warn("Ignoring task-started for task %s in phase %s", s.taskID, s.currentPhase())

		return
	}

	err := s.send(newContinueTask(s.taskID, s.text))
	if err != nil {
		s.fail(err)

		return
	}

	err = s.send(newFinishTask(s.taskID))
	if err != nil {
		s.fail(err)
	}
}

func (s *session) send(cmd command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal %s command: %w", cmd.Header.Action, err)
	}

	s.log.Info("DashScope command sent: %s", payload)

	err = s.conn.WriteMessage(websocket.TextMessage, payload)
	if err != nil {
		return fmt.Errorf("%w: failed to send %s: %w", ErrTransport, cmd.Header.Action, err)
	}

	return nil
}

func (s *session) transition(to phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.phase.canTransition(to) {
		return false
	}

	s.phase = to

	return true
}

func (s *session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.phase.canTransition(phaseFinished) {
		return
	}

	s.phase = phaseFinished
	s.closeConn()

	audio, err := s.sink.finish()
	if err != nil {
		s.err = err
		s.log.Error("Synthesis task %s finished but output could not be finalized: %v", s.taskID, err)

		return
	}

	s.audio = audio
	s.log.Info("Synthesis task %s finished", s.taskID)
}

func (s *session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failLocked(err)
}

func (s *session) failLocked(err error) {
	if !s.phase.canTransition(phaseFailed) {
		return
	}

	s.phase = phaseFailed
	s.err = err
	s.closeConn()
	s.sink.fail(err)
	s.log.Error("Synthesis task %s failed: %v", s.taskID, err)
}

func (s *session) closeConn() {
	if s.conn == nil {
		return
	}

	err := s.conn.Close()
	if err != nil {
		s.log.Warn("Failed to close connection for task %s: %v", s.taskID, err)
	}
}

func (s *session) ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.phase.terminal()
}

func (s *session) currentPhase() phase {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.phase
}

func (s *session) outcome() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}
