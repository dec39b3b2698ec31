package tts

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/dashscope-tts/internal/config"
	"github.com/book-expert/dashscope-tts/internal/core"
	"github.com/book-expert/logger"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	messageType int
	data        []byte
}

// fakeConn replays scripted inbound frames and records outbound ones.
type fakeConn struct {
	inbound chan frame
	closed  chan struct{}

	mu         sync.Mutex
	sent       [][]byte
	closeCalls int
}

func newFakeConn(frames ...frame) *fakeConn {
	conn := &fakeConn{
		inbound: make(chan frame, len(frames)+8),
		closed:  make(chan struct{}),
	}

	for _, f := range frames {
		conn.inbound <- f
	}

	return conn
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case <-c.closed:
		return 0, nil, net.ErrClosed
	default:
	}

	select {
	case f := <-c.inbound:
		return f.messageType, f.data, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent = append(c.sent, data)

	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeCalls++
	if c.closeCalls == 1 {
		close(c.closed)
	}

	return nil
}

type dialerFunc func(ctx context.Context, url string, header http.Header) (Conn, error)

func (f dialerFunc) DialContext(ctx context.Context, url string, header http.Header) (Conn, error) {
	return f(ctx, url, header)
}

// countingSink records how often each finalization path runs.
type countingSink struct {
	bufferSink

	mu       sync.Mutex
	finishes int
	failures int
}

func (c *countingSink) finish() ([]byte, error) {
	c.mu.Lock()
	c.finishes++
	c.mu.Unlock()

	return c.bufferSink.finish()
}

func (c *countingSink) fail(err error) {
	c.mu.Lock()
	c.failures++
	c.mu.Unlock()

	c.bufferSink.fail(err)
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "tts-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func newTestSession(t *testing.T, conn *fakeConn, out sink) *session {
	t.Helper()

	return &session{
		taskID: "task1",
		text:   "hello",
		model:  config.DefaultModel,
		url:    "ws://unused",
		header: http.Header{},
		dialer: dialerFunc(func(context.Context, string, http.Header) (Conn, error) {
			return conn, nil
		}),
		sink:  out,
		log:   newTestLogger(t),
		phase: phaseConnecting,
	}
}

func controlFrame(data string) frame {
	return frame{messageType: websocket.TextMessage, data: []byte(data)}
}

func audioFrame(data string) frame {
	return frame{messageType: websocket.BinaryMessage, data: []byte(data)}
}

func TestPhase_Transitions(t *testing.T) {
	t.Parallel()

	assert.True(t, phaseConnecting.canTransition(phaseStarted))
	assert.True(t, phaseConnecting.canTransition(phaseFinished))
	assert.True(t, phaseConnecting.canTransition(phaseFailed))
	assert.True(t, phaseStarted.canTransition(phaseFinished))
	assert.True(t, phaseStarted.canTransition(phaseFailed))

	assert.False(t, phaseStarted.canTransition(phaseStarted))
	assert.False(t, phaseStarted.canTransition(phaseConnecting))
	assert.False(t, phaseFinished.canTransition(phaseFailed))
	assert.False(t, phaseFailed.canTransition(phaseFinished))
	assert.False(t, phaseFinished.canTransition(phaseStarted))
}

func TestSession_SettlesOnceAfterFinish(t *testing.T) {
	t.Parallel()

	conn := newFakeConn(
		controlFrame(`{"header":{"task_id":"task1","event":"task-started"}}`),
		audioFrame("AA"),
		controlFrame(`{"header":{"task_id":"task1","event":"task-finished"}}`),
	)
	out := &countingSink{}
	s := newTestSession(t, conn, out)

	result, err := s.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("AA"), result.Audio)

	s.fail(errors.New("late failure"))
	s.finish()

	assert.Equal(t, 1, out.finishes)
	assert.Zero(t, out.failures)
	assert.Equal(t, 1, conn.closeCalls)
	assert.Equal(t, phaseFinished, s.currentPhase())
}

func TestSession_DuplicateTaskStartedSendsTextOnce(t *testing.T) {
	t.Parallel()

	conn := newFakeConn(
		controlFrame(`{"header":{"task_id":"task1","event":"task-started"}}`),
		controlFrame(`{"header":{"task_id":"task1","event":"task-started"}}`),
		controlFrame(`{"header":{"task_id":"task1","event":"task-finished"}}`),
	)
	s := newTestSession(t, conn, &bufferSink{})

	_, err := s.run(context.Background())
	require.NoError(t, err)

	// run-task, continue-task, finish-task
	assert.Len(t, conn.sent, 3)
}

func TestSession_CancelFailsOnce(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	out := &countingSink{}
	s := newTestSession(t, conn, out)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := s.run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Zero(t, out.finishes)
	assert.Equal(t, 1, out.failures)
	assert.Equal(t, 1, conn.closeCalls)
	assert.Equal(t, phaseFailed, s.currentPhase())
}

func TestSession_SinkWriteErrorFailsTask(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	out, err := newFileSink(dir + "/out.mp3")
	require.NoError(t, err)
	require.NoError(t, out.file.Close())

	conn := newFakeConn(audioFrame("AA"))
	s := newTestSession(t, conn, out)

	_, err = s.run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write audio")
	assert.Equal(t, 1, conn.closeCalls)
}

func TestNewSink_Selection(t *testing.T) {
	t.Parallel()

	out, err := newSink(core.SynthesisOptions{})
	require.NoError(t, err)
	assert.IsType(t, &bufferSink{}, out)

	out, err = newSink(core.SynthesisOptions{Stream: true})
	require.NoError(t, err)
	assert.IsType(t, &streamSink{}, out)

	path := t.TempDir() + "/a/b.wav"
	out, err = newSink(core.SynthesisOptions{Stream: true, OutputType: core.OutputFile, Output: path})
	require.NoError(t, err)
	require.IsType(t, &fileSink{}, out)
	require.NoError(t, out.(*fileSink).file.Close())

	_, err = newSink(core.SynthesisOptions{OutputType: core.OutputFile})
	require.ErrorIs(t, err, ErrOutputPathEmpty)

	_, err = newSink(core.SynthesisOptions{OutputType: "socket"})
	require.ErrorIs(t, err, ErrUnsupportedOutputType)
}
