package tts

import (
	"io"
	"sync"
)

// AudioStream is a push-based audio byte stream. Pushes never block; the
// reader sees chunks in arrival order followed by io.EOF or the task error.
type AudioStream struct {
	mu     sync.Mutex
	cond   *sync.Cond
	chunks [][]byte
	err    error
	closed bool
}

func newAudioStream() *AudioStream {
	stream := &AudioStream{}
	stream.cond = sync.NewCond(&stream.mu)

	return stream
}

// Read blocks until audio is available or the task has ended.
func (s *AudioStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.chunks) == 0 && s.err == nil && !s.closed {
		s.cond.Wait()
	}

	if s.closed {
		return 0, io.ErrClosedPipe
	}

	if len(s.chunks) == 0 {
		return 0, s.err
	}

	n := copy(p, s.chunks[0])
	if n == len(s.chunks[0]) {
		s.chunks[0] = nil
		s.chunks = s.chunks[1:]
	} else {
		s.chunks[0] = s.chunks[0][n:]
	}

	return n, nil
}

// Close discards buffered and future audio. It does not cancel the task.
func (s *AudioStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.chunks = nil
	s.cond.Broadcast()

	return nil
}

func (s *AudioStream) push(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.err != nil || len(chunk) == 0 {
		return
	}

	s.chunks = append(s.chunks, chunk)
	s.cond.Signal()
}

func (s *AudioStream) end() {
	s.terminate(io.EOF)
}

func (s *AudioStream) fail(err error) {
	s.terminate(err)
}

func (s *AudioStream) terminate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err == nil {
		s.err = err
	}

	s.cond.Broadcast()
}
