package tts

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/dashscope-tts/internal/core"
)

const (
	filePermissions = 0o600
	dirPermissions  = 0o750
)

// sink receives the audio of one session. The variant is fixed when the
// session is created.
type sink interface {
	write(chunk []byte) error
	// finish finalizes a successful task and returns the buffered audio.
	finish() ([]byte, error)
	fail(err error)
}

func newSink(opts core.SynthesisOptions) (sink, error) {
	switch {
	case opts.OutputType == core.OutputFile:
		return newFileSink(opts.Output)
	case opts.OutputType != core.OutputBuffer:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOutputType, opts.OutputType)
	case opts.Stream:
		return &streamSink{stream: newAudioStream()}, nil
	default:
		return &bufferSink{}, nil
	}
}

type bufferSink struct {
	chunks [][]byte
}

func (b *bufferSink) write(chunk []byte) error {
	b.chunks = append(b.chunks, chunk)

	return nil
}

func (b *bufferSink) finish() ([]byte, error) {
	return bytes.Join(b.chunks, nil), nil
}

func (b *bufferSink) fail(error) {
	b.chunks = nil
}

type streamSink struct {
	stream *AudioStream
}

func (s *streamSink) write(chunk []byte) error {
	s.stream.push(chunk)

	return nil
}

func (s *streamSink) finish() ([]byte, error) {
	s.stream.end()

	return nil, nil
}

func (s *streamSink) fail(err error) {
	s.stream.fail(err)
}

// fileSink appends audio to a file opened before the task starts. On
// failure the file is closed and left as written so far.
type fileSink struct {
	file *os.File
}

func newFileSink(path string) (*fileSink, error) {
	if path == "" {
		return nil, ErrOutputPathEmpty
	}

	err := os.MkdirAll(filepath.Dir(path), dirPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create output directory for %s: %w", path, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file %s: %w", path, err)
	}

	return &fileSink{file: file}, nil
}

func (f *fileSink) write(chunk []byte) error {
	_, err := f.file.Write(chunk)
	if err != nil {
		return fmt.Errorf("failed to write audio to %s: %w", f.file.Name(), err)
	}

	return nil
}

func (f *fileSink) finish() ([]byte, error) {
	err := f.file.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to close output file %s: %w", f.file.Name(), err)
	}

	return []byte{}, nil
}

func (f *fileSink) fail(error) {
	_ = f.file.Close()
}
