// Package core defines the core business logic and interfaces for the TTS service.
package core

import (
	"context"
	"io"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	// UploadStream stores everything read from r until EOF. A read error
	// aborts the upload.
	UploadStream(ctx context.Context, key string, r io.Reader) error
}

// OutputType selects where synthesized audio is delivered.
type OutputType string

const (
	// OutputBuffer collects the audio in memory (the default).
	OutputBuffer OutputType = ""
	// OutputFile writes the audio directly to SynthesisOptions.Output.
	OutputFile OutputType = "file"
)

// SynthesisOptions holds the per-request settings for a synthesis call.
// Zero values select engine defaults.
type SynthesisOptions struct {
	Voice  string
	Format string
	// Speed is a playback rate multiplier, clamped to [0.5, 2.0].
	Speed float64
	// Volume is expected in [0, 1].
	Volume float64
	// Pitch is accepted but not applied; synthesis always uses a neutral pitch.
	Pitch float64
	// Stream returns a live stream as soon as the connection is up.
	// Ignored when OutputType is OutputFile.
	Stream     bool
	OutputType OutputType
	Output     string
}

// SynthesisResult carries exactly one of Audio or Stream.
// In file mode Audio is empty and the audio lives in the target file.
type SynthesisResult struct {
	Audio  []byte
	Stream io.ReadCloser
}

// Synthesizer defines the interface for a text-to-speech engine.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts SynthesisOptions) (*SynthesisResult, error)
	Languages() []string
	Voices() []string
}
