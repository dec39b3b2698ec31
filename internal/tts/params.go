package tts

import (
	"fmt"
	"math"
	"strings"

	"github.com/book-expert/dashscope-tts/internal/core"
)

const (
	sampleRate = 22050

	minSpeed     = 0.5
	maxSpeed     = 2.0
	defaultSpeed = 1.0

	maxVolume     = 100
	defaultVolume = 50

	// Pitch is not configurable; the remote always receives a neutral value.
	neutralPitch = 1.0

	regionalVoicePrefix = "zh-CN-"

	formatMP3 = "mp3"
	formatWAV = "wav"
)

// mapSpeed clamps speed into [0.5, 2.0]. Zero means unset.
func mapSpeed(speed float64) float64 {
	if speed == 0 || math.IsNaN(speed) {
		return defaultSpeed
	}

	return min(max(speed, minSpeed), maxSpeed)
}

// mapVolume converts a [0, 1] volume into a percentage. A zero result falls
// back to the default.
func mapVolume(volume float64) int {
	if math.IsNaN(volume) {
		return defaultVolume
	}

	percent := int(min(max(math.Round(volume*100), 0), maxVolume))
	if percent == 0 {
		return defaultVolume
	}

	return percent
}

func normalizeVoice(voice, fallback string) string {
	if voice == "" {
		voice = fallback
	}

	return strings.TrimPrefix(voice, regionalVoicePrefix)
}

func normalizeFormat(format, fallback string) (string, error) {
	if format == "" {
		format = fallback
	}

	format = strings.ToLower(format)

	switch format {
	case formatMP3, formatWAV:
		return format, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// mapParameters turns caller options into run-task parameters.
func (e *Engine) mapParameters(opts core.SynthesisOptions) (parameters, error) {
	format, err := normalizeFormat(opts.Format, e.cfg.Format)
	if err != nil {
		return parameters{}, err
	}

	return parameters{
		TextType:   textTypePlain,
		Voice:      normalizeVoice(opts.Voice, e.cfg.Voice),
		Format:     format,
		SampleRate: sampleRate,
		Volume:     mapVolume(opts.Volume),
		Rate:       mapSpeed(opts.Speed),
		Pitch:      neutralPitch,
	}, nil
}
