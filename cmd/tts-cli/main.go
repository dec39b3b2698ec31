// Command tts-cli synthesizes a single text with DashScope and writes the
// audio to a file or to stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/book-expert/dashscope-tts/internal/config"
	"github.com/book-expert/dashscope-tts/internal/core"
	"github.com/book-expert/dashscope-tts/internal/tts"
	"github.com/book-expert/logger"
)

// Flag descriptions.
const (
	flagTextDesc      = "Text to convert to speech"
	flagOutputDesc    = "Write audio directly to this file"
	flagStreamDesc    = "Stream audio to stdout as it arrives"
	flagVoiceDesc     = "Voice identifier (see --voices)"
	flagFormatDesc    = "Audio format: mp3 or wav"
	flagSpeedDesc     = "Speech rate multiplier, 0.5 to 2.0"
	flagVolumeDesc    = "Volume from 0 to 1"
	flagVoicesDesc    = "List supported voices and exit"
	flagLanguagesDesc = "List supported languages and exit"
)

// Flag names.
const (
	flagText      = "text"
	flagOutput    = "output"
	flagStream    = "stream"
	flagVoice     = "voice"
	flagFormat    = "format"
	flagSpeed     = "speed"
	flagVolume    = "volume"
	flagVoices    = "voices"
	flagLanguages = "languages"
)

// Error and log messages.
const (
	errTextRequired          = "--text must be provided"
	errCannotStreamToFile    = "Cannot specify both --stream and --output"
	errCannotListBoth        = "Cannot specify both --voices and --languages"
	errFailedToInitLogger    = "Failed to initialize logger: %w"
	errFailedToCreateEngine  = "Failed to create engine: %w"
	errFailedToSynthesize    = "Failed to synthesize speech: %w"
	errFailedToWriteAudio    = "Failed to write audio: %w"
	logConfigFallback        = "Configuration unavailable, using defaults: %v"
	logSynthesisStarted      = "Synthesizing %d characters (voice %q, format %q)"
	logSuccessfullyGenerated = "Successfully generated speech: %s"
	logGenerated             = "Generated: %s\n"
	logFileName              = "tts-cli.log"
)

var (
	errMissingText       = errors.New(errTextRequired)
	errStreamAndOutput   = errors.New(errCannotStreamToFile)
	errConflictingLists  = errors.New(errCannotListBoth)
	errUnknownPositional = errors.New("unexpected positional arguments")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text      string
	output    string
	voice     string
	format    string
	speed     float64
	volume    float64
	stream    bool
	voices    bool
	languages bool
	args      []string
}

func main() {
	err := run()
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}

	err = validateFlags(flags)
	if err != nil {
		flag.Usage()

		return err
	}

	appLog, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return fmt.Errorf(errFailedToInitLogger, err)
	}
	defer func() { _ = appLog.Close() }()

	cfg := loadConfig(appLog)

	engine, err := tts.NewEngine(cfg.DashScope, appLog)
	if err != nil {
		return fmt.Errorf(errFailedToCreateEngine, err)
	}

	switch {
	case flags.voices:
		return printList(os.Stdout, engine.Voices())
	case flags.languages:
		return printList(os.Stdout, engine.Languages())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return synthesize(ctx, engine, appLog, flags, os.Stdout)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(flagSet *flag.FlagSet, arguments []string) (appFlags, error) {
	var flags appFlags
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	flagSet.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	flagSet.StringVar(&flags.format, flagFormat, "", flagFormatDesc)
	flagSet.Float64Var(&flags.speed, flagSpeed, 1.0, flagSpeedDesc)
	flagSet.Float64Var(&flags.volume, flagVolume, 0.5, flagVolumeDesc)
	flagSet.BoolVar(&flags.stream, flagStream, false, flagStreamDesc)
	flagSet.BoolVar(&flags.voices, flagVoices, false, flagVoicesDesc)
	flagSet.BoolVar(&flags.languages, flagLanguages, false, flagLanguagesDesc)

	err := flagSet.Parse(arguments)
	if err != nil {
		return flags, err
	}

	flags.args = flagSet.Args()

	return flags, nil
}

// validateFlags checks for required and conflicting arguments.
func validateFlags(flags appFlags) error {
	if len(flags.args) > 0 {
		return fmt.Errorf("%w: %s", errUnknownPositional, strings.Join(flags.args, " "))
	}

	if flags.voices && flags.languages {
		return errConflictingLists
	}

	if flags.voices || flags.languages {
		return nil
	}

	if strings.TrimSpace(flags.text) == "" {
		return errMissingText
	}

	if flags.stream && flags.output != "" {
		return errStreamAndOutput
	}

	return nil
}

// buildOptions maps flags onto synthesis options. --output selects file mode.
func buildOptions(flags appFlags) core.SynthesisOptions {
	opts := core.SynthesisOptions{
		Voice:  flags.voice,
		Format: flags.format,
		Speed:  flags.speed,
		Volume: flags.volume,
		Stream: flags.stream,
	}

	if flags.output != "" {
		opts.OutputType = core.OutputFile
		opts.Output = flags.output
	}

	return opts
}

// loadConfig falls back to defaults plus the API key environment variable
// when the central configuration is not reachable.
func loadConfig(appLog *logger.Logger) *config.Config {
	cfg, err := config.Load(appLog)
	if err == nil {
		return cfg
	}

	appLog.Warn(logConfigFallback, err)

	cfg = &config.Config{}
	cfg.DashScope.APIKey = os.Getenv(config.EnvAPIKey)
	cfg.ApplyDefaults()

	return cfg
}

func synthesize(
	ctx context.Context,
	synthesizer core.Synthesizer,
	appLog *logger.Logger,
	flags appFlags,
	stdout io.Writer,
) error {
	opts := buildOptions(flags)
	appLog.Info(logSynthesisStarted, len([]rune(flags.text)), opts.Voice, opts.Format)

	result, err := synthesizer.Synthesize(ctx, flags.text, opts)
	if err != nil {
		return fmt.Errorf(errFailedToSynthesize, err)
	}

	switch {
	case opts.OutputType == core.OutputFile:
		appLog.Info(logSuccessfullyGenerated, opts.Output)
		fmt.Fprintf(os.Stderr, logGenerated, opts.Output)

		return nil
	case result.Stream != nil:
		defer func() { _ = result.Stream.Close() }()

		_, err = io.Copy(stdout, result.Stream)
	default:
		_, err = stdout.Write(result.Audio)
	}

	if err != nil {
		return fmt.Errorf(errFailedToWriteAudio, err)
	}

	return nil
}

func printList(w io.Writer, items []string) error {
	for _, item := range items {
		_, err := fmt.Fprintln(w, item)
		if err != nil {
			return err
		}
	}

	return nil
}
