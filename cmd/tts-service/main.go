// main package for the tts-service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/dashscope-tts/internal/config"
	"github.com/book-expert/dashscope-tts/internal/objectstore"
	"github.com/book-expert/dashscope-tts/internal/tts"
	"github.com/book-expert/dashscope-tts/internal/worker"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "tts-service-bootstrap.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create bootstrap logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := logger.New(cfg.Paths.BaseLogsDir, "tts-service.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	// 4. Build the synthesis engine; a missing API key stops here
	engine, err := tts.NewEngine(cfg.DashScope, finalLog)
	if err != nil {
		finalLog.Error("Failed to create DashScope engine: %v", err)

		return fmt.Errorf("failed to create DashScope engine: %w", err)
	}

	// 5. Connect to NATS and bind the audio bucket
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name("tts-service"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return fmt.Errorf("failed to open object store: %w", err)
	}

	ttsWorker, err := worker.NewNatsWorker(
		natsConnection, cfg.NATS.TextProcessedSubject, cfg.DashScope.Format, store, engine, finalLog,
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	// 6. Serve until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	finalLog.System("TTS-Service successfully initialized. Listening for jobs on subject: %s",
		cfg.NATS.TextProcessedSubject)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return ttsWorker.Run(groupCtx)
	})

	err = group.Wait()
	if err != nil {
		finalLog.Error("Worker stopped with error: %v", err)

		return err
	}

	finalLog.System("TTS-Service stopped.")

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
