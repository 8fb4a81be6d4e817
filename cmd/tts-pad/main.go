// main package for tts-pad
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-pad/internal/azure"
	"github.com/book-expert/tts-pad/internal/broker"
	"github.com/book-expert/tts-pad/internal/config"
	"github.com/book-expert/tts-pad/internal/controller"
	"github.com/book-expert/tts-pad/internal/core"
	"github.com/book-expert/tts-pad/internal/feedback"
	"github.com/book-expert/tts-pad/internal/kvstore"
	"github.com/book-expert/tts-pad/internal/objectstore"
	"github.com/book-expert/tts-pad/internal/playback"
	"github.com/book-expert/tts-pad/internal/playback/speaker"
	"github.com/book-expert/tts-pad/internal/settings"
	"github.com/book-expert/tts-pad/internal/ttsutils"
	"github.com/book-expert/tts-pad/internal/web"
	"github.com/book-expert/tts-pad/internal/worker"
)

const (
	logsSubdir      = "logs"
	jetstreamSubdir = "jetstream"
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "tts-pad.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// resolvePaths fills in the data, logs and JetStream directories and creates them.
func resolvePaths(cfg *config.Config) error {
	if cfg.Paths.DataDir == "" {
		cfg.Paths.DataDir = ttsutils.GetDataDir()
	}

	if cfg.Paths.BaseLogsDir == "" {
		cfg.Paths.BaseLogsDir = filepath.Join(cfg.Paths.DataDir, logsSubdir)
	}

	if cfg.NATS.StoreDir == "" {
		cfg.NATS.StoreDir = filepath.Join(cfg.Paths.DataDir, jetstreamSubdir)
	}

	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.BaseLogsDir, cfg.NATS.StoreDir} {
		err := ttsutils.EnsureDir(dir)
		if err != nil {
			return err
		}
	}

	return nil
}

func newSink(cfg *config.Config, audio core.ObjectStore, hub *feedback.Hub, log *logger.Logger) (core.AudioSink, func(), error) {
	if cfg.Playback.Mode == config.PlaybackSpeaker {
		sink, err := speaker.New(log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open speaker output: %w", err)
		}

		return sink, func() {
			closeErr := sink.Close()
			if closeErr != nil {
				log.Error("Failed to close speaker output: %v", closeErr)
			}
		}, nil
	}

	return playback.NewBrowserSink(audio, hub), func() {}, nil
}

func bundledConfigPath(cfg *config.Config, log *logger.Logger) string {
	path, err := ttsutils.FindBundledConfig(cfg.Azure.BundledConfig, cfg.Paths.DataDir)
	if err != nil {
		if errors.Is(err, ttsutils.ErrConfigNotFound) {
			log.Info("No bundled configuration: %v", err)
		} else {
			log.Warn("Failed to locate bundled configuration: %v", err)
		}

		return ""
	}

	return path
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	natsBroker, err := broker.Start(broker.Options{
		Log:      log,
		URL:      cfg.NATS.URL,
		StoreDir: cfg.NATS.StoreDir,
		Port:     cfg.NATS.EmbeddedPort,
	})
	if err != nil {
		return fmt.Errorf("failed to start NATS: %w", err)
	}

	defer func() {
		closeErr := natsBroker.Close()
		if closeErr != nil {
			log.Error("Failed to close NATS: %v", closeErr)
		}
	}()

	preferences, err := kvstore.New(natsBroker.JetStream(), cfg.NATS.PreferencesBucket)
	if err != nil {
		return fmt.Errorf("failed to open preference store: %w", err)
	}

	audio, err := objectstore.New(natsBroker.JetStream(), cfg.NATS.AudioBucket, cfg.NATS.AudioTTL())
	if err != nil {
		return fmt.Errorf("failed to open audio store: %w", err)
	}

	hub := feedback.NewHub(feedback.Options{
		Log:           log,
		ToastDuration: cfg.UI.ToastDuration(),
		ToastFade:     cfg.UI.ToastFade(),
	})
	defer hub.Close()

	sink, closeSink, err := newSink(cfg, audio, hub, log)
	if err != nil {
		return err
	}
	defer closeSink()

	loader := settings.NewLoader(settings.Options{
		Store:       preferences,
		Log:         log,
		BundledPath: bundledConfigPath(cfg, log),
		EnvFile:     cfg.Azure.EnvFile,
	})

	pad := controller.New(controller.Options{
		Store: preferences,
		Sessions: azure.NewSessionFactory(azure.Options{
			Timeout:      cfg.Azure.Timeout(),
			OutputFormat: cfg.Azure.OutputFormat,
		}),
		Notifier:          hub,
		Sink:              sink,
		Loader:            loader,
		Log:               log,
		DefaultRegion:     cfg.Azure.DefaultRegion,
		StatusRevertDelay: cfg.UI.StatusRevertDelay(),
		SynthesisTimeout:  cfg.Azure.Timeout(),
	})
	defer pad.Stop()

	pad.Start(ctx)

	actionWorker, err := worker.NewNatsWorker(natsBroker.Conn(), cfg.NATS.ActionsSubject, pad, log)
	if err != nil {
		return fmt.Errorf("failed to create action worker: %w", err)
	}

	server, err := web.NewServer(web.Options{
		Pad:   pad,
		Hub:   hub,
		Audio: audio,
		Log:   log,
		Addr:  cfg.HTTP.Addr,
	})
	if err != nil {
		return fmt.Errorf("failed to create web server: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)

	go func() {
		errCh <- actionWorker.Run(ctx)
	}()

	go func() {
		errCh <- server.Run(ctx)
	}()

	log.System("tts-pad ready on %s (playback: %s, actions: %s)", cfg.HTTP.Addr, cfg.Playback.Mode, cfg.NATS.ActionsSubject)

	var runErr error

	for range 2 {
		err := <-errCh
		if err != nil && runErr == nil {
			runErr = err

			cancel()
		}
	}

	return runErr
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := logger.New(os.TempDir(), "tts-pad-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return fmt.Errorf("failed to create bootstrap logger: %w", err)
	}

	defer func() {
		_ = bootstrapLog.Close()
	}()

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	err = resolvePaths(cfg)
	if err != nil {
		bootstrapLog.Error("Failed to prepare directories: %v", err)

		return err
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return err
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = serve(ctx, cfg, finalLog)
	if err != nil {
		finalLog.Error("tts-pad stopped: %v", err)

		return err
	}

	finalLog.System("tts-pad stopped.")

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
