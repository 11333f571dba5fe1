package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/seatwatch"
	"github.com/jpalmerr/seatwatch/config"
)

const (
	configEnv         = "SEATWATCH_CONFIG"
	defaultConfigPath = "config.yaml"
)

// newLogger creates a text logger for CLI use. Every line carries the run id.
func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})).With("run_id", uuid.NewString())
}

// configPath returns the configuration file location.
func configPath() string {
	if p := os.Getenv(configEnv); p != "" {
		return p
	}
	return defaultConfigPath
}

func runWatch(cmd *cobra.Command, _ []string) error {
	debug, _ := cmd.Flags().GetBool("debug")
	logger := newLogger(cmd.ErrOrStderr(), debug)

	// cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return watch(ctx, configPath(), debug, logger)
}

// watch loads the configuration, optionally sends the self-test e-mail and
// blocks until the alert was sent or the run failed.
func watch(ctx context.Context, path string, debug bool, logger *slog.Logger) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	logger.Info("config loaded",
		"path", path,
		"version", version,
		"commit", commit,
		"courses", len(cfg.Courses),
		"sms", cfg.Email.SMSGateway != "",
	)

	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return err
	}

	checker, err := config.BuildChecker(cfg, logger)
	if err != nil {
		return err
	}
	defer checker.Close()

	notifier, err := config.BuildNotifier(cfg)
	if err != nil {
		return err
	}

	w, err := seatwatch.New(append(opts,
		seatwatch.WithChecker(checker),
		seatwatch.WithNotifier(notifier),
		seatwatch.WithLogger(logger),
	)...)
	if err != nil {
		return err
	}

	if debug {
		if err := w.SelfTest(ctx); err != nil {
			return fmt.Errorf("e-mail self-test: %w", err)
		}
	}

	result, err := w.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("done", "course", result.Course.Label(), "state", w.State().String())
	return nil
}
