// Package main is the entry point of the streak-hub session host.
//
// streakd loads configuration, opens the configured key-value backend,
// restores the session and runs the presence sweep until it receives
// SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/streakhub/streak-hub/config"
	"github.com/streakhub/streak-hub/internal/domain/participant"
	"github.com/streakhub/streak-hub/internal/hub"
	"github.com/streakhub/streak-hub/pkg/logger"
)

// options are the command-line flags. Flags override the environment.
type options struct {
	envFile    string
	store      string
	logLevel   string
	hashSecret string
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("streakd", pflag.ContinueOnError)
	fs.StringVar(&opts.envFile, "env-file", "", "load environment variables from this file first")
	fs.StringVar(&opts.store, "store", "", "storage driver: memory, sqlite, redis or postgres")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	fs.StringVar(&opts.hashSecret, "hash-secret", "", "print a bcrypt hash of the given join secret and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func run(args []string, stdout io.Writer) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. FLAGS AND CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	if opts.hashSecret != "" {
		hash, err := hub.HashSecret(opts.hashSecret)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, hash)
		return err
	}

	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	}
	if opts.store != "" {
		_ = os.Setenv("STORE_DRIVER", opts.store)
	}
	if opts.logLevel != "" {
		_ = os.Setenv("LOG_LEVEL", opts.logLevel)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg, stdout)
	log.Info("starting streak-hub",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"store", cfg.Store.Driver,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. SESSION
	// ─────────────────────────────────────────────────────────────────────────
	h, err := buildHub(ctx, cfg, log)
	if err != nil {
		return err
	}

	unsubscribe, err := h.Subscribe(func(ctx context.Context, e participant.Event) error {
		logger.FromContext(ctx).Debug("event", logger.EventKind(string(e.Kind())), logger.ParticipantID(e.AggregateID()))
		return nil
	})
	if err != nil {
		_ = h.Close()
		return err
	}
	defer unsubscribe()

	if err := h.Start(); err != nil {
		_ = h.Close()
		return err
	}

	stats := h.Stats()
	log.Info("streak-hub is running",
		"participants", stats.TotalParticipants,
		"top_streak", stats.TopStreak,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("received shutdown signal", "timeout", cfg.App.ShutdownTimeout.String())

	return shutdown(h, cfg, log)
}

// buildHub opens the store and wires the session.
func buildHub(ctx context.Context, cfg *config.Config, log *slog.Logger) (*hub.Hub, error) {
	openCtx, cancel := context.WithTimeout(ctx, cfg.Store.OpenTimeout)
	defer cancel()

	store, err := openStore(openCtx, cfg.Store, log)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}

	gate, err := hub.NewGate(cfg.Gate.Secret, cfg.Gate.SecretHash)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("join gate: %w", err)
	}

	h, err := hub.New(openCtx, hub.Options{
		Store:           store,
		Prefix:          cfg.Store.Prefix,
		EventCapacity:   cfg.Store.EventCapacity,
		OnlineThreshold: cfg.Presence.OnlineThreshold,
		SweepInterval:   cfg.Presence.SweepInterval,
		SweepTimeout:    cfg.Presence.SweepTimeout,
		Gate:            gate,
		Logger:          log,
		LogEvents:       cfg.Observability.LogEvents,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build session: %w", err)
	}
	return h, nil
}

// shutdown closes the hub, giving up after the configured timeout.
func shutdown(h *hub.Hub, cfg *config.Config, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.Close() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		log.Info("shutdown completed successfully")
		return nil
	case <-ctx.Done():
		return errors.New("shutdown timed out")
	}
}

// setupLogger builds the process logger and installs it as the default.
func setupLogger(cfg *config.Config, out io.Writer) *slog.Logger {
	level := logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		level = slog.LevelDebug
	}

	log := logger.New(logger.Options{
		Output: out,
		Level:  level,
		Format: logger.ParseFormat(cfg.Observability.LogFormat),
	}).With(slog.String("app", cfg.App.Name))

	slog.SetDefault(log)
	return log
}
