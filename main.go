// Package main runs the platinmods notifier: it polls member profiles and
// forum listings, diffs each observation against the persisted fact, and
// pushes one Telegram message per detected change.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/storage"

	"platinmods-notifier/broadcast"
	"platinmods-notifier/config"
	"platinmods-notifier/poll"
	"platinmods-notifier/scraper"
	"platinmods-notifier/server"
	"platinmods-notifier/state"
	"platinmods-notifier/telegram"
	"platinmods-notifier/users"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()
	if v := os.Getenv("CONFIG"); v != "" {
		*configPath = v
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// State backend: GCS in cloud deployments, local files for development.
	var store poll.Store
	var counter server.StateCounter
	if cfg.Storage.Bucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create storage client: %w", err)
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Warn("Failed to close storage client", "error", closeErr)
			}
		}()
		gcs := state.NewGCSStore(client, cfg.Storage.Bucket, logger)
		store, counter = gcs, gcs
		logger.Info("Using GCS state backend", "bucket", cfg.Storage.Bucket)
	} else {
		fs, err := state.NewFileStore(cfg.Storage.LocalPath, logger)
		if err != nil {
			return fmt.Errorf("create file store: %w", err)
		}
		store = fs
		logger.Info("Using local state backend", "path", cfg.Storage.LocalPath)
	}

	registry, err := users.Open(cfg.UsersDB, logger)
	if err != nil {
		return fmt.Errorf("open user registry: %w", err)
	}
	defer func() {
		if closeErr := registry.Close(); closeErr != nil {
			logger.Warn("Failed to close user registry", "error", closeErr)
		}
	}()

	bot, err := telegram.New(telegram.Config{
		Telegram: cfg.Telegram,
		Registry: registry,
		Caster:   broadcast.New(registry, 20, logger),
		Presence: cfg.PresenceTargets,
		Forums:   cfg.ForumTargets,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}

	monitor := poll.New(poll.Config{
		Sessions: func() (poll.Session, error) {
			return scraper.New(scraper.DefaultPolicy(), cfg.SiteOrigin, cfg.ThreadPathSegments, logger)
		},
		Store:    store,
		Notifier: bot,
		Presence: cfg.PresenceTargets,
		Forums:   cfg.ForumTargets,
		Interval: cfg.CheckInterval,
		Logger:   logger,
	})
	bot.SetChecker(monitor)

	logger.Info("Starting platinmods notifier",
		"presence_targets", len(cfg.PresenceTargets),
		"forum_targets", len(cfg.ForumTargets),
		"interval", cfg.CheckInterval.String(),
		"port", cfg.Port)

	errCh := make(chan error, 2)
	go func() {
		errCh <- monitor.Run(ctx)
	}()
	go func() {
		errCh <- server.New(counter, logger).Run(ctx, cfg.Port)
	}()
	go bot.Start(ctx)

	err = <-errCh
	stop()
	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}
