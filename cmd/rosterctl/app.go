package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/JonMunkholm/rosterimport/internal/accounts"
	"github.com/JonMunkholm/rosterimport/internal/config"
	"github.com/JonMunkholm/rosterimport/internal/core"
	"github.com/JonMunkholm/rosterimport/internal/logging"
	"github.com/JonMunkholm/rosterimport/internal/store"
	"github.com/joho/godotenv"
)

// app holds the pipeline wired from configuration.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	backend store.Backend
	queue   *core.EffectQueue
	service *core.Service
}

// loadConfig reads .env (without overriding the shell) and the environment.
// Logs go to stderr so stdout stays machine readable.
func loadConfig() (*config.Config, *slog.Logger, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logging.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format), nil
}

func newApp(ctx context.Context, provision bool) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	backend, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Database.Driver, err)
	}

	queue := core.NewEffectQueue(
		core.WithBatchSize(cfg.Effects.BatchSize),
		core.WithBatchDelay(cfg.Effects.BatchDelay),
		core.WithQueueLogger(logger),
	)

	var effects core.EffectFactory
	if provision && cfg.Effects.ProvisionAccounts {
		effects = accounts.NewProvisioner(backend,
			accounts.WithPassword(cfg.Effects.DefaultPassword),
			accounts.WithCost(cfg.Effects.BcryptCost),
			accounts.WithLogger(logger),
		)
	}

	importer := core.NewImporter(backend, queue, effects,
		core.WithIdentifierGenerator(core.NewIdentifierGenerator(
			core.WithMaxAttempts(cfg.Import.IDMaxAttempts),
			core.WithIdentifierLogger(logger),
		)),
		core.WithLogger(logger),
	)

	service := core.NewService(importer,
		core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime),
		core.WithImportTimeout(cfg.Import.Timeout),
		core.WithMaxFileSize(cfg.Import.MaxFileSize),
		core.WithServiceLogger(logger),
	)

	return &app{cfg: cfg, log: logger, backend: backend, queue: queue, service: service}, nil
}

// close drains queued effects before releasing the store.
func (a *app) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.queue.Close(ctx); err != nil {
		a.log.Warn("effect queue did not drain", "error", err)
	}
	if err := a.backend.Close(); err != nil {
		a.log.Warn("close store", "error", err)
	}
}
