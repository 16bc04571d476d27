package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/rosterimport/internal/accounts"
	"github.com/JonMunkholm/rosterimport/internal/config"
	"github.com/JonMunkholm/rosterimport/internal/core"
	"github.com/JonMunkholm/rosterimport/internal/logging"
	"github.com/JonMunkholm/rosterimport/internal/store"
	"github.com/JonMunkholm/rosterimport/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store_driver", cfg.Database.Driver,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"account_provisioning", cfg.Effects.ProvisionAccounts,
	)

	// Connect to the configured store
	ctx := context.Background()
	backend, err := store.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	// Secondary effects run on a throttled queue
	queue := core.NewEffectQueue(
		core.WithBatchSize(cfg.Effects.BatchSize),
		core.WithBatchDelay(cfg.Effects.BatchDelay),
		core.WithQueueLogger(logger),
	)

	var effects core.EffectFactory
	if cfg.Effects.ProvisionAccounts {
		effects = accounts.NewProvisioner(backend,
			accounts.WithPassword(cfg.Effects.DefaultPassword),
			accounts.WithCost(cfg.Effects.BcryptCost),
			accounts.WithLogger(logger),
		)
	}

	core.ResultRetention = cfg.Import.ResultRetention

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

	slog.Info("kinds registered", "count", len(service.Kinds()))

	server := web.NewServer(service, cfg, backend)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active imports to complete (with timeout)
		status := service.LimiterStatus()
		if status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := service.WaitForImports(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Drain queued account provisioning
		if err := queue.Close(shutdownCtx); err != nil {
			slog.Warn("effect queue did not drain in time", "error", err)
		}
	}()

	// Start server (uses addr from config internally)
	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
