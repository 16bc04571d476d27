// Package store opens the core.Store selected by configuration.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/rosterimport/internal/config"
	"github.com/JonMunkholm/rosterimport/internal/core"
	"github.com/JonMunkholm/rosterimport/internal/store/memory"
	"github.com/JonMunkholm/rosterimport/internal/store/postgres"
	"github.com/JonMunkholm/rosterimport/internal/store/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Backend is a core.Store with lifecycle hooks.
type Backend interface {
	core.Store
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the configured driver and, when enabled, migrates it.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Backend, error) {
	var (
		b   Backend
		err error
	)

	switch strings.ToLower(cfg.Driver) {
	case "postgres":
		b, err = openPostgres(ctx, cfg)
	case "sqlite":
		var s *sqlite.Store
		s, err = sqlite.Open(cfg.SQLitePath)
		if err == nil {
			b = s
			slog.Info("opened sqlite database", "path", cfg.SQLitePath)
		}
	case "memory":
		b = memoryBackend{memory.New()}
		slog.Warn("using in-memory store; data is lost on exit")
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := b.Migrate(ctx); err != nil {
			_ = b.Close()
			return nil, err
		}
	}
	return b, nil
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig) (Backend, error) {
	pool, err := postgres.Connect(ctx, postgres.PoolConfig{
		URL:             cfg.URL,
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
		MaxConnIdleTime: cfg.MaxConnIdleTime,
	})
	if err != nil {
		return nil, err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	return postgresBackend{Store: postgres.New(pool), pool: pool}, nil
}

type postgresBackend struct {
	*postgres.Store
	pool *pgxpool.Pool
}

func (b postgresBackend) Close() error {
	b.pool.Close()
	return nil
}

type memoryBackend struct {
	*memory.Store
}

func (memoryBackend) Close() error { return nil }
