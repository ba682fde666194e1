// Package store selects and constructs the configured storage backend.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nunatak-io/icewatch/cmd/icewatch/config"
	"github.com/nunatak-io/icewatch/pkg/storage"
)

// New creates the storage backend named by cfg.Storage.
//
// Supported backends:
//   - "memory": process-local store, state is lost on restart
//   - "redis": durable store backed by a Redis server
//   - "postgres": durable store backed by a Postgres database
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Storage {
	case "memory":
		logger.Info("using in-memory storage", "durable", false)
		return storage.NewMemoryStore(), nil

	case "redis":
		logger.Info("using redis storage", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		st, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		return st, nil

	case "postgres":
		logger.Info("using postgres storage")
		st, err := storage.OpenPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("create postgres store: %w", err)
		}
		return st, nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (must be memory, redis, or postgres)", cfg.Storage)
	}
}
