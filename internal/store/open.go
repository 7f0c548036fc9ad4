package store

import (
	"context"
	"fmt"
	"os"

	"github.com/naveenspark/larder/internal/config"
)

// Open builds the backend selected by cfg.Store.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Store {
	case config.StoreFile:
		return NewFileBackend(cfg.DataDir)
	case config.StoreSQLite:
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", cfg.DataDir, err)
		}
		return OpenSQLite(cfg.SQLitePath())
	case config.StoreRedis:
		return ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.DB)
	case config.StoreMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Store)
	}
}
