// Package config loads larder's settings from the environment.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	APIURL      string        `env:"LARDER_API_URL,      default=http://localhost:8000/api"`
	DataDir     string        `env:"LARDER_DATA_DIR"`
	Store       string        `env:"LARDER_STORE,        default=file"`
	HTTPTimeout time.Duration `env:"LARDER_HTTP_TIMEOUT, default=30s"`
	LogLevel    string        `env:"LARDER_LOG_LEVEL,    default=info"`
	LogPretty   bool          `env:"LARDER_LOG_PRETTY,   default=false"`
	SyncQueue   int           `env:"LARDER_SYNC_QUEUE,   default=32"`
	BackupTTL   time.Duration `env:"LARDER_BACKUP_TTL,   default=1h"`
	MetricsAddr string        `env:"LARDER_METRICS_ADDR"`

	Redis RedisConfig
}

type RedisConfig struct {
	Addr string `env:"LARDER_REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"LARDER_REDIS_DB,   default=0"`
}

// Load reads configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("config: get home dir: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".larder")
	}
	switch cfg.Store {
	case StoreFile, StoreSQLite, StoreRedis, StoreMemory:
	default:
		return nil, fmt.Errorf("config: unknown LARDER_STORE %q", cfg.Store)
	}
	if cfg.SyncQueue < 0 {
		return nil, fmt.Errorf("config: LARDER_SYNC_QUEUE must not be negative")
	}
	return &cfg, nil
}

// LogPath is where the CLI writes its log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "larder.log")
}

// SQLitePath is the database file used by the sqlite store.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "larder.db")
}
