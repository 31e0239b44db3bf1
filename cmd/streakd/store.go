package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streakhub/streak-hub/config"
	"github.com/streakhub/streak-hub/internal/domain/shared"
	"github.com/streakhub/streak-hub/internal/infrastructure/persistence/memory"
	"github.com/streakhub/streak-hub/internal/infrastructure/persistence/postgres"
	"github.com/streakhub/streak-hub/internal/infrastructure/persistence/redis"
	"github.com/streakhub/streak-hub/internal/infrastructure/persistence/sqlite"
	"github.com/streakhub/streak-hub/pkg/retry"
)

// openStore returns the key-value backend selected by cfg.Driver.
func openStore(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (shared.KeyValueStore, error) {
	rc := retry.StorageConfig()
	if cfg.RetryAttempts > 0 {
		rc.MaxAttempts = cfg.RetryAttempts
	}
	if cfg.RetryMaxDelay > 0 {
		rc.MaxDelay = cfg.RetryMaxDelay
	}

	switch cfg.Driver {
	case config.DriverMemory:
		log.Warn("using in-memory store, state is lost on exit")
		return memory.NewStore(), nil

	case config.DriverSQLite:
		return sqlite.Open(cfg.SQLitePath, log)

	case config.DriverRedis:
		rcfg := redis.DefaultConfig()
		rcfg.Addr = cfg.RedisAddr
		rcfg.Password = cfg.RedisPassword
		rcfg.DB = cfg.RedisDB
		rcfg.Retry = rc
		return redis.NewStore(ctx, rcfg, log)

	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.DatabaseURL, rc, log)

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
