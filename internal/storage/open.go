package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"spreadwatch/internal/config"
)

// Open builds the medium selected by cfg.Backend and applies the configured quota.
// scope is the key prefix owned by the caller, used by backends that share a server.
func Open(ctx context.Context, cfg config.StorageConfig, scope string) (Medium, error) {
	var (
		m   Medium
		err error
	)

	switch cfg.Backend {
	case config.BackendMemory:
		m = NewMemory()
	case config.BackendBadger:
		if cfg.Path != "" {
			if mkErr := os.MkdirAll(filepath.Clean(cfg.Path), 0o755); mkErr != nil {
				return nil, fmt.Errorf("create storage path: %w", mkErr)
			}
		}
		m, err = NewBadger(cfg.Path)
	case config.BackendRedis:
		m, err = NewRedis(ctx, RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Scope:    scope,
		})
	case config.BackendPostgres:
		pool, poolErr := NewPool(ctx, cfg.Database)
		if poolErr != nil {
			return nil, poolErr
		}
		m, err = NewPostgres(ctx, pool)
		if err != nil {
			pool.Close()
		}
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	return WithQuota(m, cfg.QuotaBytes), nil
}
