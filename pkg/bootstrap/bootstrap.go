// Package bootstrap turns a loaded config.Config into the live dependencies the
// commands run on: the store, the result cache, the optional archiver and the
// analytics service on top of them.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/tally/pkg/analytics"
	"github.com/platinummonkey/tally/pkg/archive"
	"github.com/platinummonkey/tally/pkg/cache"
	"github.com/platinummonkey/tally/pkg/config"
	"github.com/platinummonkey/tally/pkg/observability"
	"github.com/platinummonkey/tally/pkg/storage"
	"github.com/platinummonkey/tally/pkg/storage/memory"
	"github.com/platinummonkey/tally/pkg/storage/postgres"
)

// Backend holds everything opened from the config. DB and Redis are nil when the
// corresponding backend is not in use; Cache is nil when caching is off.
type Backend struct {
	Store storage.Store
	DB    *sql.DB
	Redis *redis.Client
	Cache analytics.Cache

	pg *postgres.Store
}

// Open connects the store and the cache. On error nothing is left open.
func Open(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Backend, error) {
	b := &Backend{}

	switch cfg.Storage.Type {
	case "memory":
		logger.Warn("Using in-memory storage; data is lost on restart")
		b.Store = memory.NewStore()
	case "postgres":
		pg, err := postgres.NewStore(ctx, cfg.Storage, logger)
		if err != nil {
			return nil, err
		}
		b.pg = pg
		b.Store = pg
		b.DB = pg.Connections().Primary()
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}

	c, client, err := OpenCache(ctx, cfg.Cache, cfg.Redis())
	if err != nil {
		b.Store.Close()
		return nil, err
	}
	b.Cache, b.Redis = c, client

	logger.WithFields(map[string]interface{}{
		"storage": cfg.Storage.Type,
		"cache":   cfg.Cache.Type,
	}).Info("Backend initialized")
	return b, nil
}

// OpenCache builds the configured result cache. The redis client is returned so
// health checks can ping it; it is nil for the other cache types.
func OpenCache(ctx context.Context, cfg config.CacheConfig, redisCfg cache.RedisConfig) (analytics.Cache, *redis.Client, error) {
	switch cfg.Type {
	case "none":
		return nil, nil, nil
	case "memory":
		return cache.NewMemoryCache(cfg.MaxEntries, cfg.TTL), nil, nil
	case "redis":
		client, err := cache.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, nil, err
		}
		return cache.NewRedisCache(client, redisCfg.KeyPrefix), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}

// OpenArchiver returns the S3 archiver when archiving is enabled, else nil
func OpenArchiver(ctx context.Context, cfg *config.Config, logger *observability.Logger) (analytics.RollupArchiver, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}
	s3cfg := cfg.S3()
	client, err := archive.NewS3Client(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	archiver, err := archive.NewS3Archiver(ctx, client, s3cfg)
	if err != nil {
		return nil, err
	}
	logger.WithField("bucket", s3cfg.Bucket).Info("Rollup archive enabled")
	return archiver, nil
}

// Service builds the analytics service on the backend
func (b *Backend) Service(cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) *analytics.Service {
	return analytics.NewService(analytics.ServiceConfig{
		Records:  b.Store,
		Rollups:  b.Store,
		Cache:    b.Cache,
		CacheTTL: cfg.Cache.TTL,
		Logger:   logger,
		Metrics:  metrics,
	})
}

// Postgres returns the postgres store, or nil for other backends
func (b *Backend) Postgres() *postgres.Store {
	return b.pg
}

// Close releases the cache and the store
func (b *Backend) Close(ctx context.Context) error {
	var errs []error
	if closer, ok := b.Cache.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if b.Store != nil {
		if err := b.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
