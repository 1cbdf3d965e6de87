/**
 * @description
 * Process wiring shared by the api and scheduler binaries: database pool,
 * repository, Redis client and id provider selection.
 */
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/however6234/trading-system/internal/config"
	"github.com/however6234/trading-system/internal/idgen"
	"github.com/however6234/trading-system/internal/store"
)

// Resources holds the long-lived connections opened for a process.
type Resources struct {
	Repository store.Repository
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	IDs        idgen.Provider
}

// Close releases every connection that was opened.
func (r *Resources) Close() {
	if r.Redis != nil {
		r.Redis.Close()
	}
	if r.Pool != nil {
		r.Pool.Close()
	}
}

// Open connects the storage, Redis and id provider selected by cfg.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Resources, error) {
	res := &Resources{}

	switch cfg.StorageDriver {
	case config.StorageDriverPostgres:
		pool, err := openPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		res.Pool = pool
		res.Repository = store.NewPostgresRepository(pool)
		logger.Info("database connection established")
	default:
		res.Repository = store.NewMemoryRepository()
		logger.Warn("using in-memory storage; data is lost on restart")
	}

	if needsRedis(cfg) {
		client, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			res.Close()
			return nil, err
		}
		res.Redis = client
		logger.Info("redis connected")
	}

	switch cfg.IDProvider {
	case config.IDProviderPostgres:
		res.IDs = idgen.NewSequenceProvider(res.Pool)
	case config.IDProviderRedis:
		res.IDs = idgen.NewRedisProvider(res.Redis, cfg.RedisKeyPrefix, cfg.IDStart)
	default:
		res.IDs = idgen.NewLocalProvider(cfg.IDStart)
	}
	logger.Info("id provider selected", "provider", cfg.IDProvider)

	return res, nil
}

func needsRedis(cfg config.Config) bool {
	return cfg.IDProvider == config.IDProviderRedis || cfg.PurchaseRateLimit > 0
}

func openPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return pool, nil
}

func openRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, fmt.Errorf("redis url parse failed: %w", err)
	}
	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
