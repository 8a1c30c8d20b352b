package datalayer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/glizzus/soundlink/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Integrations holds the optional backing services. A nil field means the
// service is not configured.
type Integrations struct {
	Postgres    *pgxpool.Pool
	Minio       *MinioStorage
	Redis       *redis.Client
	RedisConfig *config.RedisConfig
}

// ConnectFromEnv connects to every service whose environment variables are
// present. Postgres is migrated and the Minio bucket is created if missing.
func ConnectFromEnv(ctx context.Context) (*Integrations, error) {
	in := &Integrations{}

	if config.PostgresEnabled() {
		pool, err := NewPostgresPoolFromEnv(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		in.Postgres = pool
		if err := MigratePostgres(pool); err != nil {
			in.Close()
			return nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}
		slog.Info("Postgres playlists enabled")
	}

	if config.MinioEnabled() {
		storage, err := NewMinioStorageFromEnv()
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("failed to create minio storage: %w", err)
		}
		if err := storage.EnsureBucket(ctx); err != nil {
			in.Close()
			return nil, fmt.Errorf("failed to ensure minio bucket: %w", err)
		}
		in.Minio = storage
		slog.Info("Minio blob source enabled")
	}

	if config.RedisEnabled() {
		cfg, err := config.NewRedisConfigFromEnv()
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("failed to load redis config: %w", err)
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			in.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		in.Redis = rdb
		in.RedisConfig = cfg
		slog.Info("Redis event log and blocklist enabled", "stream", cfg.Stream)
	}

	return in, nil
}

func (in *Integrations) Close() {
	if in.Postgres != nil {
		in.Postgres.Close()
	}
	if in.Redis != nil {
		if err := in.Redis.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
}
