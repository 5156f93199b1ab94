package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/shimonpozd/astra-sub000/internal/config"
)

// NewClient creates and pings a Redis client. Callers own the instance
// and inject it where needed; there is no process-wide singleton.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cannot connect to Redis at %s: %w", cfg.Address, err)
	}
	return rdb, nil
}

// HealthCheck pings the given client.
func HealthCheck(ctx context.Context, rdb *redis.Client) error {
	if rdb == nil {
		return fmt.Errorf("redis client is nil")
	}
	return rdb.Ping(ctx).Err()
}
