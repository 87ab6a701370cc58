package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/docuflow-inc/docuflow-engine/pkg/config"
	"github.com/docuflow-inc/docuflow-engine/pkg/logging"
)

// NewRedisClient creates a new Redis client with the given configuration.
// Returns nil if Redis is not configured (host is empty); the engine then
// uses its in-process rule-set cache.
func NewRedisClient(cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg.Host == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %s",
			logging.SanitizeError(err))
	}

	return client, nil
}
