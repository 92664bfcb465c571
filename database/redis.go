package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tile-ops-server/config"
)

var Redis *redis.Client

// InitRedis connects the shared redis client used for the notification
// pub/sub fabric. The asynq task queue opens its own connection from the
// same config.
func InitRedis(cfg config.RedisConfig) error {
	Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := Redis.Ping(context.Background()).Err(); err != nil {
		Redis.Close()
		Redis = nil
		return fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}

	return nil
}
