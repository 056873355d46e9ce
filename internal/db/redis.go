package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/config"
	"github.com/redis/go-redis/v9"
)

func GetRedis(redisURL string, cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	if !cfg.IsRedisEnabled {
		logger.Info("redis is disabled by config")
		return nil, nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("connected to redis")
	return client, nil
}

func CloseRedis(client *redis.Client, logger *slog.Logger) {
	if client == nil {
		return
	}

	if err := client.Close(); err != nil {
		logger.Error("failed to close redis connection", "err", err)
	} else {
		logger.Info("redis connection closed")
	}
}
