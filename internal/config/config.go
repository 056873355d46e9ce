package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	GinMode                         string
	Port                            string
	DbAddress                       string
	JwtSecret                       string
	FrontendUrl                     string
	RedisURL                        string
	IsRedisEnabled                  bool
	RateLimiterDurationInSec        int
	RateLimiterRequestLimit         int
	RateLimiterCleanupIntervalInSec int
	HeartBeatWindowInSec            int
	RecentFriendWindowInSec         int
	DefaultPageSize                 int
	MaxPageSize                     int
	MailFrom                        string
}

func getEnvStrOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)

	if value == "" {
		return defaultValue
	}

	return value
}

func getEnvStrOrError(key string) (string, error) {
	value := os.Getenv(key)

	if value == "" {
		return "", fmt.Errorf("environment variable %s is required but not set", key)
	}

	return value, nil
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	strValue := os.Getenv(key)

	intValue, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}

	return intValue
}

func LoadConfigFromEnv() (*Config, error) {
	jwtSecret, err := getEnvStrOrError("JWT_SECRET")
	if err != nil {
		return nil, err
	}

	redisURL := getEnvStrOrDefault("REDIS_URL", "")

	cfg := &Config{
		GinMode:                         getEnvStrOrDefault("GIN_MODE", "debug"),
		Port:                            getEnvStrOrDefault("PORT", "3004"),
		DbAddress:                       getEnvStrOrDefault("DB_ADDRESS", "data/chat_service_db.sqlite"),
		JwtSecret:                       jwtSecret,
		FrontendUrl:                     getEnvStrOrDefault("FRONTEND_URL", "http://localhost:5173"),
		RedisURL:                        redisURL,
		IsRedisEnabled:                  redisURL != "",
		RateLimiterDurationInSec:        getEnvIntOrDefault("RATE_LIMITER_DURATION_IN_SEC", 60),
		RateLimiterRequestLimit:         getEnvIntOrDefault("RATE_LIMITER_REQUEST_LIMIT", 1000),
		RateLimiterCleanupIntervalInSec: getEnvIntOrDefault("RATE_LIMITER_CLEANUP_INTERVAL_IN_SEC", 300),
		HeartBeatWindowInSec:            getEnvIntOrDefault("HEART_BEAT_WINDOW_IN_SEC", 120),
		RecentFriendWindowInSec:         getEnvIntOrDefault("RECENT_FRIEND_WINDOW_IN_SEC", 7*24*3600),
		DefaultPageSize:                 getEnvIntOrDefault("DEFAULT_PAGE_SIZE", 20),
		MaxPageSize:                     getEnvIntOrDefault("MAX_PAGE_SIZE", 100),
		MailFrom:                        getEnvStrOrDefault("MAIL_FROM", "no-reply@kwikchat.local"),
	}

	if cfg.DefaultPageSize <= 0 || cfg.MaxPageSize < cfg.DefaultPageSize {
		return nil, fmt.Errorf("invalid page size config: default=%d max=%d", cfg.DefaultPageSize, cfg.MaxPageSize)
	}

	return cfg, nil
}
