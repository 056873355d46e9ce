package dependency

import (
	"log/slog"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/broker"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/config"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/db"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/notify"
)

type Dependency struct {
	Cfg    *config.Config
	DB     *gorm.DB
	Redis  *redis.Client
	Broker broker.Broker
	Mailer notify.Mailer
	Logger *slog.Logger
}

func NewDependency(cfg *config.Config, db *gorm.DB, redis *redis.Client, b broker.Broker, mailer notify.Mailer, logger *slog.Logger) *Dependency {
	return &Dependency{
		Cfg:    cfg,
		DB:     db,
		Redis:  redis,
		Broker: b,
		Mailer: mailer,
		Logger: logger,
	}
}

// NewBroker picks Redis pub/sub when Redis is enabled so events reach every
// server instance, and an in-process broker otherwise.
func NewBroker(cfg *config.Config, redisClient *redis.Client, logger *slog.Logger) broker.Broker {
	if cfg.IsRedisEnabled && redisClient != nil {
		return broker.NewRedisBroker(redisClient, logger)
	}
	return broker.NewMemoryBroker(logger)
}

func InitDependency(logger *slog.Logger) (*Dependency, error) {
	cfg, err := config.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	myDB, err := db.GetDB(cfg.DbAddress, logger)
	if err != nil {
		return nil, err
	}

	redisClient, err := db.GetRedis(cfg.RedisURL, cfg, logger)
	if err != nil {
		db.CloseDB(myDB, logger)
		return nil, err
	}

	b := NewBroker(cfg, redisClient, logger)
	mailer := &notify.LogMailer{Logger: logger}

	return NewDependency(cfg, myDB, redisClient, b, mailer, logger), nil
}

func CloseDependency(dep *Dependency) {
	if dep.Broker != nil {
		_ = dep.Broker.Close()
	}
	db.CloseDB(dep.DB, dep.Logger)
	db.CloseRedis(dep.Redis, dep.Logger)
}
