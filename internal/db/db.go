package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NowUTC is the clock used by gorm for autoCreateTime/autoUpdateTime. Every
// timestamp is stored in UTC so created_at/hidden_at comparisons stay ordered.
func NowUTC() time.Time {
	return time.Now().UTC()
}

func GetDB(dbAddress string, logger *slog.Logger) (*gorm.DB, error) {
	dsn := dbAddress
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	}

	myDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		NowFunc:        NowUTC,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db %s: %w", dbAddress, err)
	}

	myDB.Exec("PRAGMA foreign_keys = ON")

	if err := MigrateDB(myDB); err != nil {
		return nil, err
	}

	logger.Info("connected to db", "address", dbAddress)
	return myDB, nil
}

func MigrateDB(myDB *gorm.DB) error {
	for _, model := range Models() {
		if err := myDB.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}
	return nil
}

func CloseDB(myDB *gorm.DB, logger *slog.Logger) {
	if myDB == nil {
		return
	}

	sqlDB, err := myDB.DB()
	if err != nil {
		logger.Error("failed to get db instance", "err", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		logger.Error("failed to close db", "err", err)
		return
	}

	logger.Info("db connection closed")
}

func ResetDB(myDB *gorm.DB, logger *slog.Logger) {
	logger.Warn("resetting db...")

	ctx := context.Background()
	tables := []string{
		"starreds",
		"reactions",
		"seen_statuses",
		"message_hiddens",
		"message_images",
		"messages",
		"members",
		"conversations",
		"blocks",
		"friend_requests",
		"friends",
		"heart_beats",
		"users",
	}

	for _, table := range tables {
		err := gorm.G[any](myDB).Exec(ctx, "DELETE FROM "+table)
		if err != nil {
			logger.Error("failed to reset table", "table", table, "err", err)
		}
	}

	logger.Info("db is reset")
}
