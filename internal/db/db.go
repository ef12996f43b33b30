package db

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"go-advisor/internal/config"
	"go-advisor/internal/memory"
	"go-advisor/internal/session"
)

// sqlitePrefix selects the sqlite driver, e.g. "sqlite:advisor.db".
const sqlitePrefix = "sqlite:"

// Open connects to postgres, or to sqlite when the DSN has the sqlite:
// prefix.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is empty")
	}
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if strings.HasPrefix(dsn, sqlitePrefix) {
		return gorm.Open(sqlite.Open(strings.TrimPrefix(dsn, sqlitePrefix)), gcfg)
	}
	return gorm.Open(postgres.Open(dsn), gcfg)
}

// Init opens the configured database and migrates the memory and
// conversation archive tables.
func Init(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := Open(cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	if log != nil {
		log.Info("database connected and migrated")
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&memory.MemoryRecord{}); err != nil {
		return fmt.Errorf("migrate memories: %w", err)
	}
	if err := db.AutoMigrate(&session.ConversationRecord{}); err != nil {
		return fmt.Errorf("migrate conversations: %w", err)
	}
	return nil
}
