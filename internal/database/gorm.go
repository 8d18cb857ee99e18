package database

import (
	"fmt"
	"strings"

	"whatsapp-flowbot/internal/config"
	applog "whatsapp-flowbot/internal/logger"
	"whatsapp-flowbot/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured database. DB_DRIVER selects postgres or sqlite.
func Open(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.DBDriver) {
	case "postgres", "postgresql":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
		dialector = postgres.Open(dsn)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel(cfg.DBLogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.DBDriver, err)
	}
	applog.Info("connected to database", zap.String("driver", cfg.DBDriver))
	return db, nil
}

func logLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// Migrate creates or updates every table the engine uses.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	applog.Info("database migration completed")
	return nil
}

// SyncSequences moves each table's id sequence past its highest id. Only Postgres has
// sequences; other dialects are left alone. Needed after rows were imported with explicit ids.
func SyncSequences(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		applog.Info("sequence sync skipped", zap.String("dialect", db.Dialector.Name()))
		return nil
	}

	var failed []string
	for _, m := range models.All() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(m); err != nil {
			return fmt.Errorf("parse model %T: %w", m, err)
		}
		table := stmt.Schema.Table
		query := fmt.Sprintf("SELECT setval(pg_get_serial_sequence('%s', 'id'), coalesce(max(id), 0) + 1, false) FROM %s", table, table)
		if err := db.Exec(query).Error; err != nil {
			applog.Error("error syncing sequence", zap.String("table", table), zap.Error(err))
			failed = append(failed, table)
			continue
		}
		applog.Info("synced sequence", zap.String("table", table))
	}
	if len(failed) > 0 {
		return fmt.Errorf("sequence sync failed for %s", strings.Join(failed, ", "))
	}
	return nil
}
