// Package repository provides the data access layer using GORM for
// database operations. Every write publishes the corresponding row
// change on the change-feed once it is durable.
package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hholt/choreboard/internal/changefeed"
	"github.com/hholt/choreboard/internal/config"
	"github.com/hholt/choreboard/internal/models"
	"github.com/hholt/choreboard/pkg/logger"
)

// DB holds the database connection.
type DB struct {
	*gorm.DB
}

// NewDB creates a new database connection.
func NewDB(cfg *config.PostgresConfig, log *logger.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)

	var gormLogLevel gormlogger.LogLevel
	switch log.GetLogger().GetLevel() {
	case 0: // debug
		gormLogLevel = gormlogger.Info
	default:
		gormLogLevel = gormlogger.Warn
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("Connected to PostgreSQL")

	return &DB{db}, nil
}

// AutoMigrate runs GORM schema migration for all models. The postgres
// path uses Migrate instead; this covers the in-memory sqlite tests.
func (db *DB) AutoMigrate() error {
	return db.DB.AutoMigrate(
		&models.UserProfile{},
		&models.Task{},
		&models.Suggestion{},
		&models.Reward{},
		&models.RewardPurchase{},
		&models.ShopSettings{},
		&models.ActivityEntry{},
	)
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks if the database is healthy.
func (db *DB) Health() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// publishChange emits a row change on the feed. Feed delivery is
// advisory: clients re-fetch on demand, so a publish failure is
// logged, never surfaced as a write failure.
func publishChange(ctx context.Context, feed changefeed.Publisher, table, eventType string, oldRow, newRow interface{}) {
	if feed == nil {
		return
	}
	event, err := changefeed.NewEvent(table, eventType, oldRow, newRow)
	if err != nil {
		logger.Get().Warn().Err(err).Str("table", table).Msg("Failed to encode change event")
		return
	}
	if err := feed.Publish(ctx, event); err != nil {
		logger.Get().Warn().Err(err).Str("table", table).Str("type", eventType).Msg("Failed to publish change event")
	}
}
