package repository

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/hholt/choreboard/internal/config"
	"github.com/hholt/choreboard/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies pending SQL migrations on the postgres connection.
// Migrations ship embedded; cfg.MigrationsPath overrides with an
// on-disk directory for operators patching a live install.
func (db *DB) Migrate(cfg *config.PostgresConfig, log *logger.Logger) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	driver, err := migratepg.WithInstance(sqlDB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}

	var m *migrate.Migrate
	if cfg.MigrationsPath != "" {
		m, err = migrate.NewWithDatabaseInstance("file://"+cfg.MigrationsPath, cfg.Database, driver)
	} else {
		source, srcErr := iofs.New(migrationFS, "migrations")
		if srcErr != nil {
			return fmt.Errorf("failed to open embedded migrations: %w", srcErr)
		}
		m, err = migrate.NewWithInstance("iofs", source, cfg.Database, driver)
	}
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	log.Info().
		Uint("version", version).
		Bool("dirty", dirty).
		Msg("Database migrations applied")

	return nil
}
