package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file source driver
	"github.com/jmoiron/sqlx"

	"github.com/statline-io/statline/pkg/observability"
)

// Migrate applies all pending migrations from the given directory. A
// database that is already up to date is not an error.
func Migrate(db *sqlx.DB, migrationsPath string, logger observability.Logger) error {
	logger = observability.OrNoop(logger)

	if migrationsPath == "" {
		migrationsPath = "migrations"
	}

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("No pending migrations", nil)
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	logger.Info("Migrations applied", map[string]interface{}{
		"version": version,
		"dirty":   dirty,
	})

	return nil
}
