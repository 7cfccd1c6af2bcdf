package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var schemaFS embed.FS

// ErrDirtySchema is returned when a previous migration failed halfway and the
// schema needs manual repair before the tracker can start.
var ErrDirtySchema = errors.New("tracker schema is dirty")

// RunMigrations brings the tracker schema (repositories, release cache and
// subscriptions) up to the version embedded in the binary.
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	m, err := newSchemaMigrator(db)
	if err != nil {
		return err
	}

	from, dirty, err := schemaVersion(m)
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("schema version %d: %w", from, ErrDirtySchema)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("tracker schema up to date", "version", from)
			return nil
		}
		return fmt.Errorf("migrate tracker schema from version %d: %w", from, err)
	}

	to, _, err := schemaVersion(m)
	if err != nil {
		return err
	}
	logger.Info("tracker schema migrated", "from_version", from, "to_version", to)

	return nil
}

func newSchemaMigrator(db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(schemaFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load embedded schema: %w", err)
	}

	target, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("prepare schema target: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", target)
	if err != nil {
		return nil, fmt.Errorf("create schema migrator: %w", err)
	}
	return m, nil
}

// schemaVersion reports 0 for a database that has never been migrated.
func schemaVersion(m *migrate.Migrate) (uint, bool, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return v, dirty, nil
}
