package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// schemaVersion is the highest migration this build understands. Spec §6:
// "a version check rejects databases newer than the SDK supports."
const schemaVersion = 1

// runMigrations applies every pending embedded migration in order (files
// use golang-migrate's {version}_{title}.up.sql naming, e.g.
// 000001_init.up.sql; V{n}__{description}.sql names are not read), then
// rejects a database whose recorded version is newer than this
// build knows about, grounded on codeready-toolchain-tarsy's
// pkg/database/client.go runMigrations (golang-migrate + embed.FS, adapted
// from Postgres to the sqlite3 database driver).
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("creating sqlite3 migrate driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("opening embedded migrations: %w", err)
	}
	defer source.Close()

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database schema is dirty at version %d", version)
	}
	if version > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than this build supports (%d)", version, schemaVersion)
	}
	return nil
}
