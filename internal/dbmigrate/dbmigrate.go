// Package dbmigrate applies the SQL files under db/migrations with golang-migrate.
package dbmigrate

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// DefaultSource is relative to the working directory of the binaries.
const DefaultSource = "file://db/migrations"

var ErrNilDB = errors.New("dbmigrate: nil database handle")

type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Version() (version uint, dirty bool, err error)
}

// Overridden in tests to avoid a real Postgres connection.
var withPostgresInstance = func(db *sql.DB) (migratedb.Driver, error) {
	return postgres.WithInstance(db, &postgres.Config{})
}

var newMigrateWithDB = func(sourceURL string, databaseName string, driver migratedb.Driver) (Migrator, error) {
	return migrate.NewWithDatabaseInstance(sourceURL, databaseName, driver)
}

// New builds a migrator reading from sourceURL (DefaultSource when empty).
func New(db *sql.DB, sourceURL string) (Migrator, error) {
	if sourceURL == "" {
		sourceURL = DefaultSource
	}
	driver, err := withPostgresInstance(db)
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}
	m, err := newMigrateWithDB(sourceURL, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}

// Apply moves the schema in direction ("up" or "down"). steps == 0 means all the way.
func Apply(m Migrator, direction string, steps int) error {
	switch direction {
	case "up":
		if steps > 0 {
			return m.Steps(steps)
		}
		return m.Up()
	case "down":
		if steps > 0 {
			return m.Steps(-steps)
		}
		return m.Down()
	default:
		return fmt.Errorf("invalid direction: %s (must be 'up' or 'down')", direction)
	}
}

// Up applies every pending migration. An already current schema is not an error.
func Up(db *sql.DB, sourceURL string) error {
	if db == nil {
		return ErrNilDB
	}
	m, err := New(db, sourceURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// ForceDirty resets a dirty schema to its recorded version. It reports whether anything
// had to be forced.
func ForceDirty(m Migrator) (uint, bool, error) {
	v, dirty, err := m.Version()
	if err != nil {
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	if !dirty {
		return v, false, nil
	}
	if err := m.Force(int(v)); err != nil {
		return v, false, fmt.Errorf("force dirty version %d: %w", v, err)
	}
	return v, true, nil
}
