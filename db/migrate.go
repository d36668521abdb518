// Command migrate applies or rolls back the TechPost schema.
//
//	go run ./db/migrate.go -direction up
//	go run ./db/migrate.go -direction down -steps 1
//	go run ./db/migrate.go -force-dirty
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/PortNumber53/techpost-ai/internal/dbmigrate"
)

func main() {
	msg, err := run(os.Args[1:], defaultDeps())
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(msg)
}

type deps struct {
	loadEnv     func(...string) error
	getenv      func(string) string
	openDB      func(driverName, dataSourceName string) (*sql.DB, error)
	newMigrator func(db *sql.DB, source string) (dbmigrate.Migrator, error)
}

func defaultDeps() deps {
	return deps{
		loadEnv:     godotenv.Load,
		getenv:      os.Getenv,
		openDB:      sql.Open,
		newMigrator: dbmigrate.New,
	}
}

type options struct {
	direction  string
	steps      int
	force      int
	forceDirty bool
	source     string
}

func parseArgs(args []string) (options, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	var o options
	fs.StringVar(&o.direction, "direction", "up", "Migration direction: up or down")
	fs.IntVar(&o.steps, "steps", 0, "Number of migration steps (0 = all)")
	fs.IntVar(&o.force, "force", -1, "Force set migration version (clears dirty state). Example: -force=1")
	fs.BoolVar(&o.forceDirty, "force-dirty", false, "If the database is dirty, force it to the current version and exit")
	fs.StringVar(&o.source, "source", "", "Migration source URL (default $MIGRATIONS_SOURCE or "+dbmigrate.DefaultSource+")")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	switch o.direction {
	case "up", "down":
		return o, nil
	default:
		return options{}, fmt.Errorf("invalid direction: %s (must be 'up' or 'down')", o.direction)
	}
}

func run(args []string, d deps) (string, error) {
	o, err := parseArgs(args)
	if err != nil {
		return "", err
	}
	if d.loadEnv != nil {
		_ = d.loadEnv()
	}

	getenv := d.getenv
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	databaseURL := getenv("DATABASE_URL")
	if databaseURL == "" {
		return "", errors.New("DATABASE_URL environment variable is required")
	}
	if o.source == "" {
		o.source = getenv("MIGRATIONS_SOURCE")
	}
	if d.openDB == nil || d.newMigrator == nil {
		return "", errors.New("openDB and newMigrator dependencies are required")
	}

	db, err := d.openDB("postgres", databaseURL)
	if err != nil {
		return "", fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	m, err := d.newMigrator(db, o.source)
	if err != nil {
		return "", err
	}

	if o.forceDirty {
		v, forced, err := dbmigrate.ForceDirty(m)
		if err != nil {
			return "", err
		}
		if !forced {
			return "Database is not dirty (no force needed)", nil
		}
		return fmt.Sprintf("Forced dirty database to version %d", v), nil
	}
	if o.force >= 0 {
		if err := m.Force(o.force); err != nil {
			return "", fmt.Errorf("force version %d: %w", o.force, err)
		}
		return fmt.Sprintf("Forced database to version %d", o.force), nil
	}

	err = dbmigrate.Apply(m, o.direction, o.steps)
	if errors.Is(err, migrate.ErrNoChange) {
		return "No migrations to apply", nil
	}
	if err != nil {
		return "", fmt.Errorf("migration failed: %w", err)
	}
	return fmt.Sprintf("Migration %s completed successfully", o.direction), nil
}
