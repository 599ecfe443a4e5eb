package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

var errNoHandle = errors.New("migration database handle is required")

// State is the schema version recorded in schema_migrations.
type State struct {
	Version uint
	Dirty   bool
	// Changed is set when RunMigrations applied at least one step.
	Changed bool
}

// RunMigrations applies the embedded migrations up to the latest version.
// Postgres only; the casbin_rule table belongs to the authorization adapter.
func RunMigrations(db *sql.DB) (State, error) {
	m, err := newMigrator(db)
	if err != nil {
		return State{}, err
	}
	before, err := stateOf(m)
	if err != nil {
		return State{}, err
	}
	if before.Dirty {
		return before, fmt.Errorf("schema version %d is dirty, fix it by hand before migrating", before.Version)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return before, fmt.Errorf("apply migrations: %w", err)
	}
	after, err := stateOf(m)
	if err != nil {
		return State{}, err
	}
	after.Changed = after.Version != before.Version
	return after, nil
}

// Status reads the current schema version without migrating.
func Status(db *sql.DB) (State, error) {
	m, err := newMigrator(db)
	if err != nil {
		return State{}, err
	}
	return stateOf(m)
}

// newMigrator never closes the migrator: that would close the shared *sql.DB.
func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	if db == nil {
		return nil, errNoHandle
	}
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

func stateOf(m *migrate.Migrate) (State, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read schema version: %w", err)
	}
	return State{Version: version, Dirty: dirty}, nil
}
