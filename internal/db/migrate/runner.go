// Package migrate applies the embedded SQL migrations with golang-migrate.
package migrate

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"transient-broker/backend/internal/db"
)

// Result describes the schema state after a migration run.
type Result struct {
	Version uint
	Dirty   bool
	Changed bool
}

// Up migrates the schema to the latest embedded version. An already-current
// schema is not an error; Changed reports whether anything was applied.
func Up(dsn string) (Result, error) {
	return run(dsn, func(m *migrate.Migrate) error { return m.Up() })
}

// Down rolls back every migration. Changed is false when the schema was
// already empty.
func Down(dsn string) (Result, error) {
	return run(dsn, func(m *migrate.Migrate) error { return m.Down() })
}

func run(dsn string, step func(*migrate.Migrate) error) (Result, error) {
	if dsn == "" {
		return Result{}, errors.New("DATABASE_URL is not set")
	}
	src, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return Result{}, fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return Result{}, fmt.Errorf("open migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	res := Result{Changed: true}
	if err := step(m); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return Result{}, err
		}
		res.Changed = false
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return res, fmt.Errorf("read schema version: %w", err)
	}
	res.Version, res.Dirty = version, dirty
	return res, nil
}
