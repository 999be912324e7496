// Package migrations applies versioned schema migrations embedded in the
// binary, using golang-migrate so the stored schema version is tracked
// rather than re-derived by re-running idempotent DDL on every boot.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var files embed.FS

// ErrFutureVersion is returned when the store's recorded schema version is
// newer than any migration embedded in this binary — the store has been
// touched by a newer release and downgrading it is refused.
var ErrFutureVersion = errors.New("migrations: store schema version is newer than this binary knows about")

// Apply runs all pending up migrations against db, in order. It returns
// ErrFutureVersion if the store's version outruns the embedded migrations,
// which callers should map to a distinct process exit code rather than the
// generic fatal-init-error code.
func Apply(db *sql.DB) error {
	source, err := iofs.New(files, "sql")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}

	maxKnown, err := latestVersion(files)
	if err != nil {
		return fmt.Errorf("inspect embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if version, dirty, err := m.Version(); err == nil {
		if dirty {
			return fmt.Errorf("migrations: store is at dirty version %d, manual repair required", version)
		}
		if version > maxKnown {
			return ErrFutureVersion
		}
	} else if !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func latestVersion(fsys fs.FS) (uint, error) {
	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return 0, err
	}
	var max uint
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var version uint
		if _, err := fmt.Sscanf(entry.Name(), "%06d_", &version); err != nil {
			continue
		}
		if version > max {
			max = version
		}
	}
	return max, nil
}
