package postgres

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrate applies every pending migration found in migrationsPath. It
// reports whether anything was applied.
func Migrate(databaseURL, migrationsPath string) (bool, error) {
	abs, err := filepath.Abs(migrationsPath)
	if err != nil {
		return false, fmt.Errorf("resolve migrations path: %w", err)
	}

	mig, err := migrate.New("file://"+abs, databaseURL)
	if err != nil {
		return false, fmt.Errorf("create migrate instance: %w", err)
	}
	defer func() { _, _ = mig.Close() }()

	if err := mig.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return false, nil
		}
		return false, fmt.Errorf("apply migrations: %w", err)
	}
	return true, nil
}
