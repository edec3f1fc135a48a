package database

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
)

// NewMigrator builds a migrator that reads *.sql files from dir within source
// and applies them to the database at dsn (postgres:// form).
func NewMigrator(source fs.FS, dir, dsn string) (*migrate.Migrate, error) {
	src, err := iofs.New(source, dir)
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// Migrate applies every pending up migration. An already current schema is not an error.
func Migrate(source fs.FS, dir, dsn string) error {
	m, err := NewMigrator(source, dir, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
