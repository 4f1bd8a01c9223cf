package store

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every pending goose migration embedded in this package.
// Grounded on the teacher's migrate cobra subcommand; simplified to a single
// versioned-SQL strategy since this project carries no golang-migrate
// dependency (see DESIGN.md's dropped-dependencies section).
func Migrate(sqlDB *sql.DB, dialect string) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("store: set migration dialect: %w", err)
	}
	if err := goose.Up(sqlDB, "migrations"); err != nil {
		return fmt.Errorf("store: run migrations: %w", err)
	}
	return nil
}

// MigrateStatus reports the current migration version without applying any
// pending migrations.
func MigrateStatus(sqlDB *sql.DB, dialect string) (int64, error) {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect(dialect); err != nil {
		return 0, fmt.Errorf("store: set migration dialect: %w", err)
	}
	version, err := goose.GetDBVersion(sqlDB)
	if err != nil {
		return 0, fmt.Errorf("store: get migration version: %w", err)
	}
	return version, nil
}
