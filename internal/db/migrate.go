package db

import (
	"database/sql"
	"embed"
	"fmt"
	"log"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationDir = "migrations"

func prepareGoose() error {
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return nil
}

// Migrate applies all pending migrations embedded in the binary.
func Migrate(database *sql.DB) error {
	if err := prepareGoose(); err != nil {
		return err
	}
	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Reset rolls back every migration and applies them again, leaving empty tables.
// Used when storage reset is requested at startup.
func Reset(database *sql.DB) error {
	if err := prepareGoose(); err != nil {
		return err
	}
	log.Println("Resetting storage: rolling back all migrations")
	if err := goose.Reset(database, migrationDir); err != nil {
		return fmt.Errorf("failed to reset migrations: %w", err)
	}
	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to re-apply migrations: %w", err)
	}
	return nil
}
