package tests

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/signalix/loginbroker/internal/db"
)

// RunMigrations applies the embedded goose migrations.
func RunMigrations(database *sql.DB) error {
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// TruncateSessions empties the session table for a clean test state.
func TruncateSessions(ctx context.Context, database *sql.DB) error {
	if _, err := database.ExecContext(ctx, "TRUNCATE TABLE sessions"); err != nil {
		return fmt.Errorf("truncate sessions: %w", err)
	}
	return nil
}
