package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is idempotent; Migrate may run on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		verified   BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		tx_ref       TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		amount       TEXT NOT NULL,
		currency     TEXT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'pending',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS payments_status_created_at_idx ON payments (status, created_at)`,
	`CREATE INDEX IF NOT EXISTS payments_user_id_idx ON payments (user_id)`,
}

func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
