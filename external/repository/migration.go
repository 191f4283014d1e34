package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var postgresMigrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS participant_times (
		user_id TEXT PRIMARY KEY,
		total_ms BIGINT NOT NULL DEFAULT 0 CHECK (total_ms >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_participant_times_total ON participant_times (total_ms DESC, user_id ASC)`,
	`CREATE TABLE IF NOT EXISTS active_sessions (
		user_id TEXT PRIMARY KEY,
		started_at TIMESTAMPTZ NOT NULL
	)`,
}

var sqliteMigrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS participant_times (
		user_id TEXT PRIMARY KEY,
		total_ms INTEGER NOT NULL DEFAULT 0 CHECK (total_ms >= 0),
		updated_at_ms INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_participant_times_total ON participant_times (total_ms DESC, user_id ASC)`,
	`CREATE TABLE IF NOT EXISTS active_sessions (
		user_id TEXT PRIMARY KEY,
		started_at_ms INTEGER NOT NULL
	)`,
}

func RunPostgresMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range postgresMigrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func RunSQLiteMigration(ctx context.Context, db *sql.DB) error {
	for _, s := range sqliteMigrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
