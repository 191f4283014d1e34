package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/foxseedlab/vckeeper/internal/repository"
	_ "modernc.org/sqlite"
)

const sqliteMemory = ":memory:"

type SQLiteRepository struct {
	db *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens (creating if needed) the ledger database at location and
// applies migrations. location is a file path, a "file:" or "sqlite://" URL,
// or ":memory:".
func OpenSQLite(ctx context.Context, location string) (*SQLiteRepository, error) {
	dsn, err := sqliteDSN(location)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := RunSQLiteMigration(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func sqliteDSN(location string) (string, error) {
	loc := strings.TrimSpace(location)
	loc = strings.TrimPrefix(loc, "sqlite://")
	loc = strings.TrimPrefix(loc, "file:")
	if loc == "" {
		return "", fmt.Errorf("storage path is required")
	}
	if loc == sqliteMemory {
		return sqliteMemory, nil
	}
	cleanPath := filepath.Clean(loc)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create storage dir: %w", err)
		}
	}
	return "file:" + cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate", nil
}

func (r *SQLiteRepository) UpsertActiveSession(ctx context.Context, userID string, startedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO active_sessions (user_id, started_at_ms)
		 VALUES (?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET started_at_ms = excluded.started_at_ms`,
		userID, toMillis(startedAt))
	return err
}

func (r *SQLiteRepository) CloseActiveSession(ctx context.Context, userID string, endedAt time.Time) (repository.CloseSessionResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return repository.CloseSessionResult{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var result repository.CloseSessionResult
	var startedMS int64
	err = tx.QueryRowContext(ctx,
		`DELETE FROM active_sessions WHERE user_id = ? RETURNING started_at_ms`,
		userID).Scan(&startedMS)
	if errors.Is(err, sql.ErrNoRows) {
		return result, nil
	}
	if err != nil {
		return repository.CloseSessionResult{}, err
	}
	result.Found = true
	result.StartedAt = fromMillis(startedMS)
	result.Elapsed = repository.ElapsedBetween(result.StartedAt, endedAt)

	var totalMS int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO participant_times (user_id, total_ms, updated_at_ms)
		 VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE
		 SET total_ms = participant_times.total_ms + excluded.total_ms, updated_at_ms = excluded.updated_at_ms
		 RETURNING total_ms`,
		userID, result.Elapsed.Milliseconds(), toMillis(endedAt)).Scan(&totalMS)
	if err != nil {
		return repository.CloseSessionResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return repository.CloseSessionResult{}, err
	}
	result.Total = time.Duration(totalMS) * time.Millisecond
	return result, nil
}

func (r *SQLiteRepository) DiscardActiveSessions(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM active_sessions`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) ListTopParticipants(ctx context.Context, limit int) ([]repository.ParticipantTime, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, total_ms, updated_at_ms
		 FROM participant_times ORDER BY total_ms DESC, user_id ASC LIMIT ?`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.ParticipantTime
	for rows.Next() {
		var p repository.ParticipantTime
		var totalMS, updatedMS int64
		if err := rows.Scan(&p.UserID, &totalMS, &updatedMS); err != nil {
			return nil, err
		}
		p.Total = time.Duration(totalMS) * time.Millisecond
		p.UpdatedAt = fromMillis(updatedMS)
		list = append(list, p)
	}
	return list, rows.Err()
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
