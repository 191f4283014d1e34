package repository

import (
	"context"
	"errors"
	"time"

	"github.com/foxseedlab/vckeeper/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) UpsertActiveSession(ctx context.Context, userID string, startedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO active_sessions (user_id, started_at)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET started_at = EXCLUDED.started_at`,
		userID, startedAt)
	return err
}

func (r *PostgresRepository) CloseActiveSession(ctx context.Context, userID string, endedAt time.Time) (repository.CloseSessionResult, error) {
	var result repository.CloseSessionResult
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`DELETE FROM active_sessions WHERE user_id = $1 RETURNING started_at`,
			userID).Scan(&result.StartedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		result.Found = true
		result.Elapsed = repository.ElapsedBetween(result.StartedAt, endedAt)

		var totalMS int64
		err = tx.QueryRow(ctx,
			`INSERT INTO participant_times (user_id, total_ms, updated_at)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (user_id) DO UPDATE
			 SET total_ms = participant_times.total_ms + EXCLUDED.total_ms, updated_at = EXCLUDED.updated_at
			 RETURNING total_ms`,
			userID, result.Elapsed.Milliseconds(), endedAt).Scan(&totalMS)
		if err != nil {
			return err
		}
		result.Total = time.Duration(totalMS) * time.Millisecond
		return nil
	})
	if err != nil {
		return repository.CloseSessionResult{}, err
	}
	return result, nil
}

func (r *PostgresRepository) DiscardActiveSessions(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM active_sessions`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) ListTopParticipants(ctx context.Context, limit int) ([]repository.ParticipantTime, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, total_ms, updated_at
		 FROM participant_times ORDER BY total_ms DESC, user_id ASC LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.ParticipantTime
	for rows.Next() {
		var p repository.ParticipantTime
		var totalMS int64
		if err := rows.Scan(&p.UserID, &totalMS, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Total = time.Duration(totalMS) * time.Millisecond
		list = append(list, p)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
