package repository

import (
	"context"
	"time"
)

type CloseSessionResult struct {
	Found     bool
	StartedAt time.Time
	Elapsed   time.Duration
	Total     time.Duration
}

type SessionRepository interface {
	// UpsertActiveSession creates or overwrites the participant's active session.
	UpsertActiveSession(ctx context.Context, userID string, startedAt time.Time) error
	// CloseActiveSession deletes the active session and adds its elapsed time
	// to the participant total in one transaction. Found is false, and nothing
	// is written, when no active session exists.
	CloseActiveSession(ctx context.Context, userID string, endedAt time.Time) (CloseSessionResult, error)
	// DiscardActiveSessions deletes every active session without crediting
	// it and reports how many were removed.
	DiscardActiveSessions(ctx context.Context) (int64, error)
}

type ParticipantTimeRepository interface {
	ListTopParticipants(ctx context.Context, limit int) ([]ParticipantTime, error)
}

type Repository interface {
	SessionRepository
	ParticipantTimeRepository
	Ping(ctx context.Context) error
	Close() error
}
