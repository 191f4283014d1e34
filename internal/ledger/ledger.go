// Package ledger keeps the durable record of how long each participant has
// spent in voice channels.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/vckeeper/internal/config"
	"github.com/foxseedlab/vckeeper/internal/repository"
	"github.com/foxseedlab/vckeeper/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// ErrUnavailable wraps every storage-layer fault surfaced by the ledger.
var ErrUnavailable = errors.New("ledger unavailable")

var errEmptyParticipant = errors.New("participant id is required")

type Entry struct {
	UserID string
	Total  time.Duration
}

type Ledger struct {
	repo repository.Repository
}

func New(repo repository.Repository) *Ledger {
	return &Ledger{repo: repo}
}

// BeginSession opens (or overwrites) the participant's active session.
// A second call without an intervening EndSession replaces started_at.
func (l *Ledger) BeginSession(ctx context.Context, userID string, at time.Time) error {
	return l.begin(ctx, "begin_session", userID, at)
}

// SeedInProgress records a participant found already present at startup.
// The true join time is unknown, so the session starts at at.
func (l *Ledger) SeedInProgress(ctx context.Context, userID string, at time.Time) error {
	return l.begin(ctx, "seed_in_progress", userID, at)
}

func (l *Ledger) begin(ctx context.Context, op, userID string, at time.Time) (err error) {
	if userID == "" {
		return errEmptyParticipant
	}
	ctx, span := telemetry.StartSpan(ctx, "ledger."+op, attribute.String("user_id", userID))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := l.repo.UpsertActiveSession(ctx, userID, at); err != nil {
		return unavailable(op, userID, err)
	}
	telemetry.SessionsBegun.Inc()
	return nil
}

// EndSession closes the participant's active session and returns the elapsed
// time flushed into their total. Without an active session it returns zero
// and writes nothing.
func (l *Ledger) EndSession(ctx context.Context, userID string, at time.Time) (elapsed time.Duration, err error) {
	if userID == "" {
		return 0, errEmptyParticipant
	}
	ctx, span := telemetry.StartSpan(ctx, "ledger.end_session", attribute.String("user_id", userID))
	defer func() { telemetry.EndSpan(span, err) }()

	res, err := l.repo.CloseActiveSession(ctx, userID, at)
	if err != nil {
		return 0, unavailable("end_session", userID, err)
	}
	if !res.Found {
		slog.Debug("end session without active session; ignoring", "user_id", userID)
		return 0, nil
	}
	telemetry.SessionsEnded.Inc()
	telemetry.AccumulatedSeconds.Add(res.Elapsed.Seconds())
	span.SetAttributes(attribute.Int64("elapsed_ms", res.Elapsed.Milliseconds()))
	return res.Elapsed, nil
}

// DiscardStaleSessions drops active sessions left behind by a previous run.
// Their participants were either gone or unobserved while the process was
// down, so none of that time is credited; anyone still present is reopened
// by SeedInProgress.
func (l *Ledger) DiscardStaleSessions(ctx context.Context) (n int64, err error) {
	ctx, span := telemetry.StartSpan(ctx, "ledger.discard_stale_sessions")
	defer func() { telemetry.EndSpan(span, err) }()

	n, err = l.repo.DiscardActiveSessions(ctx)
	if err != nil {
		return 0, unavailable("discard_stale_sessions", "", err)
	}
	span.SetAttributes(attribute.Int64("discarded", n))
	return n, nil
}

// Top returns up to limit participants ordered by total descending. limit is
// clamped to the leaderboard range.
func (l *Ledger) Top(ctx context.Context, limit int) (entries []Entry, err error) {
	limit = ClampLimit(limit)
	ctx, span := telemetry.StartSpan(ctx, "ledger.top", attribute.Int("limit", limit))
	defer func() { telemetry.EndSpan(span, err) }()

	rows, err := l.repo.ListTopParticipants(ctx, limit)
	if err != nil {
		return nil, unavailable("top", "", err)
	}
	entries = make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, Entry{UserID: r.UserID, Total: r.Total})
	}
	return entries, nil
}

func ClampLimit(limit int) int {
	if limit < config.MinLeaderboardLimit {
		return config.MinLeaderboardLimit
	}
	if limit > config.MaxLeaderboardLimit {
		return config.MaxLeaderboardLimit
	}
	return limit
}

func (l *Ledger) Ping(ctx context.Context) error {
	if err := l.repo.Ping(ctx); err != nil {
		return unavailable("ping", "", err)
	}
	return nil
}

func unavailable(op, userID string, err error) error {
	telemetry.LedgerErrors.WithLabelValues(op).Inc()
	if userID == "" {
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
	}
	return fmt.Errorf("%w: %s for %s: %w", ErrUnavailable, op, userID, err)
}
