package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openMemory(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := OpenSQLite(context.Background(), sqliteMemory)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	return repo
}

var t0 = time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)

func activeStartedAt(t *testing.T, repo *SQLiteRepository, userID string) (time.Time, bool) {
	t.Helper()
	var ms int64
	err := repo.db.QueryRow(`SELECT started_at_ms FROM active_sessions WHERE user_id = ?`, userID).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false
	}
	if err != nil {
		t.Fatalf("failed to read active session: %v", err)
	}
	return fromMillis(ms), true
}

func participantTotal(t *testing.T, repo *SQLiteRepository, userID string) (time.Duration, bool) {
	t.Helper()
	var ms int64
	err := repo.db.QueryRow(`SELECT total_ms FROM participant_times WHERE user_id = ?`, userID).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false
	}
	if err != nil {
		t.Fatalf("failed to read participant total: %v", err)
	}
	return time.Duration(ms) * time.Millisecond, true
}

func countActive(t *testing.T, repo *SQLiteRepository) int {
	t.Helper()
	var n int
	if err := repo.db.QueryRow(`SELECT COUNT(*) FROM active_sessions`).Scan(&n); err != nil {
		t.Fatalf("failed to count active sessions: %v", err)
	}
	return n
}

func TestCloseActiveSession_NoActiveSessionIsNoop(t *testing.T) {
	repo := openMemory(t)
	ctx := context.Background()

	res, err := repo.CloseActiveSession(ctx, "user-1", t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Found || res.Elapsed != 0 {
		t.Fatalf("expected not-found zero result, got %+v", res)
	}
	if total, ok := participantTotal(t, repo, "user-1"); ok {
		t.Fatalf("expected no participant record, got %v", total)
	}
}

func TestCloseActiveSession_AccumulatesAndDeletes(t *testing.T) {
	repo := openMemory(t)
	ctx := context.Background()

	if err := repo.UpsertActiveSession(ctx, "user-1", t0); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	res, err := repo.CloseActiveSession(ctx, "user-1", t0.Add(600000*time.Millisecond))
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !res.Found || res.Elapsed != 600000*time.Millisecond || res.Total != 600000*time.Millisecond {
		t.Fatalf("unexpected close result: %+v", res)
	}
	if startedAt, ok := activeStartedAt(t, repo, "user-1"); ok {
		t.Fatalf("expected active session to be deleted, got start %v", startedAt)
	}

	if err := repo.UpsertActiveSession(ctx, "user-1", t0.Add(time.Hour)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	res, err = repo.CloseActiveSession(ctx, "user-1", t0.Add(time.Hour+30*time.Second))
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if res.Total != 630*time.Second {
		t.Fatalf("expected running total 630s, got %v", res.Total)
	}
}

func TestCloseActiveSession_ClockSkewFloorsAtZero(t *testing.T) {
	repo := openMemory(t)
	ctx := context.Background()

	if err := repo.UpsertActiveSession(ctx, "user-1", t0); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	res, err := repo.CloseActiveSession(ctx, "user-1", t0.Add(-5*time.Second))
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !res.Found || res.Elapsed != 0 || res.Total != 0 {
		t.Fatalf("expected zero elapsed, got %+v", res)
	}
	if _, ok := participantTotal(t, repo, "user-1"); !ok {
		t.Fatal("expected record after a completed session")
	}
}

func TestCloseActiveSession_RollsBackWhenAccumulateFails(t *testing.T) {
	repo := openMemory(t)
	ctx := context.Background()

	if err := repo.UpsertActiveSession(ctx, "user-1", t0); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if _, err := repo.db.ExecContext(ctx, `DROP TABLE participant_times`); err != nil {
		t.Fatalf("drop failed: %v", err)
	}

	res, err := repo.CloseActiveSession(ctx, "user-1", t0.Add(time.Minute))
	if err == nil {
		t.Fatalf("expected accumulate failure, got %+v", res)
	}
	startedAt, ok := activeStartedAt(t, repo, "user-1")
	if !ok {
		t.Fatal("expected active session to survive a failed close")
	}
	if !startedAt.Equal(t0) {
		t.Fatalf("expected original start %v, got %v", t0, startedAt)
	}
}

func TestDiscardActiveSessions_DropsWithoutCrediting(t *testing.T) {
	repo := openMemory(t)
	ctx := context.Background()

	for _, userID := range []string{"user-1", "user-2"} {
		if err := repo.UpsertActiveSession(ctx, userID, t0); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}
	n, err := repo.DiscardActiveSessions(ctx)
	if err != nil {
		t.Fatalf("discard failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 discarded sessions, got %d", n)
	}
	if got := countActive(t, repo); got != 0 {
		t.Fatalf("expected no active sessions, got %d", got)
	}
	res, err := repo.CloseActiveSession(ctx, "user-1", t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if res.Found {
		t.Fatalf("expected discarded session to stay closed, got %+v", res)
	}
	if _, ok := participantTotal(t, repo, "user-1"); ok {
		t.Fatal("discarded session must not be credited")
	}
}

func TestUpsertActiveSession_LastJoinWins(t *testing.T) {
	repo := openMemory(t)
	ctx := context.Background()

	if err := repo.UpsertActiveSession(ctx, "user-1", t0); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := repo.UpsertActiveSession(ctx, "user-1", t0.Add(time.Minute)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if n := countActive(t, repo); n != 1 {
		t.Fatalf("expected exactly one active session, got %d", n)
	}
	startedAt, ok := activeStartedAt(t, repo, "user-1")
	if !ok {
		t.Fatal("expected active session")
	}
	if !startedAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("expected started_at from second join, got %v", startedAt)
	}
}

func TestListTopParticipants_OrderedAndTruncated(t *testing.T) {
	repo := openMemory(t)
	ctx := context.Background()

	durations := map[string]time.Duration{
		"user-a": 500 * time.Millisecond,
		"user-b": 400 * time.Millisecond,
		"user-c": 300 * time.Millisecond,
		"user-d": 200 * time.Millisecond,
		"user-e": 100 * time.Millisecond,
	}
	for userID, d := range durations {
		if err := repo.UpsertActiveSession(ctx, userID, t0); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		if _, err := repo.CloseActiveSession(ctx, userID, t0.Add(d)); err != nil {
			t.Fatalf("close failed: %v", err)
		}
	}

	top, err := repo.ListTopParticipants(ctx, 3)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	want := []string{"user-a", "user-b", "user-c"}
	if len(top) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(top))
	}
	for i, userID := range want {
		if top[i].UserID != userID {
			t.Fatalf("row %d: expected %s, got %s", i, userID, top[i].UserID)
		}
	}
	if top[0].Total != 500*time.Millisecond {
		t.Fatalf("unexpected top total: %v", top[0].Total)
	}
}

func TestOpenSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")

	repo, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := repo.UpsertActiveSession(ctx, "user-1", t0); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if _, err := repo.CloseActiveSession(ctx, "user-1", t0.Add(42*time.Second)); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("close db failed: %v", err)
	}

	reopened, err := OpenSQLite(ctx, "file:"+path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() {
		_ = reopened.Close()
	}()
	total, ok := participantTotal(t, reopened, "user-1")
	if !ok {
		t.Fatal("expected persisted record")
	}
	if total != 42*time.Second {
		t.Fatalf("expected 42s total, got %v", total)
	}
}

func TestSQLiteDSN_RejectsEmpty(t *testing.T) {
	if _, err := sqliteDSN("  "); err == nil {
		t.Fatal("expected error for empty location")
	}
	if _, err := sqliteDSN("sqlite://"); err == nil {
		t.Fatal("expected error for bare scheme")
	}
}
