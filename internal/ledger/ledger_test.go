package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/foxseedlab/vckeeper/internal/repository"
)

type mockRepository struct {
	mu      sync.Mutex
	active  map[string]time.Time
	totals  map[string]time.Duration
	failErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		active: make(map[string]time.Time),
		totals: make(map[string]time.Duration),
	}
}

func (m *mockRepository) UpsertActiveSession(_ context.Context, userID string, startedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.active[userID] = startedAt
	return nil
}

func (m *mockRepository) CloseActiveSession(_ context.Context, userID string, endedAt time.Time) (repository.CloseSessionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return repository.CloseSessionResult{}, m.failErr
	}
	startedAt, ok := m.active[userID]
	if !ok {
		return repository.CloseSessionResult{}, nil
	}
	delete(m.active, userID)
	elapsed := repository.ElapsedBetween(startedAt, endedAt)
	m.totals[userID] += elapsed
	return repository.CloseSessionResult{Found: true, StartedAt: startedAt, Elapsed: elapsed, Total: m.totals[userID]}, nil
}

func (m *mockRepository) DiscardActiveSessions(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return 0, m.failErr
	}
	n := int64(len(m.active))
	clear(m.active)
	return n, nil
}

func (m *mockRepository) ListTopParticipants(_ context.Context, limit int) ([]repository.ParticipantTime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	out := make([]repository.ParticipantTime, 0, len(m.totals))
	for userID, total := range m.totals {
		out = append(out, repository.ParticipantTime{UserID: userID, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockRepository) Ping(_ context.Context) error { return m.failErr }
func (m *mockRepository) Close() error                 { return nil }

var t0 = time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)

func TestEndSession_FlushesElapsed(t *testing.T) {
	repo := newMockRepository()
	l := New(repo)
	ctx := context.Background()

	if err := l.BeginSession(ctx, "alice", t0); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	elapsed, err := l.EndSession(ctx, "alice", t0.Add(600000*time.Millisecond))
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if elapsed != 600000*time.Millisecond {
		t.Fatalf("expected 600000ms, got %v", elapsed)
	}
	if repo.totals["alice"] != 600000*time.Millisecond {
		t.Fatalf("unexpected total: %v", repo.totals["alice"])
	}
	if _, ok := repo.active["alice"]; ok {
		t.Fatal("expected active session to be cleared")
	}
}

func TestEndSession_WithoutBeginIsNoop(t *testing.T) {
	repo := newMockRepository()
	l := New(repo)

	elapsed, err := l.EndSession(context.Background(), "bob", t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed != 0 {
		t.Fatalf("expected zero elapsed, got %v", elapsed)
	}
	if len(repo.totals) != 0 {
		t.Fatalf("expected no totals, got %v", repo.totals)
	}
}

func TestEndSession_ClockSkewFloorsAtZero(t *testing.T) {
	repo := newMockRepository()
	l := New(repo)
	ctx := context.Background()

	_ = l.BeginSession(ctx, "carol", t0)
	elapsed, err := l.EndSession(ctx, "carol", t0.Add(-time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed != 0 || repo.totals["carol"] != 0 {
		t.Fatalf("expected zero, got elapsed=%v total=%v", elapsed, repo.totals["carol"])
	}
}

func TestBeginSession_LastJoinWins(t *testing.T) {
	repo := newMockRepository()
	l := New(repo)
	ctx := context.Background()

	_ = l.BeginSession(ctx, "dave", t0)
	_ = l.BeginSession(ctx, "dave", t0.Add(time.Minute))
	elapsed, _ := l.EndSession(ctx, "dave", t0.Add(2*time.Minute))
	if elapsed != time.Minute {
		t.Fatalf("expected elapsed measured from second join, got %v", elapsed)
	}
}

func TestBeginSession_RejectsEmptyUser(t *testing.T) {
	l := New(newMockRepository())
	if err := l.BeginSession(context.Background(), "", t0); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestSeedInProgress_StartsAtGivenTime(t *testing.T) {
	repo := newMockRepository()
	l := New(repo)
	ctx := context.Background()

	if err := l.SeedInProgress(ctx, "erin", t0); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	elapsed, _ := l.EndSession(ctx, "erin", t0.Add(90*time.Second))
	if elapsed != 90*time.Second {
		t.Fatalf("expected 90s, got %v", elapsed)
	}
}

func TestTop_OrdersAndClamps(t *testing.T) {
	repo := newMockRepository()
	for i, userID := range []string{"a", "b", "c", "d", "e"} {
		repo.totals[userID] = time.Duration(500-i*100) * time.Millisecond
	}
	l := New(repo)

	entries, err := l.Top(context.Background(), 3)
	if err != nil {
		t.Fatalf("top failed: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i := range want {
		if entries[i].UserID != want[i] {
			t.Fatalf("entry %d: expected %s, got %s", i, want[i], entries[i].UserID)
		}
	}

	entries, _ = l.Top(context.Background(), 0)
	if len(entries) != 1 {
		t.Fatalf("expected limit clamped to 1, got %d entries", len(entries))
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-3, 1},
		{0, 1},
		{1, 1},
		{10, 10},
		{20, 20},
		{21, 20},
	}
	for _, tt := range tests {
		if got := ClampLimit(tt.in); got != tt.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestStorageFaultsWrapUnavailable(t *testing.T) {
	repo := newMockRepository()
	repo.failErr = errors.New("disk full")
	l := New(repo)
	ctx := context.Background()

	if err := l.BeginSession(ctx, "frank", t0); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from begin, got %v", err)
	}
	if _, err := l.EndSession(ctx, "frank", t0); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from end, got %v", err)
	}
	if _, err := l.Top(ctx, 5); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from top, got %v", err)
	}
	if _, err := l.DiscardStaleSessions(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from discard, got %v", err)
	}
	if err := l.Ping(ctx); !errors.Is(err, repo.failErr) {
		t.Fatalf("expected wrapped cause from ping, got %v", err)
	}
}

func TestDiscardStaleSessions_LeaveDoesNotCreditDowntime(t *testing.T) {
	repo := newMockRepository()
	l := New(repo)
	ctx := context.Background()

	if err := l.BeginSession(ctx, "grace", t0); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	n, err := l.DiscardStaleSessions(ctx)
	if err != nil {
		t.Fatalf("discard failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 discarded session, got %d", n)
	}
	elapsed, err := l.EndSession(ctx, "grace", t0.Add(6*time.Hour))
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if elapsed != 0 || repo.totals["grace"] != 0 {
		t.Fatalf("expected no credit after discard, got elapsed %v total %v", elapsed, repo.totals["grace"])
	}
}
