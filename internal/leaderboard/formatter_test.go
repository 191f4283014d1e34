package leaderboard

import (
	"testing"
	"time"
)

func TestFormatElapsedHMS(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00"},
		{-time.Second, "00:00:00"},
		{999 * time.Millisecond, "00:00:00"},
		{61 * time.Second, "00:01:01"},
		{100*time.Hour + 59*time.Second, "100:00:59"},
	}
	for _, tt := range tests {
		if got := formatElapsedHMS(tt.in); got != tt.want {
			t.Errorf("formatElapsedHMS(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("a_b*c`d"); got != "a\\_b\\*c\\`d" {
		t.Fatalf("unexpected escape: %q", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("short", 10); got != "short" {
		t.Fatalf("unexpected: %q", got)
	}
	if got := truncateRunes("abcdefghijkl", 8); got != "abcde..." {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestRenderPNG_EmptyRows(t *testing.T) {
	b, err := RenderPNG(nil)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if len(b) == 0 {
		t.Fatal("expected png bytes")
	}
}

func TestBarFill(t *testing.T) {
	const year = 365 * 24 * time.Hour
	cases := []struct {
		name           string
		total, longest time.Duration
		want           int
	}{
		{"longest fills the track", 2 * year, 2 * year, 400},
		{"half of a multi-year total", year, 2 * year, 200},
		{"short totals", 30 * time.Minute, time.Hour, 200},
		{"zero total", 0, time.Hour, 0},
		{"empty board", 0, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := barFill(400, tc.total, tc.longest); got != tc.want {
				t.Fatalf("barFill = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRenderPNG_MultiYearTotals(t *testing.T) {
	rows := []Row{
		{Rank: 1, UserID: "a", DisplayName: "alice", Total: 3 * 365 * 24 * time.Hour},
		{Rank: 2, UserID: "b", DisplayName: "bob", Total: 2 * 365 * 24 * time.Hour},
	}
	b, err := RenderPNG(rows)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if len(b) == 0 {
		t.Fatal("expected png bytes")
	}
}
