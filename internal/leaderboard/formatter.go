package leaderboard

import (
	"fmt"
	"image"
	"strings"
	"time"
)

// Row is one ranked participant ready for display.
type Row struct {
	Rank        int
	UserID      string
	DisplayName string
	Avatar      image.Image
	Total       time.Duration
}

func formatElapsedHMS(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func buildRankingText(rows []Row) string {
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, leaderboardTitle(len(rows)))
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf(messageRankingLineFormat, rankMarker(r.Rank), escapeMarkdown(r.DisplayName), formatElapsedHMS(r.Total)))
	}
	return strings.Join(lines, "\n")
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"~", `\~`,
	"`", "\\`",
	"|", `\|`,
	">", `\>`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
