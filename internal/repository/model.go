package repository

import "time"

// ParticipantTime is the durable total of completed voice sessions for one
// participant.
type ParticipantTime struct {
	UserID    string
	Total     time.Duration
	UpdatedAt time.Time
}

// ElapsedBetween returns endedAt - startedAt truncated to milliseconds and
// floored at zero, so skewed or reordered events never subtract time.
func ElapsedBetween(startedAt, endedAt time.Time) time.Duration {
	elapsed := endedAt.Sub(startedAt).Truncate(time.Millisecond)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}
