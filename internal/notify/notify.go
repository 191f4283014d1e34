// Package notify carries operator alerts out of the process.
package notify

import (
	"context"
	"time"
)

type AlertKind string

const (
	AlertConfigError      AlertKind = "config_error"
	AlertRepeatedFailures AlertKind = "repeated_failures"
)

type Alert struct {
	Kind       AlertKind `json:"kind"`
	Message    string    `json:"message"`
	GuildID    string    `json:"guild_id"`
	ChannelID  string    `json:"channel_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Sender interface {
	Notify(ctx context.Context, alert Alert) error
}
