package config

import (
	"fmt"
	"strings"
)

const (
	MinLeaderboardLimit = 1
	MaxLeaderboardLimit = 20
)

type Config struct {
	Env                     string
	DiscordToken            string
	DiscordGuildID          string
	DiscordVoiceChannelID   string
	DiscordTrackBots        bool
	DatabaseURL             string
	HTTPAddr                string
	AlertWebhookURL         string
	OTLPEndpoint            string
	LeaderboardDefaultLimit int
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if strings.TrimSpace(req.value) == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.LeaderboardDefaultLimit < MinLeaderboardLimit || c.LeaderboardDefaultLimit > MaxLeaderboardLimit {
		return fmt.Errorf("LEADERBOARD_DEFAULT_LIMIT must be between %d and %d, got %d", MinLeaderboardLimit, MaxLeaderboardLimit, c.LeaderboardDefaultLimit)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DISCORD_TOKEN", value: c.DiscordToken},
		{name: "DISCORD_GUILD_ID", value: c.DiscordGuildID},
		{name: "DISCORD_VOICE_CHANNEL_ID", value: c.DiscordVoiceChannelID},
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "HTTP_ADDR", value: c.HTTPAddr},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// UsesPostgres reports whether DatabaseURL points at a Postgres server rather
// than a SQLite file.
func (c *Config) UsesPostgres() bool {
	u := strings.ToLower(strings.TrimSpace(c.DatabaseURL))
	return strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://")
}
