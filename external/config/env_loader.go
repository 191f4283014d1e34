package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/vckeeper/internal/config"
	"github.com/joho/godotenv"
)

type envConfig struct {
	Env                     string `env:"ENV" envDefault:"production"`
	DiscordToken            string `env:"DISCORD_TOKEN,required"`
	DiscordGuildID          string `env:"DISCORD_GUILD_ID,required"`
	DiscordVoiceChannelID   string `env:"DISCORD_VOICE_CHANNEL_ID,required"`
	DiscordTrackBots        bool   `env:"DISCORD_TRACK_BOTS" envDefault:"false"`
	DatabaseURL             string `env:"DATABASE_URL" envDefault:"vckeeper.db"`
	HTTPAddr                string `env:"HTTP_ADDR" envDefault:":8080"`
	AlertWebhookURL         string `env:"ALERT_WEBHOOK_URL"`
	OTLPEndpoint            string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LeaderboardDefaultLimit int    `env:"LEADERBOARD_DEFAULT_LIMIT" envDefault:"10"`
}

// Load reads an optional .env file, then parses and validates the process
// environment. Variables already set in the environment win over .env.
func Load() (*internalconfig.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env file; continuing with process environment", "error", err)
	}
	return parse(env.Options{})
}

func parse(opts env.Options) (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.ParseWithOptions(&raw, opts); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                     raw.Env,
		DiscordToken:            raw.DiscordToken,
		DiscordGuildID:          raw.DiscordGuildID,
		DiscordVoiceChannelID:   raw.DiscordVoiceChannelID,
		DiscordTrackBots:        raw.DiscordTrackBots,
		DatabaseURL:             raw.DatabaseURL,
		HTTPAddr:                raw.HTTPAddr,
		AlertWebhookURL:         raw.AlertWebhookURL,
		OTLPEndpoint:            raw.OTLPEndpoint,
		LeaderboardDefaultLimit: raw.LeaderboardDefaultLimit,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
