package leaderboard

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/foxseedlab/vckeeper/internal/config"
	"github.com/foxseedlab/vckeeper/internal/discord"
	"github.com/foxseedlab/vckeeper/internal/ledger"
)

const (
	requestTimeout = 30 * time.Second
	imageFilename  = "leaderboard.png"
)

type TopReader interface {
	Top(ctx context.Context, limit int) ([]ledger.Entry, error)
}

type ProfileResolver interface {
	ResolveMemberProfile(ctx context.Context, guildID, userID string) discord.MemberProfile
}

type Service struct {
	guildID      string
	defaultLimit int
	ledger       TopReader
	profiles     ProfileResolver
	render       func([]Row) ([]byte, error)
}

func NewService(cfg *config.Config, l TopReader, profiles ProfileResolver) *Service {
	return &Service{
		guildID:      cfg.DiscordGuildID,
		defaultLimit: cfg.LeaderboardDefaultLimit,
		ledger:       l,
		profiles:     profiles,
		render:       RenderPNG,
	}
}

func SlashCommandDefinitions() []discord.SlashCommandDefinition {
	return []discord.SlashCommandDefinition{
		{
			Name:        CommandLeaderboard,
			Description: slashCommandLeaderboardDescription,
			IntegerOptions: []discord.SlashCommandOption{
				{
					Name:        optionLimit,
					Description: slashOptionLimitDescription,
					MinValue:    config.MinLeaderboardLimit,
					MaxValue:    config.MaxLeaderboardLimit,
				},
			},
		},
	}
}

func (s *Service) HandleSlashCommand(event discord.SlashCommandEvent) {
	if event.GuildID != s.guildID {
		respondEphemeral(event, messageEphemeralWrongGuild)
		return
	}
	if event.CommandName != CommandLeaderboard {
		respondEphemeral(event, messageEphemeralUnknownCommand)
		return
	}

	if event.Defer != nil {
		if err := event.Defer(); err != nil {
			slog.Error("failed to defer leaderboard interaction", "error", err, "user_id", event.UserID)
			return
		}
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while building leaderboard", "panic", r, "stack", string(debug.Stack()))
			followup(event, messageUnexpectedFailure, nil)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	content, files := s.build(ctx, s.limitFor(event))
	followup(event, content, files)
}

func (s *Service) limitFor(event discord.SlashCommandEvent) int {
	limit := s.defaultLimit
	if v, ok := event.IntOptions[optionLimit]; ok {
		limit = int(v)
	}
	return ledger.ClampLimit(limit)
}

// build returns the reply for a leaderboard request. Faults become
// user-visible messages.
func (s *Service) build(ctx context.Context, limit int) (string, []discord.FileAttachment) {
	entries, err := s.ledger.Top(ctx, limit)
	if err != nil {
		slog.Error("failed to read leaderboard", "error", err, "limit", limit)
		return messageLedgerUnavailable, nil
	}
	if len(entries) == 0 {
		return messageLeaderboardEmpty, nil
	}

	rows := make([]Row, 0, len(entries))
	for i, e := range entries {
		profile := s.profiles.ResolveMemberProfile(ctx, s.guildID, e.UserID)
		name := profile.DisplayName
		if name == "" {
			name = e.UserID
		}
		rows = append(rows, Row{
			Rank:        i + 1,
			UserID:      e.UserID,
			DisplayName: name,
			Avatar:      profile.Avatar,
			Total:       e.Total,
		})
	}

	text := buildRankingText(rows)
	img, err := s.render(rows)
	if err != nil {
		slog.Error("failed to render leaderboard image", "error", err, "rows", len(rows))
		return text + "\n" + messageRenderFailed, nil
	}
	return text, []discord.FileAttachment{{
		Filename:    imageFilename,
		ContentType: "image/png",
		Body:        img,
	}}
}

func respondEphemeral(event discord.SlashCommandEvent, content string) {
	if event.RespondEphemeral == nil {
		return
	}
	if err := event.RespondEphemeral(content); err != nil {
		slog.Error("failed to send ephemeral response", "error", err, "user_id", event.UserID)
	}
}

func followup(event discord.SlashCommandEvent, content string, files []discord.FileAttachment) {
	if event.Followup == nil {
		return
	}
	if err := event.Followup(content, files); err != nil {
		slog.Error("failed to send leaderboard followup", "error", err, "user_id", event.UserID)
	}
}
