package discord

import (
	"context"
	"errors"
	"image"
)

var (
	ErrGuildNotFound    = errors.New("discord guild not found")
	ErrChannelNotFound  = errors.New("discord channel not found")
	ErrNotVoiceChannel  = errors.New("discord channel is not a voice channel")
	ErrSessionNotOpened = errors.New("discord session is not initialized")
)

type SlashCommandOption struct {
	Name        string
	Description string
	Required    bool
	MinValue    int
	MaxValue    int
}

type SlashCommandDefinition struct {
	Name           string
	Description    string
	IntegerOptions []SlashCommandOption
}

type FileAttachment struct {
	Filename    string
	ContentType string
	Body        []byte
}

type SlashCommandEvent struct {
	GuildID     string
	ChannelID   string
	CommandName string
	UserID      string
	IntOptions  map[string]int64

	RespondEphemeral func(content string) error
	// Defer acknowledges the interaction so a follow-up can be sent later.
	Defer    func() error
	Followup func(content string, files []FileAttachment) error
}

// VoiceStateEvent describes one participant movement. An empty channel id
// means "not in any voice channel".
type VoiceStateEvent struct {
	GuildID         string
	UserID          string
	UserIsBot       bool
	BeforeChannelID string
	AfterChannelID  string
}

type VoiceParticipant struct {
	UserID    string
	ChannelID string
	IsBot     bool
}

type MemberProfile struct {
	UserID      string
	DisplayName string
	IsBot       bool
	Avatar      image.Image
}

type VoiceTarget struct {
	GuildID     string
	GuildName   string
	ChannelID   string
	ChannelName string
}

type JoinOptions struct {
	SelfMute bool
	SelfDeaf bool
}

type VoiceTransport interface {
	ResolveVoiceTarget(ctx context.Context, guildID, channelID string) (VoiceTarget, error)
	// JoinVoice starts joining target and returns the new handle right away.
	// Readiness is reported through the handle's status changes.
	JoinVoice(ctx context.Context, target VoiceTarget, opts JoinOptions) (VoiceConnection, error)
}

type Client interface {
	VoiceTransport
	Connect(ctx context.Context) error
	Close() error
	RegisterVoiceStateUpdateHandler(handler func(VoiceStateEvent))
	RegisterGuildAvailableHandler(handler func(guildID string))
	RegisterSlashCommandHandler(handler func(SlashCommandEvent))
	UpsertGuildSlashCommands(guildID string, defs []SlashCommandDefinition) error
	ListVoiceParticipants(guildID string) ([]VoiceParticipant, error)
	ResolveMemberProfile(ctx context.Context, guildID, userID string) MemberProfile
	GetBotUserID() (string, error)
	Run() error
}
