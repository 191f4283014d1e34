package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/foxseedlab/vckeeper/internal/discord"
)

type Client struct {
	session   *discordgo.Session
	token     string
	botUserID string
	done      chan struct{}
	closeOnce sync.Once

	avatarMu    sync.Mutex
	avatarCache map[string]image.Image
}

func NewClient(token string) discordpkg.Client {
	return &Client{
		token:       token,
		done:        make(chan struct{}),
		avatarCache: make(map[string]image.Image),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	_ = ctx
	s, err := discordgo.New("Bot " + c.token)
	if err != nil {
		return err
	}
	c.session = s
	s.Identify.Intents = discordgo.MakeIntent(discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates)
	s.State.TrackVoice = true
	// Handlers must observe movement events in gateway order.
	s.SyncEvents = true
	if err := s.Open(); err != nil {
		return err
	}
	userID, err := c.GetBotUserID()
	if err != nil {
		return err
	}
	c.botUserID = userID
	return nil
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func (c *Client) ResolveVoiceTarget(ctx context.Context, guildID, channelID string) (discordpkg.VoiceTarget, error) {
	_ = ctx
	if c.session == nil {
		return discordpkg.VoiceTarget{}, discordpkg.ErrSessionNotOpened
	}
	guild, err := c.resolveGuild(guildID)
	if err != nil {
		return discordpkg.VoiceTarget{}, err
	}
	channel, err := c.resolveChannel(channelID)
	if err != nil {
		return discordpkg.VoiceTarget{}, err
	}
	if channel.GuildID != "" && channel.GuildID != guild.ID {
		return discordpkg.VoiceTarget{}, fmt.Errorf("%w: channel %s belongs to guild %s", discordpkg.ErrChannelNotFound, channelID, channel.GuildID)
	}
	if !isVoiceChannelType(channel.Type) {
		return discordpkg.VoiceTarget{}, fmt.Errorf("%w: channel %s has type %d", discordpkg.ErrNotVoiceChannel, channelID, channel.Type)
	}
	return discordpkg.VoiceTarget{
		GuildID:     guild.ID,
		GuildName:   guild.Name,
		ChannelID:   channel.ID,
		ChannelName: channel.Name,
	}, nil
}

func isVoiceChannelType(t discordgo.ChannelType) bool {
	return t == discordgo.ChannelTypeGuildVoice || t == discordgo.ChannelTypeGuildStageVoice
}

func (c *Client) JoinVoice(ctx context.Context, target discordpkg.VoiceTarget, opts discordpkg.JoinOptions) (discordpkg.VoiceConnection, error) {
	_ = ctx
	if c.session == nil {
		return nil, discordpkg.ErrSessionNotOpened
	}
	conn := newVoiceConnection(c.session, target.GuildID, target.ChannelID)
	go conn.join(opts)
	return conn, nil
}

func (c *Client) RegisterVoiceStateUpdateHandler(handler func(discordpkg.VoiceStateEvent)) {
	c.session.AddHandler(func(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		event, ok := toVoiceStateEvent(vs)
		if !ok {
			return
		}
		event.UserIsBot = c.resolveUserIsBot(vs.GuildID, vs.UserID, vs.VoiceState)
		handler(event)
	})
}

func toVoiceStateEvent(vs *discordgo.VoiceStateUpdate) (discordpkg.VoiceStateEvent, bool) {
	if vs == nil || vs.VoiceState == nil {
		return discordpkg.VoiceStateEvent{}, false
	}
	beforeChannelID := ""
	if vs.BeforeUpdate != nil {
		beforeChannelID = vs.BeforeUpdate.ChannelID
	}
	afterChannelID := vs.ChannelID
	// Mute, deafen and stream toggles arrive as updates without movement.
	if beforeChannelID == afterChannelID && beforeChannelID != "" {
		return discordpkg.VoiceStateEvent{}, false
	}
	if vs.GuildID == "" || vs.UserID == "" {
		return discordpkg.VoiceStateEvent{}, false
	}
	return discordpkg.VoiceStateEvent{
		GuildID:         vs.GuildID,
		UserID:          vs.UserID,
		BeforeChannelID: beforeChannelID,
		AfterChannelID:  afterChannelID,
	}, true
}

func (c *Client) RegisterGuildAvailableHandler(handler func(guildID string)) {
	c.session.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		if g == nil || g.Guild == nil || g.ID == "" || g.Unavailable {
			return
		}
		handler(g.ID)
	})
}

func (c *Client) RegisterSlashCommandHandler(handler func(discordpkg.SlashCommandEvent)) {
	c.session.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		if ic == nil || ic.Type != discordgo.InteractionApplicationCommand {
			return
		}
		data := ic.ApplicationCommandData()
		if data.Name == "" {
			return
		}
		userID := ""
		if ic.Member != nil && ic.Member.User != nil {
			userID = ic.Member.User.ID
		}
		if userID == "" && ic.User != nil {
			userID = ic.User.ID
		}
		if userID == "" {
			return
		}
		slog.Info("slash command interaction received", "guild_id", ic.GuildID, "channel_id", ic.ChannelID, "command", data.Name, "user_id", userID)
		handler(discordpkg.SlashCommandEvent{
			GuildID:     ic.GuildID,
			ChannelID:   ic.ChannelID,
			CommandName: data.Name,
			UserID:      userID,
			IntOptions:  integerOptions(data.Options),
			RespondEphemeral: func(content string) error {
				return s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
					Type: discordgo.InteractionResponseChannelMessageWithSource,
					Data: &discordgo.InteractionResponseData{
						Content: content,
						Flags:   discordgo.MessageFlagsEphemeral,
					},
				})
			},
			Defer: func() error {
				return s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
					Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
				})
			},
			Followup: func(content string, files []discordpkg.FileAttachment) error {
				params := &discordgo.WebhookParams{Content: content}
				for _, f := range files {
					params.Files = append(params.Files, &discordgo.File{
						Name:        f.Filename,
						ContentType: f.ContentType,
						Reader:      bytes.NewReader(f.Body),
					})
				}
				_, err := s.FollowupMessageCreate(ic.Interaction, true, params)
				return err
			},
		})
	})
}

func integerOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]int64 {
	out := make(map[string]int64)
	for _, opt := range opts {
		if opt == nil || opt.Type != discordgo.ApplicationCommandOptionInteger {
			continue
		}
		out[opt.Name] = opt.IntValue()
	}
	return out
}

func (c *Client) UpsertGuildSlashCommands(guildID string, defs []discordpkg.SlashCommandDefinition) error {
	appID := c.applicationID()
	if appID == "" {
		return fmt.Errorf("discord application id is not available")
	}
	existing, err := c.session.ApplicationCommands(appID, guildID)
	if err != nil {
		return err
	}
	existingByName := make(map[string]*discordgo.ApplicationCommand, len(existing))
	for _, cmd := range existing {
		if cmd == nil || cmd.Name == "" {
			continue
		}
		existingByName[cmd.Name] = cmd
	}
	for _, def := range defs {
		if err := c.upsertGuildSlashCommand(appID, guildID, def, existingByName); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) upsertGuildSlashCommand(appID, guildID string, def discordpkg.SlashCommandDefinition, existingByName map[string]*discordgo.ApplicationCommand) error {
	if def.Name == "" {
		return nil
	}
	payload := applicationCommandPayload(def)
	cmd, ok := existingByName[def.Name]
	if !ok {
		_, err := c.session.ApplicationCommandCreate(appID, guildID, payload)
		return err
	}
	if cmd.Description == def.Description && len(cmd.Options) == len(payload.Options) {
		return nil
	}
	_, err := c.session.ApplicationCommandEdit(appID, guildID, cmd.ID, payload)
	return err
}

func applicationCommandPayload(def discordpkg.SlashCommandDefinition) *discordgo.ApplicationCommand {
	payload := &discordgo.ApplicationCommand{
		Name:        def.Name,
		Description: def.Description,
	}
	for _, opt := range def.IntegerOptions {
		minValue := float64(opt.MinValue)
		payload.Options = append(payload.Options, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        opt.Name,
			Description: opt.Description,
			Required:    opt.Required,
			MinValue:    &minValue,
			MaxValue:    float64(opt.MaxValue),
		})
	}
	return payload
}

func isRESTNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Response == nil {
		return false
	}
	return restErr.Response.StatusCode == http.StatusNotFound
}

func (c *Client) ListVoiceParticipants(guildID string) ([]discordpkg.VoiceParticipant, error) {
	if c.session == nil || c.session.State == nil {
		return nil, discordpkg.ErrSessionNotOpened
	}
	guild, err := c.session.State.Guild(guildID)
	if err != nil || guild == nil {
		return nil, fmt.Errorf("%w: %s is not cached yet", discordpkg.ErrGuildNotFound, guildID)
	}
	participants := make([]discordpkg.VoiceParticipant, 0, len(guild.VoiceStates))
	seen := make(map[string]struct{})
	for _, state := range guild.VoiceStates {
		if state == nil || state.ChannelID == "" || state.UserID == "" {
			continue
		}
		if _, exists := seen[state.UserID]; exists {
			continue
		}
		seen[state.UserID] = struct{}{}
		participants = append(participants, discordpkg.VoiceParticipant{
			UserID:    state.UserID,
			ChannelID: state.ChannelID,
			IsBot:     c.resolveUserIsBot(guildID, state.UserID, state),
		})
	}
	return participants, nil
}

func (c *Client) GetBotUserID() (string, error) {
	if c.botUserID != "" {
		return c.botUserID, nil
	}
	if c.session == nil {
		return "", discordpkg.ErrSessionNotOpened
	}
	if c.session.State != nil && c.session.State.User != nil && c.session.State.User.ID != "" {
		c.botUserID = c.session.State.User.ID
		return c.botUserID, nil
	}
	u, err := c.session.User("@me")
	if err != nil {
		return "", err
	}
	c.botUserID = u.ID
	return c.botUserID, nil
}

func (c *Client) ResolveMemberProfile(ctx context.Context, guildID, userID string) discordpkg.MemberProfile {
	_ = ctx
	profile := discordpkg.MemberProfile{UserID: userID, DisplayName: userID}
	if c.session == nil {
		return profile
	}

	var user *discordgo.User
	member := c.resolveGuildMember(guildID, userID)
	if member != nil {
		if member.Nick != "" {
			profile.DisplayName = member.Nick
		}
		user = member.User
	}
	if user == nil {
		u, err := c.session.User(userID)
		if err == nil {
			user = u
		}
	}
	if user != nil {
		if profile.DisplayName == userID {
			profile.DisplayName = preferredDiscordName(user.GlobalName, user.Username, userID)
		}
		profile.IsBot = user.Bot
		profile.Avatar = c.avatar(user)
	}
	return profile
}

func (c *Client) avatar(u *discordgo.User) image.Image {
	key := u.ID + ":" + u.Avatar
	c.avatarMu.Lock()
	img, ok := c.avatarCache[key]
	c.avatarMu.Unlock()
	if ok {
		return img
	}
	img, err := c.session.UserAvatarDecode(u)
	if err != nil {
		slog.Debug("failed to fetch avatar; rendering without it", "error", err, "user_id", u.ID)
		return nil
	}
	c.avatarMu.Lock()
	c.avatarCache[key] = img
	c.avatarMu.Unlock()
	return img
}

func (c *Client) resolveUserIsBot(guildID, userID string, state *discordgo.VoiceState) bool {
	if isBot, ok := botFlagFromVoiceState(state); ok {
		return isBot
	}
	if isBot, ok := c.botFlagFromSessionState(guildID, userID); ok {
		return isBot
	}
	return c.botFlagFromUserAPI(userID)
}

func botFlagFromVoiceState(state *discordgo.VoiceState) (bool, bool) {
	if state != nil && state.Member != nil && state.Member.User != nil {
		return state.Member.User.Bot, true
	}
	return false, false
}

func (c *Client) botFlagFromSessionState(guildID, userID string) (bool, bool) {
	if c.session == nil || c.session.State == nil {
		return false, false
	}
	if c.session.State.User != nil && c.session.State.User.ID == userID {
		return true, true
	}
	member, err := c.session.State.Member(guildID, userID)
	if err == nil && member != nil && member.User != nil {
		return member.User.Bot, true
	}
	return false, false
}

func (c *Client) botFlagFromUserAPI(userID string) bool {
	u, err := c.session.User(userID)
	if err != nil {
		return false
	}
	return u.Bot
}

func (c *Client) resolveGuild(guildID string) (*discordgo.Guild, error) {
	if c.session.State != nil {
		guild, err := c.session.State.Guild(guildID)
		if err == nil && guild != nil {
			return guild, nil
		}
	}
	guild, err := c.session.Guild(guildID)
	if err != nil {
		if isRESTNotFound(err) {
			return nil, fmt.Errorf("%w: %s", discordpkg.ErrGuildNotFound, guildID)
		}
		return nil, fmt.Errorf("fetch guild %s: %w", guildID, err)
	}
	if guild == nil {
		return nil, fmt.Errorf("%w: %s", discordpkg.ErrGuildNotFound, guildID)
	}
	return guild, nil
}

func (c *Client) resolveChannel(channelID string) (*discordgo.Channel, error) {
	if c.session.State != nil {
		channel, err := c.session.State.Channel(channelID)
		if err == nil && channel != nil {
			return channel, nil
		}
	}
	channel, err := c.session.Channel(channelID)
	if err != nil {
		if isRESTNotFound(err) {
			return nil, fmt.Errorf("%w: %s", discordpkg.ErrChannelNotFound, channelID)
		}
		return nil, fmt.Errorf("fetch channel %s: %w", channelID, err)
	}
	if channel == nil {
		return nil, fmt.Errorf("%w: %s", discordpkg.ErrChannelNotFound, channelID)
	}
	return channel, nil
}

func (c *Client) resolveGuildMember(guildID, userID string) *discordgo.Member {
	if c.session.State != nil {
		member, err := c.session.State.Member(guildID, userID)
		if err == nil && member != nil {
			return member
		}
	}
	member, err := c.session.GuildMember(guildID, userID)
	if err != nil {
		return nil
	}
	return member
}

func preferredDiscordName(globalName, username, fallback string) string {
	if globalName != "" {
		return globalName
	}
	if username != "" {
		return username
	}
	return fallback
}

func (c *Client) applicationID() string {
	if c.session == nil || c.session.State == nil {
		return ""
	}
	if c.session.State.Application != nil && c.session.State.Application.ID != "" {
		return c.session.State.Application.ID
	}
	if c.session.State.User != nil {
		return c.session.State.User.ID
	}
	return ""
}

// Run blocks until Close is called.
func (c *Client) Run() error {
	<-c.done
	return nil
}
