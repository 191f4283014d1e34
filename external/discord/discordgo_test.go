package discord

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/foxseedlab/vckeeper/internal/discord"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestSession(t *testing.T, rt roundTripFunc) *discordgo.Session {
	t.Helper()
	s, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if rt != nil {
		s.Client = &http.Client{Transport: rt}
	}
	return s
}

func noREST(t *testing.T) roundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected REST call: %s %s", req.Method, req.URL.String())
		return nil, nil
	}
}

func notFound() roundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Status:     "404 Not Found",
			Body:       io.NopCloser(strings.NewReader(`{"message":"Unknown Channel","code":10003}`)),
			Header:     make(http.Header),
		}, nil
	}
}

func addGuild(t *testing.T, s *discordgo.Session, guild *discordgo.Guild) {
	t.Helper()
	if err := s.State.GuildAdd(guild); err != nil {
		t.Fatalf("failed to add guild to state: %v", err)
	}
}

func TestResolveVoiceTarget_UsesStateCacheFirst(t *testing.T) {
	s := newTestSession(t, noREST(t))
	addGuild(t, s, &discordgo.Guild{
		ID:   "guild-1",
		Name: "Kemo Server",
		Channels: []*discordgo.Channel{
			{ID: "vc-1", GuildID: "guild-1", Name: "General VC", Type: discordgo.ChannelTypeGuildVoice},
		},
	})

	c := &Client{session: s}
	target, err := c.ResolveVoiceTarget(context.Background(), "guild-1", "vc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.GuildName != "Kemo Server" || target.ChannelName != "General VC" {
		t.Fatalf("unexpected target: %+v", target)
	}
}

func TestResolveVoiceTarget_RejectsTextChannel(t *testing.T) {
	s := newTestSession(t, noREST(t))
	addGuild(t, s, &discordgo.Guild{
		ID: "guild-1",
		Channels: []*discordgo.Channel{
			{ID: "text-1", GuildID: "guild-1", Type: discordgo.ChannelTypeGuildText},
		},
	})

	c := &Client{session: s}
	_, err := c.ResolveVoiceTarget(context.Background(), "guild-1", "text-1")
	if !errors.Is(err, discordpkg.ErrNotVoiceChannel) {
		t.Fatalf("expected ErrNotVoiceChannel, got %v", err)
	}
}

func TestResolveVoiceTarget_ChannelFromOtherGuild(t *testing.T) {
	s := newTestSession(t, noREST(t))
	addGuild(t, s, &discordgo.Guild{ID: "guild-1"})
	addGuild(t, s, &discordgo.Guild{
		ID: "guild-2",
		Channels: []*discordgo.Channel{
			{ID: "vc-9", GuildID: "guild-2", Type: discordgo.ChannelTypeGuildVoice},
		},
	})

	c := &Client{session: s}
	_, err := c.ResolveVoiceTarget(context.Background(), "guild-1", "vc-9")
	if !errors.Is(err, discordpkg.ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestResolveVoiceTarget_UnknownChannelViaREST(t *testing.T) {
	s := newTestSession(t, notFound())
	addGuild(t, s, &discordgo.Guild{ID: "guild-1"})

	c := &Client{session: s}
	_, err := c.ResolveVoiceTarget(context.Background(), "guild-1", "vc-missing")
	if !errors.Is(err, discordpkg.ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestResolveVoiceTarget_UnknownGuildViaREST(t *testing.T) {
	s := newTestSession(t, notFound())

	c := &Client{session: s}
	_, err := c.ResolveVoiceTarget(context.Background(), "guild-missing", "vc-1")
	if !errors.Is(err, discordpkg.ErrGuildNotFound) {
		t.Fatalf("expected ErrGuildNotFound, got %v", err)
	}
}

func TestResolveVoiceTarget_TransientRESTFailureIsNotConfigError(t *testing.T) {
	s := newTestSession(t, func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection reset by peer")
	})

	c := &Client{session: s}
	_, err := c.ResolveVoiceTarget(context.Background(), "guild-1", "vc-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, discordpkg.ErrGuildNotFound) || errors.Is(err, discordpkg.ErrChannelNotFound) {
		t.Fatalf("transient failure must not look like a configuration error: %v", err)
	}
}

func TestListVoiceParticipants_AcrossChannels(t *testing.T) {
	s := newTestSession(t, noREST(t))
	addGuild(t, s, &discordgo.Guild{
		ID: "guild-1",
		VoiceStates: []*discordgo.VoiceState{
			{GuildID: "guild-1", ChannelID: "vc-1", UserID: "user-1", Member: &discordgo.Member{User: &discordgo.User{ID: "user-1"}}},
			{GuildID: "guild-1", ChannelID: "vc-2", UserID: "user-2", Member: &discordgo.Member{User: &discordgo.User{ID: "user-2"}}},
			{GuildID: "guild-1", ChannelID: "vc-2", UserID: "bot-1", Member: &discordgo.Member{User: &discordgo.User{ID: "bot-1", Bot: true}}},
		},
	})

	c := &Client{session: s}
	participants, err := c.ListVoiceParticipants("guild-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(participants) != 3 {
		t.Fatalf("expected 3 participants, got %d", len(participants))
	}
	byID := make(map[string]discordpkg.VoiceParticipant)
	for _, p := range participants {
		byID[p.UserID] = p
	}
	if byID["user-2"].ChannelID != "vc-2" {
		t.Fatalf("unexpected channel for user-2: %+v", byID["user-2"])
	}
	if !byID["bot-1"].IsBot || byID["user-1"].IsBot {
		t.Fatalf("unexpected bot flags: %+v", byID)
	}
}

func TestListVoiceParticipants_ColdCache(t *testing.T) {
	s := newTestSession(t, noREST(t))
	c := &Client{session: s}
	if _, err := c.ListVoiceParticipants("guild-1"); !errors.Is(err, discordpkg.ErrGuildNotFound) {
		t.Fatalf("expected ErrGuildNotFound, got %v", err)
	}
}

func TestToVoiceStateEvent(t *testing.T) {
	cases := []struct {
		name   string
		update *discordgo.VoiceStateUpdate
		ok     bool
		before string
		after  string
	}{
		{
			name:   "join",
			update: &discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{GuildID: "g", UserID: "u", ChannelID: "vc-1"}},
			ok:     true,
			after:  "vc-1",
		},
		{
			name: "move",
			update: &discordgo.VoiceStateUpdate{
				VoiceState:   &discordgo.VoiceState{GuildID: "g", UserID: "u", ChannelID: "vc-2"},
				BeforeUpdate: &discordgo.VoiceState{ChannelID: "vc-1"},
			},
			ok:     true,
			before: "vc-1",
			after:  "vc-2",
		},
		{
			name: "mute toggle",
			update: &discordgo.VoiceStateUpdate{
				VoiceState:   &discordgo.VoiceState{GuildID: "g", UserID: "u", ChannelID: "vc-1", SelfMute: true},
				BeforeUpdate: &discordgo.VoiceState{ChannelID: "vc-1"},
			},
			ok: false,
		},
		{
			name:   "leave with cold cache",
			update: &discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{GuildID: "g", UserID: "u"}},
			ok:     true,
		},
		{
			name:   "missing user",
			update: &discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{GuildID: "g", ChannelID: "vc-1"}},
			ok:     false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, ok := toVoiceStateEvent(tc.update)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if !ok {
				return
			}
			if ev.BeforeChannelID != tc.before || ev.AfterChannelID != tc.after {
				t.Fatalf("unexpected event: %+v", ev)
			}
		})
	}
}

func TestApplicationCommandPayload_IntegerOptions(t *testing.T) {
	payload := applicationCommandPayload(discordpkg.SlashCommandDefinition{
		Name:        "leaderboard",
		Description: "ranking",
		IntegerOptions: []discordpkg.SlashCommandOption{
			{Name: "limit", Description: "rows", MinValue: 1, MaxValue: 20},
		},
	})
	if len(payload.Options) != 1 {
		t.Fatalf("expected one option, got %d", len(payload.Options))
	}
	opt := payload.Options[0]
	if opt.Type != discordgo.ApplicationCommandOptionInteger || opt.MinValue == nil || *opt.MinValue != 1 || opt.MaxValue != 20 {
		t.Fatalf("unexpected option: %+v", opt)
	}
}
