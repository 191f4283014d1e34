// Package presence turns voice movement events into ledger sessions and
// reports the bot's own channel to the connection supervisor.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/foxseedlab/vckeeper/internal/config"
	"github.com/foxseedlab/vckeeper/internal/discord"
	"github.com/jonboulle/clockwork"
)

const queueSize = 1024

type Ledger interface {
	BeginSession(ctx context.Context, userID string, at time.Time) error
	EndSession(ctx context.Context, userID string, at time.Time) (time.Duration, error)
	SeedInProgress(ctx context.Context, userID string, at time.Time) error
}

type SelfObserver interface {
	ObserveSelfChannel(channelID string)
}

type ParticipantLister interface {
	ListVoiceParticipants(guildID string) ([]discord.VoiceParticipant, error)
}

// item is one unit of work for Run: a movement event or a seed request.
type item struct {
	event discord.VoiceStateEvent
	seed  *seedRequest
}

type seedRequest struct {
	lister ParticipantLister
	done   chan error
}

type Tracker struct {
	guildID   string
	trackBots bool
	ledger    Ledger
	self      SelfObserver
	clock     clockwork.Clock
	queue     chan item

	mu        sync.Mutex
	botUserID string

	// seeded is owned by the Run goroutine.
	seeded bool
}

func NewTracker(cfg *config.Config, ledger Ledger, self SelfObserver, clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{
		guildID:   cfg.DiscordGuildID,
		trackBots: cfg.DiscordTrackBots,
		ledger:    ledger,
		self:      self,
		clock:     clock,
		queue:     make(chan item, queueSize),
	}
}

func (t *Tracker) SetBotUserID(botUserID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.botUserID = botUserID
}

func (t *Tracker) getBotUserID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.botUserID
}

// HandleVoiceStateUpdate queues event for Run, preserving arrival order.
func (t *Tracker) HandleVoiceStateUpdate(event discord.VoiceStateEvent) {
	t.queue <- item{event: event}
}

// Run processes queued events and seed requests one at a time until ctx
// ends.
func (t *Tracker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-t.queue:
			if it.seed != nil {
				it.seed.done <- t.safeSeed(ctx, it.seed.lister)
				continue
			}
			t.safeProcess(ctx, it.event)
		}
	}
}

func (t *Tracker) safeProcess(ctx context.Context, event discord.VoiceStateEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while processing voice state update", "panic", r, "user_id", event.UserID, "stack", string(debug.Stack()))
		}
	}()
	t.Process(ctx, event)
}

// Process applies one movement event. Ledger faults are logged and never
// stop processing.
func (t *Tracker) Process(ctx context.Context, event discord.VoiceStateEvent) {
	if event.GuildID != t.guildID {
		slog.Debug("ignoring voice event for different guild", "event_guild_id", event.GuildID, "configured_guild_id", t.guildID)
		return
	}
	if botUserID := t.getBotUserID(); botUserID != "" && event.UserID == botUserID {
		t.self.ObserveSelfChannel(event.AfterChannelID)
		return
	}
	if event.UserIsBot && !t.trackBots {
		return
	}

	before, after := event.BeforeChannelID, event.AfterChannelID
	now := t.clock.Now()
	switch {
	case before == after:
		// Mute, deafen and stream toggles.
		return
	case before == "":
		t.begin(ctx, event.UserID, after, now)
	case after == "":
		t.end(ctx, event.UserID, before, now)
	default:
		slog.Info("participant moved voice channel", "user_id", event.UserID, "from_channel_id", before, "to_channel_id", after)
		t.end(ctx, event.UserID, before, now)
		t.begin(ctx, event.UserID, after, now)
	}
}

func (t *Tracker) begin(ctx context.Context, userID, channelID string, at time.Time) {
	if err := t.ledger.BeginSession(ctx, userID, at); err != nil {
		slog.Error("failed to begin voice session", "error", err, "user_id", userID, "channel_id", channelID)
		return
	}
	slog.Debug("voice session begun", "user_id", userID, "channel_id", channelID)
}

func (t *Tracker) end(ctx context.Context, userID, channelID string, at time.Time) {
	elapsed, err := t.ledger.EndSession(ctx, userID, at)
	if err != nil {
		slog.Error("failed to end voice session", "error", err, "user_id", userID, "channel_id", channelID)
		return
	}
	if elapsed > 0 {
		slog.Info("voice session ended", "user_id", userID, "channel_id", channelID, "elapsed_ms", elapsed.Milliseconds())
	}
}

// Seed opens a session for everyone already in a voice channel of the guild.
// The listing is taken on the Run goroutine after every movement event
// queued before the call, so a participant who left in the meantime is not
// reopened. It runs once per process; later calls return nil without doing
// anything. Seed blocks until Run has handled the request or ctx ends.
func (t *Tracker) Seed(ctx context.Context, lister ParticipantLister) error {
	req := &seedRequest{lister: lister, done: make(chan error, 1)}
	select {
	case t.queue <- item{seed: req}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tracker) safeSeed(ctx context.Context, lister ParticipantLister) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while seeding voice sessions", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("seed panicked: %v", r)
		}
	}()
	return t.seed(ctx, lister)
}

func (t *Tracker) seed(ctx context.Context, lister ParticipantLister) error {
	if t.seeded {
		return nil
	}
	participants, err := lister.ListVoiceParticipants(t.guildID)
	if err != nil {
		return fmt.Errorf("failed to list voice participants: %w", err)
	}
	t.seeded = true

	botUserID := t.getBotUserID()
	now := t.clock.Now()
	seeded := 0
	for _, p := range participants {
		if p.UserID == botUserID || (p.IsBot && !t.trackBots) {
			continue
		}
		if err := t.ledger.SeedInProgress(ctx, p.UserID, now); err != nil {
			slog.Error("failed to seed in-progress voice session", "error", err, "user_id", p.UserID, "channel_id", p.ChannelID)
			continue
		}
		seeded++
	}
	slog.Info("seeded in-progress voice sessions", "guild_id", t.guildID, "participants", seeded)
	return nil
}
