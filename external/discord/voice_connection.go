package discord

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/foxseedlab/vckeeper/internal/discord"
)

const voicePollInterval = 250 * time.Millisecond

// voiceConnection adapts a discordgo voice connection to status-change
// notifications. discordgo exposes no state events for voice, so readiness
// and registration in the session are polled and mapped onto statuses.
type voiceConnection struct {
	session   *discordgo.Session
	guildID   string
	channelID string

	mu           sync.Mutex
	vc           *discordgo.VoiceConnection
	status       discordpkg.ConnectionStatus
	observers    map[uint64]func(discordpkg.ConnectionStatus)
	nextObserver uint64
	destroyed    bool
	stop         chan struct{}
}

func newVoiceConnection(session *discordgo.Session, guildID, channelID string) *voiceConnection {
	return &voiceConnection{
		session:   session,
		guildID:   guildID,
		channelID: channelID,
		status:    discordpkg.StatusSignalling,
		observers: make(map[uint64]func(discordpkg.ConnectionStatus)),
		stop:      make(chan struct{}),
	}
}

func (v *voiceConnection) GuildID() string   { return v.guildID }
func (v *voiceConnection) ChannelID() string { return v.channelID }

func (v *voiceConnection) Status() discordpkg.ConnectionStatus {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

func (v *voiceConnection) OnStatusChange(fn func(discordpkg.ConnectionStatus)) func() {
	v.mu.Lock()
	id := v.nextObserver
	v.nextObserver++
	v.observers[id] = fn
	v.mu.Unlock()
	return func() {
		v.mu.Lock()
		delete(v.observers, id)
		v.mu.Unlock()
	}
}

func (v *voiceConnection) SendOpus(frame []byte) error {
	v.mu.Lock()
	vc := v.vc
	status := v.status
	v.mu.Unlock()
	if vc == nil || status != discordpkg.StatusReady {
		return discordpkg.ErrVoiceNotReady
	}
	vc.RLock()
	ch := vc.OpusSend
	vc.RUnlock()
	if ch == nil {
		return discordpkg.ErrVoiceNotReady
	}
	select {
	case ch <- frame:
		return nil
	default:
		return discordpkg.ErrVoiceSendBusy
	}
}

func (v *voiceConnection) Destroy() error {
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		return nil
	}
	v.destroyed = true
	close(v.stop)
	vc := v.vc
	v.mu.Unlock()

	var err error
	if vc != nil {
		err = vc.Disconnect()
	}
	v.setStatus(discordpkg.StatusDestroyed)
	return err
}

func (v *voiceConnection) join(opts discordpkg.JoinOptions) {
	vc, err := v.session.ChannelVoiceJoin(v.guildID, v.channelID, opts.SelfMute, opts.SelfDeaf)
	if err != nil {
		slog.Warn("discord voice join failed", "error", err, "guild_id", v.guildID, "channel_id", v.channelID)
		v.markDestroyed()
		return
	}

	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		// Destroyed while the join was still in flight.
		_ = vc.Disconnect()
		return
	}
	v.vc = vc
	v.mu.Unlock()

	if err := vc.Speaking(true); err != nil {
		slog.Debug("failed to set speaking flag", "error", err, "guild_id", v.guildID)
	}
	v.setStatus(discordpkg.StatusReady)
	v.poll(vc)
}

func (v *voiceConnection) poll(vc *discordgo.VoiceConnection) {
	ticker := time.NewTicker(voicePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-v.stop:
			return
		case <-ticker.C:
			next := nextStatus(v.Status(), v.isReady(vc), v.isRegistered(vc))
			if next == discordpkg.StatusDestroyed {
				slog.Warn("discord voice connection dropped by session", "guild_id", v.guildID, "channel_id", v.channelID)
				v.markDestroyed()
				return
			}
			v.setStatus(next)
		}
	}
}

// nextStatus maps one poll observation onto a connection status. A connection
// that loses readiness is Disconnected for one poll, then Connecting while
// discordgo runs its own reconnect loop.
func nextStatus(current discordpkg.ConnectionStatus, ready, registered bool) discordpkg.ConnectionStatus {
	switch {
	case !registered:
		return discordpkg.StatusDestroyed
	case ready:
		return discordpkg.StatusReady
	case current == discordpkg.StatusReady:
		return discordpkg.StatusDisconnected
	case current == discordpkg.StatusDisconnected:
		return discordpkg.StatusConnecting
	default:
		return current
	}
}

func (v *voiceConnection) isReady(vc *discordgo.VoiceConnection) bool {
	vc.RLock()
	defer vc.RUnlock()
	return vc.Ready
}

func (v *voiceConnection) isRegistered(vc *discordgo.VoiceConnection) bool {
	v.session.RLock()
	defer v.session.RUnlock()
	return v.session.VoiceConnections[v.guildID] == vc
}

func (v *voiceConnection) markDestroyed() {
	v.mu.Lock()
	if !v.destroyed {
		v.destroyed = true
		close(v.stop)
	}
	v.mu.Unlock()
	v.setStatus(discordpkg.StatusDestroyed)
}

func (v *voiceConnection) setStatus(next discordpkg.ConnectionStatus) {
	v.mu.Lock()
	if v.status == next || v.status == discordpkg.StatusDestroyed {
		v.mu.Unlock()
		return
	}
	prev := v.status
	v.status = next
	observers := make([]func(discordpkg.ConnectionStatus), 0, len(v.observers))
	for _, fn := range v.observers {
		observers = append(observers, fn)
	}
	v.mu.Unlock()

	slog.Debug("discord voice status changed", "guild_id", v.guildID, "channel_id", v.channelID, "from", prev.String(), "to", next.String())
	for _, fn := range observers {
		fn(next)
	}
}
