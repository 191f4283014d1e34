// Package supervisor keeps the bot present in one voice channel. It owns the
// single authoritative voice connection and rebuilds it whenever the
// transport drops, stalls or the bot is moved away.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/foxseedlab/vckeeper/internal/audio"
	"github.com/foxseedlab/vckeeper/internal/debounce"
	"github.com/foxseedlab/vckeeper/internal/discord"
	"github.com/foxseedlab/vckeeper/internal/notify"
	"github.com/foxseedlab/vckeeper/internal/telemetry"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultReadyTimeout       = 30 * time.Second
	DefaultReentryTimeout     = 5 * time.Second
	DefaultRebuildDelay       = 5 * time.Second
	DefaultDisplacedDelay     = 2 * time.Second
	DefaultAlertAfterFailures = 5

	eventQueueSize = 64

	reasonJoinFailed   = "join_failed"
	reasonDropped      = "connection_dropped"
	reasonDisplaced    = "displaced"
	resultReady        = "ready"
	resultFailed       = "failed"
	resultConfigError  = "config_error"
	alertNotifyTimeout = 10 * time.Second
)

var (
	ErrJoinInFlight        = errors.New("voice join already in flight")
	ErrClosed              = errors.New("supervisor is shut down")
	ErrWaitTimeout         = errors.New("timed out waiting for voice connection state")
	ErrConnectionDestroyed = errors.New("voice connection destroyed")
)

// ConfigError reports a voice target that cannot be resolved. It is never
// retried automatically.
type ConfigError struct {
	GuildID   string
	ChannelID string
	Err       error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("voice target misconfigured (guild %s, channel %s): %v", e.GuildID, e.ChannelID, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func isConfigError(err error) bool {
	return errors.Is(err, discord.ErrGuildNotFound) ||
		errors.Is(err, discord.ErrChannelNotFound) ||
		errors.Is(err, discord.ErrNotVoiceChannel)
}

type Options struct {
	GuildID   string
	ChannelID string

	ReadyTimeout   time.Duration
	ReentryTimeout time.Duration
	RebuildDelay   time.Duration
	DisplacedDelay time.Duration
	// AlertAfterFailures is how many consecutive failed joins raise an
	// operator alert.
	AlertAfterFailures int

	Clock clockwork.Clock
}

func (o *Options) setDefaults() {
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = DefaultReadyTimeout
	}
	if o.ReentryTimeout <= 0 {
		o.ReentryTimeout = DefaultReentryTimeout
	}
	if o.RebuildDelay <= 0 {
		o.RebuildDelay = DefaultRebuildDelay
	}
	if o.DisplacedDelay <= 0 {
		o.DisplacedDelay = DefaultDisplacedDelay
	}
	if o.AlertAfterFailures <= 0 {
		o.AlertAfterFailures = DefaultAlertAfterFailures
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
}

// binding is one connection together with its silence player and the
// supervisor's observer on it.
type binding struct {
	id     string
	conn   discord.VoiceConnection
	player *audio.Player
	detach func()
}

func (b *binding) release() {
	if b.detach != nil {
		b.detach()
	}
	if b.player != nil {
		b.player.Stop()
	}
	if err := b.conn.Destroy(); err != nil {
		slog.Warn("failed to destroy voice connection", "error", err, "attempt_id", b.id)
	}
}

type event struct {
	bindingID string
	kind      Event
	waitSeq   uint64
}

type Supervisor struct {
	opts      Options
	transport discord.VoiceTransport
	newSource audio.SourceFactory
	alerts    notify.Sender
	clock     clockwork.Clock
	rebuild   *debounce.Slot
	events    chan event
	quit      chan struct{}

	mu            sync.Mutex
	state         State
	joining       bool
	current       *binding
	waitSeq       uint64
	selfChannelID string
	failures      int
	closed        bool
	baseCtx       context.Context
}

// New creates an idle supervisor. newSource may be nil, in which case no
// silence player is attached; alerts may be nil to disable operator alerts.
func New(opts Options, transport discord.VoiceTransport, newSource audio.SourceFactory, alerts notify.Sender) *Supervisor {
	opts.setDefaults()
	s := &Supervisor{
		opts:      opts,
		transport: transport,
		newSource: newSource,
		alerts:    alerts,
		clock:     opts.Clock,
		rebuild:   debounce.NewSlot(opts.Clock),
		events:    make(chan event, eventQueueSize),
		quit:      make(chan struct{}),
		state:     StateIdle,
		baseCtx:   context.Background(),
	}
	telemetry.SupervisorState.Set(float64(StateIdle))
	return s
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) PendingRebuild() bool {
	return s.rebuild.Pending()
}

// Connect joins the target channel unless a join is already in flight or a
// live connection exists. It returns once the new connection is Ready or the
// attempt has failed; a transient failure schedules a rebuild.
func (s *Supervisor) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.joining {
		s.mu.Unlock()
		slog.Info("voice join already in flight; skipping connect", "guild_id", s.opts.GuildID, "channel_id", s.opts.ChannelID)
		return ErrJoinInFlight
	}
	var stale *binding
	if s.current != nil && s.current.conn.Status().Terminal() {
		stale = s.current
		s.current = nil
		s.waitSeq++
		s.setStateLocked(StateDestroyed)
	}
	next, effect := transition(s.state, EventConnect)
	if effect != EffectJoin {
		state := s.state
		s.mu.Unlock()
		slog.Debug("voice connection already live; connect is a no-op", "state", state.String())
		return nil
	}
	s.joining = true
	s.setStateLocked(next)
	s.mu.Unlock()

	if stale != nil {
		stale.release()
	}

	attemptID := uuid.NewString()
	ctx, span := telemetry.StartSpan(ctx, "supervisor.connect",
		attribute.String("attempt_id", attemptID),
		attribute.String("guild_id", s.opts.GuildID),
		attribute.String("channel_id", s.opts.ChannelID),
	)
	b, err := s.join(ctx, attemptID)
	telemetry.EndSpan(span, err)
	if err != nil {
		return s.joinFailed(ctx, attemptID, err)
	}
	return s.promote(b)
}

func (s *Supervisor) join(ctx context.Context, attemptID string) (*binding, error) {
	slog.Info("joining voice channel", "attempt_id", attemptID, "guild_id", s.opts.GuildID, "channel_id", s.opts.ChannelID)
	target, err := s.transport.ResolveVoiceTarget(ctx, s.opts.GuildID, s.opts.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve voice target: %w", err)
	}

	conn, err := s.transport.JoinVoice(ctx, target, discord.JoinOptions{SelfMute: false, SelfDeaf: true})
	if err != nil {
		return nil, fmt.Errorf("failed to join voice channel: %w", err)
	}
	player := s.startPlayer(attemptID, conn)

	if err := awaitState(ctx, s.clock, conn, s.opts.ReadyTimeout, discord.StatusReady); err != nil {
		if player != nil {
			player.Stop()
		}
		if derr := conn.Destroy(); derr != nil {
			slog.Warn("failed to destroy half-open voice connection", "error", derr, "attempt_id", attemptID)
		}
		return nil, fmt.Errorf("voice connection did not become ready: %w", err)
	}
	return &binding{id: attemptID, conn: conn, player: player}, nil
}

// startPlayer keeps the media path alive with silence. Player faults are
// logged only; they never trigger a reconnect.
func (s *Supervisor) startPlayer(attemptID string, conn discord.VoiceConnection) *audio.Player {
	if s.newSource == nil {
		return nil
	}
	src, err := s.newSource()
	if err != nil {
		slog.Warn("failed to create silence source", "error", err, "attempt_id", attemptID)
		return nil
	}
	player := audio.NewPlayer(s.clock, func(err error) {
		if errors.Is(err, discord.ErrVoiceNotReady) {
			slog.Debug("silence frame dropped before voice ready", "attempt_id", attemptID)
			return
		}
		slog.Warn("silence player error", "error", err, "attempt_id", attemptID)
	})
	if err := player.Play(audio.Resource{Source: src, Encoding: audio.EncodingOpus}); err != nil {
		slog.Warn("failed to start silence player", "error", err, "attempt_id", attemptID)
		return nil
	}
	player.Subscribe(conn)
	return player
}

func (s *Supervisor) joinFailed(ctx context.Context, attemptID string, err error) error {
	if isConfigError(err) {
		s.mu.Lock()
		s.joining = false
		s.applyLocked(EventConfigError)
		s.mu.Unlock()

		telemetry.JoinAttempts.WithLabelValues(resultConfigError).Inc()
		cfgErr := &ConfigError{GuildID: s.opts.GuildID, ChannelID: s.opts.ChannelID, Err: err}
		slog.Error("voice target configuration error; not retrying", "error", err, "attempt_id", attemptID, "guild_id", s.opts.GuildID, "channel_id", s.opts.ChannelID)
		s.alert(ctx, notify.AlertConfigError, cfgErr.Error())
		return cfgErr
	}

	s.mu.Lock()
	s.joining = false
	_, effect := s.applyLocked(EventTimeout)
	s.failures++
	failures := s.failures
	s.mu.Unlock()

	telemetry.JoinAttempts.WithLabelValues(resultFailed).Inc()
	slog.Warn("voice join failed", "error", err, "attempt_id", attemptID, "consecutive_failures", failures)
	if effect == EffectRebuild {
		s.scheduleRebuild(s.opts.RebuildDelay, reasonJoinFailed)
	}
	if failures%s.opts.AlertAfterFailures == 0 {
		s.alert(ctx, notify.AlertRepeatedFailures, fmt.Sprintf("%d consecutive voice join failures: %v", failures, err))
	}
	return err
}

func (s *Supervisor) promote(b *binding) error {
	s.mu.Lock()
	if s.closed {
		s.joining = false
		s.mu.Unlock()
		b.release()
		return ErrClosed
	}
	// Joins start only from Idle or Destroyed, where no binding is held.
	s.current = b
	s.joining = false
	s.failures = 0
	s.waitSeq++
	s.applyLocked(EventReady)
	b.detach = b.conn.OnStatusChange(func(status discord.ConnectionStatus) {
		s.post(event{bindingID: b.id, kind: eventFromStatus(status)})
	})
	s.mu.Unlock()

	// A rebuild scheduled for an earlier failure would tear this one down.
	s.rebuild.Cancel()
	telemetry.JoinAttempts.WithLabelValues(resultReady).Inc()
	slog.Info("voice connection ready", "attempt_id", b.id, "guild_id", s.opts.GuildID, "channel_id", s.opts.ChannelID)

	// A change between the ready wait and the observer attach is replayed.
	if status := b.conn.Status(); status != discord.StatusReady {
		s.post(event{bindingID: b.id, kind: eventFromStatus(status)})
	}
	return nil
}

// Run drains transport status events until ctx ends or Shutdown is called.
func (s *Supervisor) Run(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		case ev := <-s.events:
			s.handle(ctx, ev)
		}
	}
}

func (s *Supervisor) handle(ctx context.Context, ev event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while handling voice event", "panic", r, "event", ev.kind.String(), "stack", string(debug.Stack()))
		}
	}()

	s.mu.Lock()
	if s.current == nil || s.current.id != ev.bindingID {
		s.mu.Unlock()
		slog.Debug("dropping event from superseded voice connection", "attempt_id", ev.bindingID, "event", ev.kind.String())
		return
	}
	if ev.kind == EventTimeout && ev.waitSeq != s.waitSeq {
		s.mu.Unlock()
		slog.Debug("dropping stale voice wait timeout", "attempt_id", ev.bindingID)
		return
	}
	prev := s.state
	next, effect := s.applyLocked(ev.kind)
	b := s.current
	var seq uint64
	switch effect {
	case EffectAwaitReady, EffectAwaitReentry:
		s.waitSeq++
		seq = s.waitSeq
	case EffectRebuild:
		s.current = nil
		s.waitSeq++
	default:
		if next == StateReady {
			s.waitSeq++
		}
	}
	s.mu.Unlock()

	if prev != next {
		slog.Info("voice supervisor state changed", "attempt_id", b.id, "from", prev.String(), "to", next.String(), "event", ev.kind.String())
	}

	switch effect {
	case EffectAwaitReentry:
		go s.watch(ctx, b, seq, s.opts.ReentryTimeout, discord.StatusSignalling, discord.StatusConnecting, discord.StatusReady)
	case EffectAwaitReady:
		go s.watch(ctx, b, seq, s.opts.ReadyTimeout, discord.StatusReady)
	case EffectRebuild:
		slog.Warn("voice connection lost; tearing down", "attempt_id", b.id, "event", ev.kind.String())
		b.release()
		s.scheduleRebuild(s.opts.RebuildDelay, reasonDropped)
	}
}

// watch posts a timeout for b if it does not reach one of want in time.
func (s *Supervisor) watch(ctx context.Context, b *binding, seq uint64, timeout time.Duration, want ...discord.ConnectionStatus) {
	err := awaitState(ctx, s.clock, b.conn, timeout, want...)
	if err == nil || errors.Is(err, ErrConnectionDestroyed) || ctx.Err() != nil {
		// Destroyed reaches Run through the observer.
		return
	}
	slog.Warn("voice connection stuck in transitional state", "attempt_id", b.id, "timeout", timeout.String())
	s.post(event{bindingID: b.id, kind: EventTimeout, waitSeq: seq})
}

func (s *Supervisor) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.quit:
	}
}

// ObserveSelfChannel records where the gateway reports the bot. Any channel
// other than the target schedules a rebuild after the displacement delay.
func (s *Supervisor) ObserveSelfChannel(channelID string) {
	s.mu.Lock()
	s.selfChannelID = channelID
	closed := s.closed
	s.mu.Unlock()
	if closed || channelID == s.opts.ChannelID {
		return
	}
	slog.Info("bot is not in target voice channel", "current_channel_id", channelID, "target_channel_id", s.opts.ChannelID)
	s.scheduleRebuild(s.opts.DisplacedDelay, reasonDisplaced)
}

// scheduleRebuild replaces any pending rebuild.
func (s *Supervisor) scheduleRebuild(delay time.Duration, reason string) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	telemetry.RebuildsScheduled.WithLabelValues(reason).Inc()
	slog.Info("voice rebuild scheduled", "delay", delay.String(), "reason", reason)
	s.rebuild.Schedule(delay, func() { s.runRebuild(reason) })
}

func (s *Supervisor) runRebuild(reason string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic during voice rebuild", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.current != nil && s.state == StateReady {
		// Failure rebuilds always clear current, so a Ready binding here is
		// newer than the failure. A displacement still applies unless the
		// bot is back in the target channel.
		if reason != reasonDisplaced || s.selfChannelID == s.opts.ChannelID {
			s.mu.Unlock()
			slog.Info("voice connection already ready; skipping rebuild", "reason", reason)
			return
		}
	}
	b := s.current
	if b != nil {
		s.current = nil
		s.waitSeq++
		s.setStateLocked(StateDestroyed)
	}
	ctx := s.baseCtx
	s.mu.Unlock()

	if b != nil {
		b.release()
	}
	slog.Info("rebuilding voice connection", "reason", reason)
	if err := s.Connect(ctx); err != nil && !errors.Is(err, ErrJoinInFlight) && !errors.Is(err, ErrClosed) {
		slog.Warn("voice rebuild attempt failed", "error", err, "reason", reason)
	}
}

// Shutdown cancels any pending rebuild, refuses further connects and tears
// down the authoritative connection.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.quit)
	b := s.current
	s.current = nil
	s.waitSeq++
	s.setStateLocked(StateDestroyed)
	s.mu.Unlock()

	s.rebuild.Cancel()
	if b != nil {
		b.release()
	}
	slog.Info("voice supervisor shut down")
}

func (s *Supervisor) applyLocked(e Event) (State, Effect) {
	next, effect := transition(s.state, e)
	s.setStateLocked(next)
	return next, effect
}

func (s *Supervisor) setStateLocked(next State) {
	s.state = next
	telemetry.SupervisorState.Set(float64(next))
}

func (s *Supervisor) alert(ctx context.Context, kind notify.AlertKind, message string) {
	if s.alerts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertNotifyTimeout)
	defer cancel()
	err := s.alerts.Notify(ctx, notify.Alert{
		Kind:       kind,
		Message:    message,
		GuildID:    s.opts.GuildID,
		ChannelID:  s.opts.ChannelID,
		OccurredAt: s.clock.Now(),
	})
	if err != nil {
		slog.Error("failed to send operator alert", "error", err, "kind", string(kind))
	}
}
