package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	audioimpl "github.com/foxseedlab/vckeeper/external/audio"
	configloader "github.com/foxseedlab/vckeeper/external/config"
	"github.com/foxseedlab/vckeeper/external/discord"
	repositoryimpl "github.com/foxseedlab/vckeeper/external/repository"
	webhookimpl "github.com/foxseedlab/vckeeper/external/webhook"
	"github.com/foxseedlab/vckeeper/internal/config"
	discordpkg "github.com/foxseedlab/vckeeper/internal/discord"
	"github.com/foxseedlab/vckeeper/internal/health"
	"github.com/foxseedlab/vckeeper/internal/leaderboard"
	"github.com/foxseedlab/vckeeper/internal/ledger"
	"github.com/foxseedlab/vckeeper/internal/presence"
	"github.com/foxseedlab/vckeeper/internal/repository"
	"github.com/foxseedlab/vckeeper/internal/supervisor"
	"github.com/foxseedlab/vckeeper/internal/telemetry"
	"github.com/samber/do/v2"
)

const (
	serviceName           = "vckeeper"
	discordConnectTimeout = 20 * time.Second
)

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env)

	shutdownTracing, err := telemetry.InitTracing(context.Background(), cfg.OTLPEndpoint, serviceName)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing()

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching discord bot")
	runBot(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	discord.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	ledger.RegisterDI(injector)
	supervisor.RegisterDI(injector)
	presence.RegisterDI(injector)
	leaderboard.RegisterDI(injector)

	return injector
}

func mustInvoke[T any](injector do.Injector, what string) T {
	v, err := do.Invoke[T](injector)
	if err != nil {
		slog.Error("failed to resolve "+what, "error", err)
		os.Exit(1)
	}
	return v
}

func runBot(cfg *config.Config, injector do.Injector) {
	dc := mustInvoke[discordpkg.Client](injector, "discord client")
	repo := mustInvoke[repository.Repository](injector, "ledger repository")
	l := mustInvoke[*ledger.Ledger](injector, "ledger")
	sup := mustInvoke[*supervisor.Supervisor](injector, "voice supervisor")
	tracker := mustInvoke[*presence.Tracker](injector, "presence tracker")
	board := mustInvoke[*leaderboard.Service](injector, "leaderboard")
	defer func() {
		if err := repo.Close(); err != nil {
			slog.Error("ledger close failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Runs before the gateway connects so no leave event can credit downtime.
	discarded, err := l.DiscardStaleSessions(ctx)
	if err != nil {
		slog.Error("failed to discard stale voice sessions", "error", err)
		os.Exit(1)
	}
	if discarded > 0 {
		slog.Info("discarded voice sessions from previous run", "sessions", discarded)
	}

	connectCtx, cancel := context.WithTimeout(ctx, discordConnectTimeout)
	defer cancel()

	slog.Info("startup: connecting to discord gateway")
	if err := dc.Connect(connectCtx); err != nil {
		slog.Error("discord connect failed", "error", err)
		os.Exit(1)
	}
	slog.Info("startup: discord connected")
	defer func() {
		if err := dc.Close(); err != nil {
			slog.Error("discord close failed", "error", err)
		}
	}()

	botUserID, err := dc.GetBotUserID()
	if err != nil {
		slog.Error("failed to resolve bot user id", "error", err)
		os.Exit(1)
	}
	tracker.SetBotUserID(botUserID)

	if err := dc.UpsertGuildSlashCommands(cfg.DiscordGuildID, leaderboard.SlashCommandDefinitions()); err != nil {
		slog.Error("failed to upsert slash commands", "error", err, "guild_id", cfg.DiscordGuildID)
		os.Exit(1)
	}

	go sup.Run(ctx)
	go tracker.Run(ctx)

	dc.RegisterVoiceStateUpdateHandler(tracker.HandleVoiceStateUpdate)
	dc.RegisterSlashCommandHandler(board.HandleSlashCommand)
	dc.RegisterGuildAvailableHandler(onGuildAvailable(ctx, cfg, dc, tracker, sup))
	slog.Info("discord handlers registered", "guild_id", cfg.DiscordGuildID, "commands", []string{leaderboard.CommandLeaderboard})

	go func() {
		if err := health.Serve(ctx, cfg.HTTPAddr, health.NewMux(sup, l)); err != nil {
			slog.Error("health server stopped", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		slog.Info("startup: entering discord run loop")
		if err := dc.Run(); err != nil {
			slog.Error("discord run failed", "error", err)
		}
		close(done)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case <-done:
	}
	sup.Shutdown()
}

// onGuildAvailable seeds present participants the first time the target
// guild becomes available, then asks the supervisor to connect. Later
// availability events only re-run the idempotent connect.
func onGuildAvailable(ctx context.Context, cfg *config.Config, dc discordpkg.Client, tracker *presence.Tracker, sup *supervisor.Supervisor) func(string) {
	var mu sync.Mutex
	return func(guildID string) {
		if guildID != cfg.DiscordGuildID {
			return
		}
		go func() {
			mu.Lock()
			defer mu.Unlock()
			if err := tracker.Seed(ctx, dc); err != nil {
				slog.Error("failed to seed voice sessions", "error", err, "guild_id", guildID)
			}
			if err := sup.Connect(ctx); err != nil {
				slog.Warn("initial voice connect did not complete", "error", err, "guild_id", guildID)
			}
		}()
	}
}
