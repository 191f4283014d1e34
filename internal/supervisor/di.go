package supervisor

import (
	"github.com/foxseedlab/vckeeper/internal/audio"
	"github.com/foxseedlab/vckeeper/internal/config"
	"github.com/foxseedlab/vckeeper/internal/discord"
	"github.com/foxseedlab/vckeeper/internal/notify"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Supervisor, error) {
		cfg := do.MustInvoke[*config.Config](i)
		transport := do.MustInvoke[discord.VoiceTransport](i)
		newSource := do.MustInvoke[audio.SourceFactory](i)
		alerts := do.MustInvoke[notify.Sender](i)
		return New(Options{
			GuildID:   cfg.DiscordGuildID,
			ChannelID: cfg.DiscordVoiceChannelID,
		}, transport, newSource, alerts), nil
	})
}
