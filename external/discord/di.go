package discord

import (
	"github.com/foxseedlab/vckeeper/internal/config"
	discordpkg "github.com/foxseedlab/vckeeper/internal/discord"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (discordpkg.Client, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewClient(c.DiscordToken), nil
	})
	do.Provide(injector, func(i do.Injector) (discordpkg.VoiceTransport, error) {
		return do.MustInvoke[discordpkg.Client](i), nil
	})
}
