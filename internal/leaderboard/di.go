package leaderboard

import (
	"github.com/foxseedlab/vckeeper/internal/config"
	"github.com/foxseedlab/vckeeper/internal/discord"
	"github.com/foxseedlab/vckeeper/internal/ledger"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Service, error) {
		cfg := do.MustInvoke[*config.Config](i)
		l := do.MustInvoke[*ledger.Ledger](i)
		dc := do.MustInvoke[discord.Client](i)
		return NewService(cfg, l, dc), nil
	})
}
