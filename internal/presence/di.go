package presence

import (
	"github.com/foxseedlab/vckeeper/internal/config"
	"github.com/foxseedlab/vckeeper/internal/ledger"
	"github.com/foxseedlab/vckeeper/internal/supervisor"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Tracker, error) {
		cfg := do.MustInvoke[*config.Config](i)
		l := do.MustInvoke[*ledger.Ledger](i)
		sup := do.MustInvoke[*supervisor.Supervisor](i)
		return NewTracker(cfg, l, sup, nil), nil
	})
}
