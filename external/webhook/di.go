package webhook

import (
	"github.com/foxseedlab/vckeeper/internal/config"
	"github.com/foxseedlab/vckeeper/internal/notify"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (notify.Sender, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewHTTPSender(c.AlertWebhookURL), nil
	})
}
