package ledger

import (
	"github.com/foxseedlab/vckeeper/internal/repository"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Ledger, error) {
		return New(do.MustInvoke[repository.Repository](i)), nil
	})
}
