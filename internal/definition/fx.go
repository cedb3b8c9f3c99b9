package definition

import (
	"github.com/entitlehq/entitled/internal/definition/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("definition.store",
	fx.Provide(repository.Provide),
)
