package entitlement

import (
	"github.com/entitlehq/entitled/internal/entitlement/repository"
	"github.com/entitlehq/entitled/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
