package feature

import (
	"github.com/entitlehq/entitled/internal/feature/service"
	"go.uber.org/fx"
)

var Module = fx.Module("feature.service",
	fx.Provide(service.New),
)
