package quota

import (
	"github.com/entitlehq/entitled/internal/quota/service"
	"go.uber.org/fx"
)

var Module = fx.Module("quota.service",
	fx.Provide(service.New),
)
