package revenueperiod

import (
	"github.com/chapterly/revenue/internal/revenueperiod/repository"
	"github.com/chapterly/revenue/internal/revenueperiod/service"
	"go.uber.org/fx"
)

var Module = fx.Module("revenueperiod.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
