package payout

import (
	"github.com/chapterly/revenue/internal/payout/repository"
	"github.com/chapterly/revenue/internal/payout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
