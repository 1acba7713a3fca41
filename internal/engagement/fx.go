package engagement

import (
	"github.com/chapterly/revenue/internal/engagement/repository"
	"github.com/chapterly/revenue/internal/engagement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("engagement.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvideActivitySource),
	fx.Provide(service.NewService),
)
