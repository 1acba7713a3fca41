package creatorpool

import (
	"github.com/chapterly/revenue/internal/creatorpool/service"
	"go.uber.org/fx"
)

var Module = fx.Module("creatorpool.service",
	fx.Provide(service.NewService),
)
