package audit

import (
	"github.com/chapterly/revenue/internal/audit/repository"
	"github.com/chapterly/revenue/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
