package collective

import (
	"github.com/smallbiznis/patronage/internal/collective/repository"
	"github.com/smallbiznis/patronage/internal/collective/service"
	"go.uber.org/fx"
)

var Module = fx.Module("collective.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
