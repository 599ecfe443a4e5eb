package order

import (
	"github.com/smallbiznis/patronage/internal/github"
	"github.com/smallbiznis/patronage/internal/order/repository"
	"github.com/smallbiznis/patronage/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(v *github.PledgeVerifier) service.PledgeVerifier { return v }),
	fx.Provide(service.NewService),
)
