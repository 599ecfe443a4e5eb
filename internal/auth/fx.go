package auth

import (
	authdomain "github.com/smallbiznis/patronage/internal/auth/domain"
	"github.com/smallbiznis/patronage/internal/auth/service"
	"github.com/smallbiznis/patronage/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.ProvideStore[authdomain.User]),
	fx.Provide(service.New),
)
