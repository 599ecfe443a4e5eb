package activity

import (
	activitydomain "github.com/smallbiznis/patronage/internal/activity/domain"
	"github.com/smallbiznis/patronage/internal/activity/service"
	"github.com/smallbiznis/patronage/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("activity.service",
	fx.Provide(repository.ProvideStore[activitydomain.Activity]),
	fx.Provide(service.NewService),
)
