package paymentmethod

import (
	"github.com/smallbiznis/patronage/internal/paymentmethod/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("paymentmethod.repository",
	fx.Provide(repository.Provide),
)
