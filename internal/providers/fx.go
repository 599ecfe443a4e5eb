package providers

import (
	"github.com/smallbiznis/patronage/internal/providers/email"
	"github.com/smallbiznis/patronage/internal/providers/pdf"
	"github.com/smallbiznis/patronage/internal/providers/slack"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
	slack.Module,
)
