package github

import (
	"github.com/smallbiznis/patronage/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("github",
	fx.Provide(func(cfg config.Config) Client {
		return NewClient(cfg.GithubToken, "")
	}),
	fx.Provide(NewPledgeVerifier),
)
