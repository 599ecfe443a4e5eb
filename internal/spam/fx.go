package spam

import "go.uber.org/fx"

var Module = fx.Module("spam",
	fx.Provide(NewScanner),
)
