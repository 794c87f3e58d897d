package observer

import "go.uber.org/fx"

var Module = fx.Module("observer",
	fx.Provide(NewHub),
)
