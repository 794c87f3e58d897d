package rpc

import "go.uber.org/fx"

var Module = fx.Module("rpc",
	fx.Provide(New),
)
