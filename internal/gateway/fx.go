package gateway

import "go.uber.org/fx"

var Module = fx.Module("gateway",
	fx.Provide(NewVerifier),
	fx.Provide(NewStandaloneClient),
)
