package sweeper

import (
	"context"

	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("sweeper",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(RunSweeper),
)

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.SweepInterval,
	}
}

func RunSweeper(lc fx.Lifecycle, sweeper *Sweeper) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go sweeper.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
