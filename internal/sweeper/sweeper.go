package sweeper

import (
	"context"
	"time"

	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/reconcile"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Engine *reconcile.Engine
	Config Config `optional:"true"`
}

// Sweeper periodically expires stale orders so abandoned purchase intents
// stop being actionable.
type Sweeper struct {
	log    *zap.Logger
	engine *reconcile.Engine
	cfg    Config
}

func New(p Params) *Sweeper {
	return &Sweeper{
		log:    p.Log.Named("sweeper"),
		engine: p.Engine,
		cfg:    p.Config.withDefaults(),
	}
}

func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *Sweeper) RunOnce(ctx context.Context) {
	expired, err := s.engine.ExpireStale(ctx)
	if err != nil {
		s.log.Error("expiry sweep failed", zap.Error(err))
		return
	}
	if expired > 0 {
		s.log.Info("expiry sweep finished", zap.Int("expired", expired))
	}
}
