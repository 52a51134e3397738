package plan

import (
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/plan/repository"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/plan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
