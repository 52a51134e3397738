package order

import (
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/order/repository"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
