package ledger

import (
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(service.New),
)
