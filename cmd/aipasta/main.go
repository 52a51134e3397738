package main

import (
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/clock"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/config"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/gateway"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/ledger"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/logger"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/migration"
	obsmetrics "github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/observability/metrics"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/order"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/plan"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/reconcile"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/server"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/sweeper"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		logger.Module,
		obsmetrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Functional Domains
		gateway.Module,
		plan.Module,
		order.Module,
		ledger.Module,
		reconcile.Module,
		sweeper.Module,
		migration.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
