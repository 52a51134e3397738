package server

import (
	"context"
	"net/http"
	"time"

	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/config"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/gateway"
	ledgerdomain "github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/ledger/domain"
	orderdomain "github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/order/domain"
	plandomain "github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/plan/domain"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/reconcile"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {}),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine    *gin.Engine
	cfg       config.Config
	orderSvc  orderdomain.Service
	planSvc   plandomain.Service
	ledgerSvc ledgerdomain.Service
	engineSvc *reconcile.Engine
	gwClient  gateway.OrderClient
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	OrderSvc  orderdomain.Service
	PlanSvc   plandomain.Service
	LedgerSvc ledgerdomain.Service
	Engine    *reconcile.Engine
	GwClient  gateway.OrderClient
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		orderSvc:  p.OrderSvc,
		planSvc:   p.PlanSvc,
		ledgerSvc: p.LedgerSvc,
		engineSvc: p.Engine,
		gwClient:  p.GwClient,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/plans", s.ListPlans)

	// -------- Orders --------
	api.POST("/orders", s.CreateOrder)

	// -------- Payment confirmations --------
	api.POST("/payments/verify", s.VerifyPayment)
	api.POST("/payments/webhook", s.HandleWebhook)

	// -------- Balance / ledger reads --------
	api.GET("/users/:id/balance", s.GetBalance)
	api.GET("/users/:id/ledger", s.ListLedgerEntries)
	api.POST("/users/:id/debit", s.DebitTokens)
}
