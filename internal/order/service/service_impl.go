package service

import (
	"context"
	"strings"

	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/clock"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/gateway"
	obsmetrics "github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/observability/metrics"
	orderdomain "github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/order/domain"
	plandomain "github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Repo       orderdomain.Repository
	PlanSvc    plandomain.Service
	Gateway    gateway.OrderClient
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	repo       orderdomain.Repository
	planSvc    plandomain.Service
	gateway    gateway.OrderClient
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) orderdomain.Service {
	return &Service{
		log:        p.Log.Named("order.service"),
		repo:       p.Repo,
		planSvc:    p.PlanSvc,
		gateway:    p.Gateway,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req orderdomain.CreateOrderRequest) (orderdomain.CreateOrderResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return orderdomain.CreateOrderResponse{}, orderdomain.ErrInvalidUser
	}

	plan, err := s.planSvc.GetActive(ctx, req.PlanID)
	if err != nil {
		return orderdomain.CreateOrderResponse{}, err
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, plan.AmountCents, plan.Currency, userID)
	if err != nil {
		return orderdomain.CreateOrderResponse{}, err
	}

	now := s.clock.Now()
	order := orderdomain.Order{
		OrderID:     gwOrder.OrderID,
		UserID:      userID,
		PlanID:      plan.ID,
		AmountCents: plan.AmountCents,
		Currency:    plan.Currency,
		Tokens:      plan.Tokens,
		Status:      orderdomain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, &order); err != nil {
		return orderdomain.CreateOrderResponse{}, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.OrdersCreated.Inc()
	}
	s.log.Info("order created",
		zap.String("order_id", order.OrderID),
		zap.String("user_id", userID),
		zap.String("plan_id", plan.ID),
		zap.Int64("tokens", plan.Tokens),
	)

	return orderdomain.CreateOrderResponse{
		OrderID:     order.OrderID,
		AmountCents: order.AmountCents,
		Currency:    order.Currency,
		Tokens:      order.Tokens,
		KeyID:       s.gateway.KeyID(),
	}, nil
}
