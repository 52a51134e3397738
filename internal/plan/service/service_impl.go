package service

import (
	"context"
	"strings"

	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		log:  p.Log.Named("plan.service"),
		repo: p.Repo,
	}
}

func (s *Service) GetActive(ctx context.Context, id string) (domain.Plan, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Plan{}, domain.ErrInvalidPlan
	}

	plan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Plan{}, err
	}
	if plan == nil || !plan.Active {
		return domain.Plan{}, domain.ErrInvalidPlan
	}
	return *plan, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Plan, error) {
	return s.repo.ListActive(ctx)
}
