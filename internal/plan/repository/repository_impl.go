package repository

import (
	"context"
	"errors"

	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/plan/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) FindByID(ctx context.Context, id string) (*domain.Plan, error) {
	var plan domain.Plan
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repo) ListActive(ctx context.Context) ([]domain.Plan, error) {
	var plans []domain.Plan
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("amount_cents asc").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repo) Upsert(ctx context.Context, plan *domain.Plan) error {
	existing, err := r.FindByID(ctx, plan.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return r.db.WithContext(ctx).Create(plan).Error
}
