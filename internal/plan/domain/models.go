package domain

import (
	"context"
	"errors"
	"time"
)

// Plan is a purchasable token pack. Amounts are minor units (paise/cents).
type Plan struct {
	ID          string    `gorm:"primaryKey;type:text" json:"id"`
	Name        string    `gorm:"type:text;not null" json:"name"`
	AmountCents int64     `gorm:"not null" json:"amount_cents"`
	Currency    string    `gorm:"type:text;not null" json:"currency"`
	Tokens      int64     `gorm:"not null" json:"tokens"`
	Active      bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "token_plans" }

type Repository interface {
	FindByID(ctx context.Context, id string) (*Plan, error)
	ListActive(ctx context.Context) ([]Plan, error)
	Upsert(ctx context.Context, plan *Plan) error
}

type Service interface {
	GetActive(ctx context.Context, id string) (Plan, error)
	List(ctx context.Context) ([]Plan, error)
}

var (
	ErrInvalidPlan = errors.New("invalid_plan")
)
