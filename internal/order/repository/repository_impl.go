package repository

import (
	"context"
	"time"

	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) Insert(ctx context.Context, order *domain.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repo) FindByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*domain.Order, error) {
	if db == nil {
		db = r.db
	}
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT order_id, user_id, plan_id, amount_cents, currency, tokens, status, payment_id, created_at, updated_at
		 FROM purchase_orders WHERE order_id = ?`,
		orderID,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.OrderID == "" {
		return nil, domain.ErrNotFound
	}
	return &order, nil
}

func (r *repo) Verify(ctx context.Context, orderID, paymentID string, now time.Time) error {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE purchase_orders
		 SET status = ?, payment_id = ?, updated_at = ?
		 WHERE order_id = ? AND status = ?`,
		domain.StatusVerified,
		paymentID,
		now,
		orderID,
		domain.StatusPending,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *repo) Capture(ctx context.Context, db *gorm.DB, orderID, paymentID string, now time.Time) (bool, error) {
	if db == nil {
		db = r.db
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE purchase_orders
		 SET status = ?, payment_id = ?, updated_at = ?
		 WHERE order_id = ?
		   AND status IN (?, ?)
		   AND (payment_id IS NULL OR payment_id = ?)`,
		domain.StatusCaptured,
		paymentID,
		now,
		orderID,
		domain.StatusPending,
		domain.StatusVerified,
		paymentID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Expire(ctx context.Context, orderID string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE purchase_orders
		 SET status = ?, updated_at = ?
		 WHERE order_id = ? AND status IN (?, ?)`,
		domain.StatusExpired,
		now,
		orderID,
		domain.StatusPending,
		domain.StatusVerified,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindStale(ctx context.Context, before time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Raw(
		`SELECT order_id FROM purchase_orders
		 WHERE status IN (?, ?) AND updated_at < ?
		 ORDER BY updated_at ASC
		 LIMIT ?`,
		domain.StatusPending,
		domain.StatusVerified,
		before,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
