package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Status is the order lifecycle state. It only moves forward:
// pending -> verified -> captured, with failed/expired reachable from
// pending and verified. captured, failed and expired are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusCaptured Status = "captured"
	StatusFailed   Status = "failed"
	StatusExpired  Status = "expired"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCaptured, StatusFailed, StatusExpired:
		return true
	default:
		return false
	}
}

// Order is a single purchase attempt keyed by the gateway-assigned order id.
// Orders are never deleted; terminal rows remain for audit.
type Order struct {
	OrderID     string    `gorm:"primaryKey;type:text;column:order_id" json:"order_id"`
	UserID      string    `gorm:"type:text;not null;index" json:"user_id"`
	PlanID      string    `gorm:"type:text;not null" json:"plan_id"`
	AmountCents int64     `gorm:"not null" json:"amount_cents"`
	Currency    string    `gorm:"type:text;not null" json:"currency"`
	Tokens      int64     `gorm:"not null" json:"tokens"`
	Status      Status    `gorm:"type:text;not null;index" json:"status"`
	PaymentID   *string   `gorm:"type:text" json:"payment_id,omitempty"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"updated_at"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "purchase_orders" }

// Repository persists orders. Methods that participate in the capture
// transaction take an explicit handle so the caller controls atomicity.
type Repository interface {
	Insert(ctx context.Context, order *Order) error
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*Order, error)

	// Verify is the compare-and-swap pending -> verified, storing the
	// payment id. Returns ErrConflict when the stored status is no
	// longer pending.
	Verify(ctx context.Context, orderID, paymentID string, now time.Time) error

	// Capture is the compare-and-swap into captured. It succeeds only
	// while the order is pending or verified and the stored payment id
	// is unset or equal to paymentID. Returns (false, nil) when no row
	// matched; the caller re-reads to classify the loss.
	Capture(ctx context.Context, db *gorm.DB, orderID, paymentID string, now time.Time) (bool, error)

	// Expire compare-and-swaps pending/verified -> expired.
	Expire(ctx context.Context, orderID string, now time.Time) (bool, error)

	FindStale(ctx context.Context, before time.Time, limit int) ([]string, error)
}

type CreateOrderRequest struct {
	UserID string
	PlanID string
}

type CreateOrderResponse struct {
	OrderID     string `json:"order_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Tokens      int64  `json:"tokens"`
	KeyID       string `json:"key_id,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateOrderRequest) (CreateOrderResponse, error)
}

var (
	ErrNotFound    = errors.New("order_not_found")
	ErrConflict    = errors.New("order_conflict")
	ErrInvalidUser = errors.New("invalid_user")
)
