package reconcile

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// GatewayEvent is the append-only record of every authenticated webhook
// delivery, raw bytes included. It exists for audit; idempotency is owned
// by the order state machine and the ledger's unique index.
type GatewayEvent struct {
	ID         snowflake.ID   `gorm:"primaryKey" json:"id"`
	EventType  string         `gorm:"type:text;not null" json:"event_type"`
	OrderID    string         `gorm:"type:text;not null;index" json:"order_id"`
	PaymentID  string         `gorm:"type:text;not null" json:"payment_id"`
	Payload    datatypes.JSON `gorm:"not null" json:"payload"`
	ReceivedAt time.Time      `gorm:"not null" json:"received_at"`
}

// TableName sets the database table name.
func (GatewayEvent) TableName() string { return "gateway_events" }

// WebhookResult distinguishes the acknowledged outcomes of a webhook
// delivery. All of them answer 2xx to the gateway; only Processed moved
// tokens.
type WebhookResult string

const (
	ResultProcessed       WebhookResult = "processed"
	ResultAlreadyCaptured WebhookResult = "already_captured"
	ResultIgnored         WebhookResult = "ignored"
)

// CheckoutConfirmation is the client-redirected verification payload plus
// the claimed order details the client displayed at checkout.
type CheckoutConfirmation struct {
	OrderID     string `json:"order_id"`
	PaymentID   string `json:"payment_id"`
	Signature   string `json:"signature"`
	PlanID      string `json:"plan_id,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
}

var (
	ErrUnknownOrder      = errors.New("unknown_order")
	ErrOrderClosed       = errors.New("order_closed")
	ErrPaymentIDMismatch = errors.New("payment_id_mismatch")
	ErrOrderMismatch     = errors.New("order_mismatch")
)
