package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Kind classifies a balance-affecting event.
type Kind string

const (
	KindPurchase   Kind = "purchase"
	KindMigration  Kind = "migration"
	KindUsage      Kind = "usage"
	KindAdjustment Kind = "adjustment"
)

// Entry is an immutable record of a balance change. Tokens is signed:
// credits positive, usage negative. Purchase entries carry the order id;
// the unique index on order_id is the at-most-once guarantee independent
// of the order state machine.
type Entry struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID    string       `gorm:"type:text;not null;index" json:"user_id"`
	Kind      Kind         `gorm:"type:text;not null" json:"kind"`
	Tokens    int64        `gorm:"not null" json:"tokens"`
	OrderID   *string      `gorm:"type:text;uniqueIndex:ux_token_ledger_entries_order_id" json:"order_id,omitempty"`
	Note      string       `gorm:"type:text" json:"note,omitempty"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Entry) TableName() string { return "token_ledger_entries" }

// UserTokenState is the materialized balance view. It is always
// recomputable by folding the user's ledger entries; it never becomes an
// independent source of truth.
type UserTokenState struct {
	UserID         string    `gorm:"primaryKey;type:text" json:"user_id"`
	FreeTokens     int64     `gorm:"not null;default:0" json:"free_tokens"`
	PaidTokens     int64     `gorm:"not null;default:0" json:"paid_tokens"`
	TotalUsed      int64     `gorm:"not null;default:0" json:"total_used"`
	LegacyCredits  int64     `gorm:"not null;default:0" json:"-"`
	LegacyMigrated bool      `gorm:"not null;default:false" json:"-"`
	CreatedAt      time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (UserTokenState) TableName() string { return "user_token_states" }

func (s UserTokenState) Balance() int64 { return s.FreeTokens + s.PaidTokens }

type Balance struct {
	FreeTokens int64 `json:"free_tokens"`
	PaidTokens int64 `json:"paid_tokens"`
	Balance    int64 `json:"balance"`
	TotalUsed  int64 `json:"total_used"`
}

type Service interface {
	// Credit appends one entry and updates the balance view in the same
	// transaction. tx may be nil for callers without an open transaction.
	// A second purchase credit for the same order returns
	// ErrDuplicateCredit and writes nothing.
	Credit(ctx context.Context, tx *gorm.DB, userID string, orderID *string, tokens int64, kind Kind, note string) error

	// Debit records usage, refusing to drive the balance negative.
	Debit(ctx context.Context, userID string, tokens int64, note string) error

	GetBalance(ctx context.Context, userID string) (Balance, error)
	ListEntries(ctx context.Context, userID string, limit int) ([]Entry, error)

	// Recompute folds the ledger into a Balance, ignoring the
	// materialized view. Used by tests and repair tooling.
	Recompute(ctx context.Context, userID string) (Balance, error)

	// MigrateLegacyCredits converts deprecated flat credit counters into
	// free tokens, once per user. Safe to re-run.
	MigrateLegacyCredits(ctx context.Context, batchSize int) (int, error)
}

var (
	ErrDuplicateCredit     = errors.New("duplicate_credit")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidUser         = errors.New("invalid_user")
)
