package service

import (
	"context"
	"strings"
	"time"

	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/clock"
	ledgerdomain "github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/ledger/domain"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) ledgerdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Credit(ctx context.Context, tx *gorm.DB, userID string, orderID *string, tokens int64, kind ledgerdomain.Kind, note string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ledgerdomain.ErrInvalidUser
	}
	if tokens <= 0 {
		return ledgerdomain.ErrInvalidAmount
	}

	apply := func(handle *gorm.DB) error {
		return s.creditTx(ctx, handle, userID, orderID, tokens, kind, note)
	}
	if tx != nil {
		return apply(tx)
	}
	return s.db.WithContext(ctx).Transaction(apply)
}

func (s *Service) creditTx(ctx context.Context, tx *gorm.DB, userID string, orderID *string, tokens int64, kind ledgerdomain.Kind, note string) error {
	now := s.clock.Now()

	err := tx.WithContext(ctx).Exec(
		`INSERT INTO token_ledger_entries (id, user_id, kind, tokens, order_id, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.genID.Generate(),
		userID,
		string(kind),
		tokens,
		orderID,
		note,
		now,
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return ledgerdomain.ErrDuplicateCredit
		}
		return err
	}

	if err := s.ensureState(ctx, tx, userID, now); err != nil {
		return err
	}

	column := "paid_tokens"
	if kind == ledgerdomain.KindMigration {
		column = "free_tokens"
	}
	return tx.WithContext(ctx).Exec(
		`UPDATE user_token_states
		 SET `+column+` = `+column+` + ?, updated_at = ?
		 WHERE user_id = ?`,
		tokens,
		now,
		userID,
	).Error
}

func (s *Service) Debit(ctx context.Context, userID string, tokens int64, note string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ledgerdomain.ErrInvalidUser
	}
	if tokens <= 0 {
		return ledgerdomain.ErrInvalidAmount
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()

		// Free tokens burn first; the guard on the combined balance makes
		// the decrement and the negative-balance check one atomic step.
		result := tx.WithContext(ctx).Exec(
			`UPDATE user_token_states
			 SET free_tokens = CASE WHEN free_tokens >= ? THEN free_tokens - ? ELSE 0 END,
			     paid_tokens = CASE WHEN free_tokens >= ? THEN paid_tokens ELSE paid_tokens - (? - free_tokens) END,
			     total_used = total_used + ?,
			     updated_at = ?
			 WHERE user_id = ? AND free_tokens + paid_tokens >= ?`,
			tokens, tokens,
			tokens, tokens,
			tokens,
			now,
			userID,
			tokens,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ledgerdomain.ErrInsufficientBalance
		}

		return tx.WithContext(ctx).Exec(
			`INSERT INTO token_ledger_entries (id, user_id, kind, tokens, order_id, note, created_at)
			 VALUES (?, ?, ?, ?, NULL, ?, ?)`,
			s.genID.Generate(),
			userID,
			string(ledgerdomain.KindUsage),
			-tokens,
			note,
			now,
		).Error
	})
}

func (s *Service) GetBalance(ctx context.Context, userID string) (ledgerdomain.Balance, error) {
	var state ledgerdomain.UserTokenState
	err := s.db.WithContext(ctx).Raw(
		`SELECT user_id, free_tokens, paid_tokens, total_used
		 FROM user_token_states WHERE user_id = ?`,
		userID,
	).Scan(&state).Error
	if err != nil {
		return ledgerdomain.Balance{}, err
	}
	return ledgerdomain.Balance{
		FreeTokens: state.FreeTokens,
		PaidTokens: state.PaidTokens,
		Balance:    state.Balance(),
		TotalUsed:  state.TotalUsed,
	}, nil
}

func (s *Service) ListEntries(ctx context.Context, userID string, limit int) ([]ledgerdomain.Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var entries []ledgerdomain.Entry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Recompute replays the user's ledger in order, applying the same
// free-before-paid debit rule Debit uses, so the result is comparable to
// the materialized view field by field.
func (s *Service) Recompute(ctx context.Context, userID string) (ledgerdomain.Balance, error) {
	var entries []ledgerdomain.Entry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc, id asc").
		Find(&entries).Error
	if err != nil {
		return ledgerdomain.Balance{}, err
	}

	var out ledgerdomain.Balance
	for _, entry := range entries {
		switch entry.Kind {
		case ledgerdomain.KindMigration:
			out.FreeTokens += entry.Tokens
		case ledgerdomain.KindPurchase, ledgerdomain.KindAdjustment:
			out.PaidTokens += entry.Tokens
		case ledgerdomain.KindUsage:
			used := -entry.Tokens
			out.TotalUsed += used
			if out.FreeTokens >= used {
				out.FreeTokens -= used
			} else {
				out.PaidTokens -= used - out.FreeTokens
				out.FreeTokens = 0
			}
		}
	}
	out.Balance = out.FreeTokens + out.PaidTokens
	return out, nil
}

func (s *Service) ensureState(ctx context.Context, tx *gorm.DB, userID string, now time.Time) error {
	// States created here belong to users who never had the deprecated
	// flat counter, so they are born already migrated.
	return tx.WithContext(ctx).Exec(
		`INSERT INTO user_token_states (user_id, free_tokens, paid_tokens, total_used, legacy_credits, legacy_migrated, created_at, updated_at)
		 VALUES (?, 0, 0, 0, 0, ?, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
		true,
		now,
		now,
	).Error
}
