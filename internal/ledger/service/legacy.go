package service

import (
	"context"

	ledgerdomain "github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/ledger/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MigrateLegacyCredits converts the deprecated flat credits counter into
// free tokens, one batch at a time. Each user is converted in its own
// transaction and flagged, so the pass survives interruption and re-runs
// skip everyone already converted.
func (s *Service) MigrateLegacyCredits(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	migrated := 0
	for {
		var pending []ledgerdomain.UserTokenState
		err := s.db.WithContext(ctx).
			Where("legacy_migrated = ?", false).
			Order("user_id asc").
			Limit(batchSize).
			Find(&pending).Error
		if err != nil {
			return migrated, err
		}
		if len(pending) == 0 {
			return migrated, nil
		}

		for _, state := range pending {
			if err := s.migrateOne(ctx, state); err != nil {
				return migrated, err
			}
			migrated++
		}
	}
}

func (s *Service) migrateOne(ctx context.Context, state ledgerdomain.UserTokenState) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()

		// Flag flip is conditional on the flag still being unset, so two
		// overlapping runs convert each user at most once.
		result := tx.WithContext(ctx).Exec(
			`UPDATE user_token_states
			 SET free_tokens = free_tokens + legacy_credits,
			     legacy_migrated = ?,
			     updated_at = ?
			 WHERE user_id = ? AND legacy_migrated = ?`,
			true,
			now,
			state.UserID,
			false,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		if state.LegacyCredits == 0 {
			return nil
		}

		s.log.Info("migrated legacy credits",
			zap.String("user_id", state.UserID),
			zap.Int64("credits", state.LegacyCredits),
		)
		return tx.WithContext(ctx).Exec(
			`INSERT INTO token_ledger_entries (id, user_id, kind, tokens, order_id, note, created_at)
			 VALUES (?, ?, ?, ?, NULL, ?, ?)`,
			s.genID.Generate(),
			state.UserID,
			string(ledgerdomain.KindMigration),
			state.LegacyCredits,
			"legacy credits migration",
			now,
		).Error
	})
}
