package seed

import (
	"context"
	"errors"
	"time"

	plandomain "github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/plan/domain"
	"gorm.io/gorm"
)

var defaultPlans = []plandomain.Plan{
	{ID: "starter", Name: "Starter Pack", AmountCents: 9900, Currency: "INR", Tokens: 10000, Active: true},
	{ID: "standard", Name: "Standard Pack", AmountCents: 19900, Currency: "INR", Tokens: 20000, Active: true},
	{ID: "pro", Name: "Pro Pack", AmountCents: 49900, Currency: "INR", Tokens: 50000, Active: true},
}

// EnsureDefaultPlans seeds the token pack catalog for startup bootstrap.
// Existing plans are left untouched so operators can reprice.
func EnsureDefaultPlans(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	now := time.Now().UTC()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, plan := range defaultPlans {
			var count int64
			if err := tx.WithContext(ctx).
				Model(&plandomain.Plan{}).
				Where("id = ?", plan.ID).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}

			plan.CreatedAt = now
			plan.UpdatedAt = now
			if err := tx.WithContext(ctx).Create(&plan).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
