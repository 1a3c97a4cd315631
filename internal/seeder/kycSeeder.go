package seeders

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cradoe/fundsrail/internal/models"
)

// limits are in cents
var kycLevels = []models.KYCLevel{
	{
		LevelName:           "Tier 1",
		Currency:            "USD",
		DailyTransferLimit:  50_000,
		SingleTransferLimit: 10_000,
		DailyDepositLimit:   50_000,
	},
	{
		LevelName:           "Tier 2",
		Currency:            "USD",
		DailyTransferLimit:  2_000_000,
		SingleTransferLimit: 500_000,
		DailyDepositLimit:   2_000_000,
	},
	{
		LevelName:           "Tier 3",
		Currency:            "USD",
		DailyTransferLimit:  50_000_000,
		SingleTransferLimit: 10_000_000,
	},
}

// seedKycData upserts the tiers in one transaction, so re-running updates their limits.
func (seeder *Seeder) seedKycData(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := seeder.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start kyc seed: %w", err)
	}
	defer tx.Rollback()

	for _, level := range kycLevels {
		id, err := seeder.DB.KYC().Insert(ctx, tx, &level)
		if err != nil {
			return fmt.Errorf("seed kyc level %q: %w", level.LevelName, err)
		}
		seeder.logger.Debug("seeded kyc level", slog.String("level", level.LevelName), slog.String("id", id))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit kyc seed: %w", err)
	}

	seeder.logger.Info("kyc levels seeded", slog.Int("count", len(kycLevels)))
	return nil
}
