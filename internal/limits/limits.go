package limits

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cradoe/fundsrail/internal/apperr"
	"github.com/cradoe/fundsrail/internal/models"
)

type TierSource interface {
	GetForUser(ctx context.Context, userID string) (*models.KYCLevel, bool, error)
}

type UsageSource interface {
	SumTransfersSince(ctx context.Context, userID, transferType, currency string, since time.Time) (int64, error)
}

// Validator enforces the per-transfer and daily limits of the user's KYC tier.
type Validator struct {
	tiers TierSource
	usage UsageSource
	now   func() time.Time
}

func NewValidator(tiers TierSource, usage UsageSource) *Validator {
	return &Validator{tiers: tiers, usage: usage, now: time.Now}
}

// ValidateLimit checks amount (minor units of currency) against the user's tier.
// A zero limit means the tier does not cap that window.
func (v *Validator) ValidateLimit(ctx context.Context, userID string, amount int64, currency, transferType string) error {
	tier, found, err := v.tiers.GetForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load kyc tier: %w", err)
	}
	if !found {
		return apperr.BadRequest("Your account has no verification tier yet")
	}

	if tier.Currency != "" && !strings.EqualFold(tier.Currency, currency) {
		return apperr.BadRequest(fmt.Sprintf("Transfers in %s are not available on your tier", strings.ToUpper(currency)))
	}

	if tier.SingleTransferLimit > 0 && amount > tier.SingleTransferLimit {
		return apperr.LimitExceeded(fmt.Sprintf("Amount exceeds your single transfer limit of %s %s",
			models.FromMinorUnits(tier.SingleTransferLimit, currency).StringFixed(models.AssetDecimals(currency)), strings.ToUpper(currency)))
	}

	daily := tier.DailyTransferLimit
	if transferType == models.TransactionTypeDeposit {
		daily = tier.DailyDepositLimit
	}
	if daily <= 0 {
		return nil
	}

	now := v.now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	used, err := v.usage.SumTransfersSince(ctx, userID, transferType, strings.ToUpper(currency), startOfDay)
	if err != nil {
		return fmt.Errorf("sum daily usage: %w", err)
	}

	if used+amount > daily {
		return apperr.LimitExceeded(fmt.Sprintf("Amount exceeds your daily %s limit", transferType))
	}

	return nil
}
