package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cradoe/fundsrail/internal/models"
	"github.com/jmoiron/sqlx"
)

type KycRepository interface {
	GetAll(ctx context.Context) ([]models.KYCLevel, error)
	GetOne(ctx context.Context, id string) (*models.KYCLevel, bool, error)
	GetForUser(ctx context.Context, userID string) (*models.KYCLevel, bool, error)
	Insert(ctx context.Context, tx *sqlx.Tx, level *models.KYCLevel) (string, error)
}

type KycRepositoryImpl struct {
	db *sqlx.DB
}

func NewKycRepository(db *sqlx.DB) KycRepository {
	return &KycRepositoryImpl{db: db}
}

const kycLevelColumns = `id, level_name, currency, daily_transfer_limit, single_transfer_limit, daily_deposit_limit`

func (repo *KycRepositoryImpl) GetAll(ctx context.Context) ([]models.KYCLevel, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var levels []models.KYCLevel

	query := `SELECT ` + kycLevelColumns + ` FROM kyc_levels ORDER BY level_name`

	if err := repo.db.SelectContext(ctx, &levels, query); err != nil {
		return nil, err
	}

	return levels, nil
}

func (repo *KycRepositoryImpl) GetOne(ctx context.Context, id string) (*models.KYCLevel, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var level models.KYCLevel

	query := `SELECT ` + kycLevelColumns + ` FROM kyc_levels WHERE id = $1`

	err := repo.db.GetContext(ctx, &level, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &level, true, nil
}

// GetForUser resolves the tier assigned to a user. Users without a tier get none.
func (repo *KycRepositoryImpl) GetForUser(ctx context.Context, userID string) (*models.KYCLevel, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var level models.KYCLevel

	query := `
		SELECT kl.id, kl.level_name, kl.currency, kl.daily_transfer_limit, kl.single_transfer_limit, kl.daily_deposit_limit
		FROM kyc_levels kl
		JOIN users u ON u.kyc_level_id = kl.id
		WHERE u.id = $1`

	err := repo.db.GetContext(ctx, &level, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &level, true, nil
}

func (repo *KycRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, level *models.KYCLevel) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var id string

	query := `
		INSERT INTO kyc_levels (level_name, currency, daily_transfer_limit, single_transfer_limit, daily_deposit_limit)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (level_name) DO UPDATE SET
			currency = EXCLUDED.currency,
			daily_transfer_limit = EXCLUDED.daily_transfer_limit,
			single_transfer_limit = EXCLUDED.single_transfer_limit,
			daily_deposit_limit = EXCLUDED.daily_deposit_limit
		RETURNING id`

	err := sqlx.GetContext(ctx, ext(repo.db, tx), &id, query,
		level.LevelName,
		level.Currency,
		level.DailyTransferLimit,
		level.SingleTransferLimit,
		level.DailyDepositLimit,
	)
	if err != nil {
		return "", err
	}

	return id, nil
}
