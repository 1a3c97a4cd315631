package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cradoe/fundsrail/internal/models"
	"github.com/jmoiron/sqlx"
)

// ProviderKycRepository looks up the user's identity record at the bank-link provider.
type ProviderKycRepository interface {
	FindByUserID(ctx context.Context, userID, provider string) (*models.ProviderKyc, bool, error)
}

type ProviderKycRepositoryImpl struct {
	db *sqlx.DB
}

func NewProviderKycRepository(db *sqlx.DB) ProviderKycRepository {
	return &ProviderKycRepositoryImpl{db: db}
}

func (repo *ProviderKycRepositoryImpl) FindByUserID(ctx context.Context, userID, provider string) (*models.ProviderKyc, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var record models.ProviderKyc

	query := `
		SELECT id, user_id, provider, provider_ref, status, created_at
		FROM provider_kyc WHERE user_id = $1 AND provider = $2`

	err := repo.db.GetContext(ctx, &record, query, userID, provider)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &record, true, nil
}
