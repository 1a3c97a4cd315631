package repository

import (
	"context"

	"github.com/cradoe/fundsrail/internal/models"
	"github.com/jmoiron/sqlx"
)

type ExternalAccountRepository interface {
	GetAllByUserAndProvider(ctx context.Context, userID, provider string) ([]models.ExternalAccount, error)
}

type ExternalAccountRepositoryImpl struct {
	db *sqlx.DB
}

func NewExternalAccountRepository(db *sqlx.DB) ExternalAccountRepository {
	return &ExternalAccountRepositoryImpl{db: db}
}

func (repo *ExternalAccountRepositoryImpl) GetAllByUserAndProvider(ctx context.Context, userID, provider string) ([]models.ExternalAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var accounts []models.ExternalAccount

	query := `
		SELECT id, user_id, provider, participant_code, status, provider_kyc_status, access_token, account_ref, currency, created_at
		FROM external_accounts
		WHERE user_id = $1 AND provider = $2
		ORDER BY created_at`

	if err := repo.db.SelectContext(ctx, &accounts, query, userID, provider); err != nil {
		return nil, err
	}

	return accounts, nil
}
