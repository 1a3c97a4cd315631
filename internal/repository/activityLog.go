// Every state change of a ledger entry is recorded as an activity, so a transfer can be
// traced across the request path, the webhook path and the queue consumer.
// entity and entity_id are polymorphic; the table serves every ledger table.
package repository

import (
	"context"

	"github.com/cradoe/fundsrail/internal/models"
	"github.com/jmoiron/sqlx"
)

type ActivityRepository interface {
	Insert(ctx context.Context, log *models.ActivityLog) (*models.ActivityLog, error)
}

const (
	// ActivityLogTransactionEntity is used in actions that has to do with transactions and the transactions table
	ActivityLogTransactionEntity = "transaction"

	// ActivityLogWalletTransactionEntity is used for changes to wallet_transactions rows
	ActivityLogWalletTransactionEntity = "wallet_transaction"

	// ActivityLogBlockchainTransactionEntity is used for blockchain wallet transaction settlement
	ActivityLogBlockchainTransactionEntity = "blockchain_wallet_transaction"
)

type ActivityRepositoryImpl struct {
	db *sqlx.DB
}

func NewActivityRepository(db *sqlx.DB) ActivityRepository {
	return &ActivityRepositoryImpl{db: db}
}

func (repo *ActivityRepositoryImpl) Insert(ctx context.Context, log *models.ActivityLog) (*models.ActivityLog, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var activity models.ActivityLog

	query := `
		INSERT INTO activity_logs (user_id, entity, entity_id, status, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, entity, entity_id, status, description, created_at`

	err := repo.db.GetContext(ctx, &activity, query,
		log.UserID,
		log.Entity,
		log.EntityID,
		log.Status,
		log.Description,
	)

	if err != nil {
		return nil, err
	}

	return &activity, nil
}
