package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cradoe/fundsrail/internal/models"
	"github.com/jmoiron/sqlx"
)

type TransactionRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, transaction *models.Transaction) (string, error)
	GetOne(ctx context.Context, id string) (*models.Transaction, bool, error)
	UpdateStatus(ctx context.Context, tx *sqlx.Tx, id, status string, failureReason sql.NullString) error
	UpdateReference(ctx context.Context, tx *sqlx.Tx, id, reference string) error
	UpdateMetadata(ctx context.Context, tx *sqlx.Tx, id string, metadata models.TransactionMetadata) error
	SetExternalReference(ctx context.Context, tx *sqlx.Tx, id, externalRef string) (bool, error)
	Complete(ctx context.Context, tx *sqlx.Tx, id string, balanceBefore, balanceAfter int64, externalRef string) error
}

type TransactionRepositoryImpl struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) TransactionRepository {
	return &TransactionRepositoryImpl{db: db}
}

const transactionColumns = `id, user_id, reference, external_reference, asset, amount, balance_before, balance_after,
	transaction_type, category, scope, status, metadata, description, failure_reason, processed_at, created_at, updated_at`

func (repo *TransactionRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, transaction *models.Transaction) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		INSERT INTO transactions (user_id, reference, external_reference, asset, amount, balance_before, balance_after,
			transaction_type, category, scope, status, metadata, description, failure_reason, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at`

	err := ext(repo.db, tx).QueryRowxContext(ctx, query,
		transaction.UserID,
		transaction.Reference,
		transaction.ExternalReference,
		transaction.Asset,
		transaction.Amount,
		transaction.BalanceBefore,
		transaction.BalanceAfter,
		transaction.Type,
		transaction.Category,
		transaction.Scope,
		transaction.Status,
		transaction.Metadata,
		transaction.Description,
		transaction.FailureReason,
		transaction.ProcessedAt,
	).Scan(&transaction.ID, &transaction.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrDuplicate
		}
		return "", err
	}

	return transaction.ID, nil
}

func (repo *TransactionRepositoryImpl) GetOne(ctx context.Context, id string) (*models.Transaction, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var transaction models.Transaction

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	err := repo.db.GetContext(ctx, &transaction, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &transaction, true, nil
}

// UpdateStatus keeps the previous failure reason when failureReason is not valid.
func (repo *TransactionRepositoryImpl) UpdateStatus(ctx context.Context, tx *sqlx.Tx, id, status string, failureReason sql.NullString) error {
	query := `
		UPDATE transactions SET status = $1, failure_reason = COALESCE($2, failure_reason), updated_at = NOW()
		WHERE id = $3`

	_, err := ext(repo.db, tx).ExecContext(ctx, query, status, failureReason, id)
	return err
}

func (repo *TransactionRepositoryImpl) UpdateReference(ctx context.Context, tx *sqlx.Tx, id, reference string) error {
	query := `UPDATE transactions SET reference = $1, updated_at = NOW() WHERE id = $2`

	_, err := ext(repo.db, tx).ExecContext(ctx, query, reference, id)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (repo *TransactionRepositoryImpl) UpdateMetadata(ctx context.Context, tx *sqlx.Tx, id string, metadata models.TransactionMetadata) error {
	query := `UPDATE transactions SET metadata = $1, updated_at = NOW() WHERE id = $2`

	_, err := ext(repo.db, tx).ExecContext(ctx, query, metadata, id)
	return err
}

// SetExternalReference stores the provider's execution ref once. A different ref already
// on the row is left in place and reported as not applied.
func (repo *TransactionRepositoryImpl) SetExternalReference(ctx context.Context, tx *sqlx.Tx, id, externalRef string) (bool, error) {
	query := `
		UPDATE transactions SET external_reference = $1, updated_at = NOW()
		WHERE id = $2 AND (external_reference IS NULL OR external_reference = $1)`

	res, err := ext(repo.db, tx).ExecContext(ctx, query, externalRef, id)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (repo *TransactionRepositoryImpl) Complete(ctx context.Context, tx *sqlx.Tx, id string, balanceBefore, balanceAfter int64, externalRef string) error {
	query := `
		UPDATE transactions
		SET status = $1, balance_before = $2, balance_after = $3, external_reference = $4, processed_at = NOW(), updated_at = NOW()
		WHERE id = $5`

	_, err := ext(repo.db, tx).ExecContext(ctx, query, models.StatusCompleted, balanceBefore, balanceAfter, externalRef, id)
	return err
}
