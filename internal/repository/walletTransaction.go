package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cradoe/fundsrail/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type WalletTransactionRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, walletTx *models.WalletTransaction) (string, error)
	GetOne(ctx context.Context, id string) (*models.WalletTransaction, bool, error)
	GetOneForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.WalletTransaction, error)
	HasInFlight(ctx context.Context, userID, transactionType string) (bool, error)
	SumSince(ctx context.Context, userID, transactionType, currency string, since time.Time) (int64, error)
	UpdateStatus(ctx context.Context, tx *sqlx.Tx, id string, from []string, status string, failureReason sql.NullString) (bool, error)
	UpdateQuoteRef(ctx context.Context, tx *sqlx.Tx, id, quoteRef string) error
	Complete(ctx context.Context, tx *sqlx.Tx, id string, balanceBefore, balanceAfter int64) error
}

type WalletTransactionRepositoryImpl struct {
	db *sqlx.DB
}

func NewWalletTransactionRepository(db *sqlx.DB) WalletTransactionRepository {
	return &WalletTransactionRepositoryImpl{db: db}
}

const walletTransactionColumns = `id, transaction_id, wallet_id, user_id, transaction_type, amount, balance_before, balance_after,
	currency, status, provider, provider_quote_ref, source, destination, external_account_id, failure_reason, created_at, updated_at`

func (repo *WalletTransactionRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, walletTx *models.WalletTransaction) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		INSERT INTO wallet_transactions (transaction_id, wallet_id, user_id, transaction_type, amount, balance_before,
			balance_after, currency, status, provider, provider_quote_ref, source, destination, external_account_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at`

	err := ext(repo.db, tx).QueryRowxContext(ctx, query,
		walletTx.TransactionID,
		walletTx.WalletID,
		walletTx.UserID,
		walletTx.Type,
		walletTx.Amount,
		walletTx.BalanceBefore,
		walletTx.BalanceAfter,
		walletTx.Currency,
		walletTx.Status,
		walletTx.Provider,
		walletTx.ProviderQuoteRef,
		walletTx.Source,
		walletTx.Destination,
		walletTx.ExternalAccountID,
	).Scan(&walletTx.ID, &walletTx.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrDuplicate
		}
		return "", err
	}

	return walletTx.ID, nil
}

func (repo *WalletTransactionRepositoryImpl) GetOne(ctx context.Context, id string) (*models.WalletTransaction, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var walletTx models.WalletTransaction

	query := `SELECT ` + walletTransactionColumns + ` FROM wallet_transactions WHERE id = $1`

	err := repo.db.GetContext(ctx, &walletTx, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &walletTx, true, nil
}

func (repo *WalletTransactionRepositoryImpl) GetOneForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.WalletTransaction, error) {
	var walletTx models.WalletTransaction

	query := `SELECT ` + walletTransactionColumns + ` FROM wallet_transactions WHERE id = $1 FOR UPDATE`

	if err := tx.GetContext(ctx, &walletTx, query, id); err != nil {
		return nil, err
	}

	return &walletTx, nil
}

func (repo *WalletTransactionRepositoryImpl) HasInFlight(ctx context.Context, userID, transactionType string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var exists bool

	query := `
		SELECT EXISTS(
			SELECT 1 FROM wallet_transactions
			WHERE user_id = $1 AND transaction_type = $2 AND status = ANY($3)
		)`

	err := repo.db.GetContext(ctx, &exists, query, userID, transactionType, pq.Array(models.InFlightStatuses))
	if err != nil {
		return false, err
	}

	return exists, nil
}

// SumSince totals non-failed transfers of a type in one currency created after since, for velocity limits.
func (repo *WalletTransactionRepositoryImpl) SumSince(ctx context.Context, userID, transactionType, currency string, since time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var total int64

	query := `
		SELECT COALESCE(SUM(amount), 0) FROM wallet_transactions
		WHERE user_id = $1 AND transaction_type = $2 AND currency = $3 AND created_at >= $4
		AND status NOT IN ('failed', 'cancelled')`

	if err := repo.db.GetContext(ctx, &total, query, userID, transactionType, currency, since); err != nil {
		return 0, err
	}

	return total, nil
}

// UpdateStatus only applies when the row is currently in one of the from statuses.
// It reports whether a row was changed.
func (repo *WalletTransactionRepositoryImpl) UpdateStatus(ctx context.Context, tx *sqlx.Tx, id string, from []string, status string, failureReason sql.NullString) (bool, error) {
	query := `
		UPDATE wallet_transactions SET status = $1, failure_reason = COALESCE($2, failure_reason), updated_at = NOW()
		WHERE id = $3 AND status = ANY($4)`

	res, err := ext(repo.db, tx).ExecContext(ctx, query, status, failureReason, id, pq.Array(from))
	if err != nil {
		if isUniqueViolation(err) {
			return false, ErrDuplicate
		}
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (repo *WalletTransactionRepositoryImpl) UpdateQuoteRef(ctx context.Context, tx *sqlx.Tx, id, quoteRef string) error {
	query := `UPDATE wallet_transactions SET provider_quote_ref = $1, updated_at = NOW() WHERE id = $2`

	_, err := ext(repo.db, tx).ExecContext(ctx, query, quoteRef, id)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (repo *WalletTransactionRepositoryImpl) Complete(ctx context.Context, tx *sqlx.Tx, id string, balanceBefore, balanceAfter int64) error {
	query := `
		UPDATE wallet_transactions SET status = $1, balance_before = $2, balance_after = $3, updated_at = NOW()
		WHERE id = $4`

	_, err := ext(repo.db, tx).ExecContext(ctx, query, models.StatusCompleted, balanceBefore, balanceAfter, id)
	return err
}
