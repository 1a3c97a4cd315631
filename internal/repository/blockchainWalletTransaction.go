package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cradoe/fundsrail/internal/models"
	"github.com/jmoiron/sqlx"
)

// ErrLinkConflict means the row is already linked to a different main transaction.
var ErrLinkConflict = errors.New("blockchain wallet transaction linked to another transaction")

type BlockchainWalletTransactionRepository interface {
	GetOne(ctx context.Context, id string) (*models.BlockchainWalletTransaction, bool, error)
	GetOneForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.BlockchainWalletTransaction, error)
	MarkCompleted(ctx context.Context, tx *sqlx.Tx, id string, settlement BlockchainSettlement) (string, error)
	LinkMainTransaction(ctx context.Context, id, mainTransactionID string) error
	ListUnlinkedSettled(ctx context.Context, limit int) ([]UnlinkedSettlement, error)
}

// BlockchainSettlement is the provider-confirmed data applied when a debit settles.
type BlockchainSettlement struct {
	TxHash       string
	BalanceAfter int64
	Description  string
}

// UnlinkedSettlement pairs a settled debit with its committed main transaction.
type UnlinkedSettlement struct {
	WalletTransactionID string `db:"wallet_transaction_id"`
	TransactionID       string `db:"transaction_id"`
}

type BlockchainWalletTransactionRepositoryImpl struct {
	db *sqlx.DB
}

func NewBlockchainWalletTransactionRepository(db *sqlx.DB) BlockchainWalletTransactionRepository {
	return &BlockchainWalletTransactionRepositoryImpl{db: db}
}

const blockchainWalletTransactionColumns = `id, blockchain_wallet_id, asset, amount, balance_before, balance_after, transaction_type,
	status, direction, tx_hash, peer_wallet_id, main_transaction_id, idempotency_key, description, failure_reason, created_at, updated_at`

func (repo *BlockchainWalletTransactionRepositoryImpl) GetOne(ctx context.Context, id string) (*models.BlockchainWalletTransaction, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var walletTx models.BlockchainWalletTransaction

	query := `SELECT ` + blockchainWalletTransactionColumns + ` FROM blockchain_wallet_transactions WHERE id = $1`

	err := repo.db.GetContext(ctx, &walletTx, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &walletTx, true, nil
}

func (repo *BlockchainWalletTransactionRepositoryImpl) GetOneForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.BlockchainWalletTransaction, error) {
	var walletTx models.BlockchainWalletTransaction

	query := `SELECT ` + blockchainWalletTransactionColumns + ` FROM blockchain_wallet_transactions WHERE id = $1 FOR UPDATE`

	if err := tx.GetContext(ctx, &walletTx, query, id); err != nil {
		return nil, err
	}

	return &walletTx, nil
}

// MarkCompleted settles a pending row without touching main_transaction_id and returns the updated id.
func (repo *BlockchainWalletTransactionRepositoryImpl) MarkCompleted(ctx context.Context, tx *sqlx.Tx, id string, settlement BlockchainSettlement) (string, error) {
	var updatedID string

	query := `
		UPDATE blockchain_wallet_transactions
		SET status = $1, tx_hash = $2, balance_after = $3, description = COALESCE(NULLIF($4, ''), description), updated_at = NOW()
		WHERE id = $5 AND status = $6
		RETURNING id`

	err := sqlx.GetContext(ctx, ext(repo.db, tx), &updatedID, query,
		models.StatusCompleted,
		settlement.TxHash,
		settlement.BalanceAfter,
		settlement.Description,
		id,
		models.StatusPending,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrStateChanged
		}
		return "", err
	}

	return updatedID, nil
}

// LinkMainTransaction is idempotent for the same main transaction id.
func (repo *BlockchainWalletTransactionRepositoryImpl) LinkMainTransaction(ctx context.Context, id, mainTransactionID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		UPDATE blockchain_wallet_transactions SET main_transaction_id = $1, updated_at = NOW()
		WHERE id = $2 AND (main_transaction_id IS NULL OR main_transaction_id = $1)`

	res, err := repo.db.ExecContext(ctx, query, mainTransactionID, id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLinkConflict
	}

	return nil
}

func (repo *BlockchainWalletTransactionRepositoryImpl) ListUnlinkedSettled(ctx context.Context, limit int) ([]UnlinkedSettlement, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var pending []UnlinkedSettlement

	query := `
		SELECT b.id AS wallet_transaction_id, t.id AS transaction_id
		FROM blockchain_wallet_transactions b
		JOIN transactions t ON t.reference = b.id::text
		WHERE b.status = $1 AND b.direction = $2 AND b.main_transaction_id IS NULL
		ORDER BY b.updated_at
		LIMIT $3`

	err := repo.db.SelectContext(ctx, &pending, query, models.StatusCompleted, models.DirectionDebit, limit)
	if err != nil {
		return nil, err
	}

	return pending, nil
}
