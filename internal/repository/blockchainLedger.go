package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cradoe/fundsrail/internal/models"
	"github.com/jmoiron/sqlx"
)

// BlockchainLedgerRepository carries the two-phase settlement of blockchain wallet debits.
// SettleDebit is phase one; LinkMainTransaction is phase two and only ever runs after
// phase one committed.
type BlockchainLedgerRepository interface {
	GetBlockchainTransaction(ctx context.Context, id string) (*models.BlockchainWalletTransaction, bool, error)
	SettleDebit(ctx context.Context, walletTxID string, main *models.Transaction, settlement BlockchainSettlement) (string, error)
	LinkMainTransaction(ctx context.Context, walletTxID, mainTransactionID string) error
	ListUnlinkedSettled(ctx context.Context, limit int) ([]UnlinkedSettlement, error)
}

type BlockchainLedgerRepositoryImpl struct {
	db            *sqlx.DB
	transactions  TransactionRepository
	blockchainTxs BlockchainWalletTransactionRepository
}

func NewBlockchainLedgerRepository(db *sqlx.DB, transactions TransactionRepository, blockchainTxs BlockchainWalletTransactionRepository) BlockchainLedgerRepository {
	return &BlockchainLedgerRepositoryImpl{
		db:            db,
		transactions:  transactions,
		blockchainTxs: blockchainTxs,
	}
}

func (repo *BlockchainLedgerRepositoryImpl) GetBlockchainTransaction(ctx context.Context, id string) (*models.BlockchainWalletTransaction, bool, error) {
	return repo.blockchainTxs.GetOne(ctx, id)
}

// SettleDebit inserts the completed main transaction, completes the wallet row and points the
// main transaction's reference at the updated wallet row. main_transaction_id is not set here.
func (repo *BlockchainLedgerRepositoryImpl) SettleDebit(ctx context.Context, walletTxID string, main *models.Transaction, settlement BlockchainSettlement) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		walletTx, err := repo.blockchainTxs.GetOneForUpdate(ctx, tx, walletTxID)
		if err != nil {
			return err
		}
		if walletTx.Status != models.StatusPending || walletTx.Direction != models.DirectionDebit {
			return ErrStateChanged
		}

		main.Reference = walletTx.ID
		if _, err := repo.transactions.Insert(ctx, tx, main); err != nil {
			return fmt.Errorf("insert main transaction: %w", err)
		}

		updatedID, err := repo.blockchainTxs.MarkCompleted(ctx, tx, walletTx.ID, settlement)
		if err != nil {
			return fmt.Errorf("complete blockchain wallet transaction: %w", err)
		}

		if err := repo.transactions.UpdateReference(ctx, tx, main.ID, updatedID); err != nil {
			return fmt.Errorf("update main transaction reference: %w", err)
		}
		main.Reference = updatedID

		return nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("blockchain wallet transaction %s: %w", walletTxID, err)
		}
		return "", err
	}

	return main.ID, nil
}

func (repo *BlockchainLedgerRepositoryImpl) LinkMainTransaction(ctx context.Context, walletTxID, mainTransactionID string) error {
	return repo.blockchainTxs.LinkMainTransaction(ctx, walletTxID, mainTransactionID)
}

func (repo *BlockchainLedgerRepositoryImpl) ListUnlinkedSettled(ctx context.Context, limit int) ([]UnlinkedSettlement, error) {
	return repo.blockchainTxs.ListUnlinkedSettled(ctx, limit)
}
