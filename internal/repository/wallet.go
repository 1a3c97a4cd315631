package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cradoe/fundsrail/internal/models"
	"github.com/jmoiron/sqlx"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

type WalletRepository interface {
	GetByUserAndCurrency(ctx context.Context, userID, currency string) (*models.Wallet, bool, error)
	GetOneForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Wallet, error)
	ApplyDelta(ctx context.Context, tx *sqlx.Tx, id string, delta int64) (int64, error)
}

type WalletRepositoryImpl struct {
	db *sqlx.DB
}

func NewWalletRepository(db *sqlx.DB) WalletRepository {
	return &WalletRepositoryImpl{db: db}
}

func (repo *WalletRepositoryImpl) GetByUserAndCurrency(ctx context.Context, userID, currency string) (*models.Wallet, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var wallet models.Wallet

	query := `
        SELECT id, user_id, balance, currency, status, created_at FROM wallets
        WHERE user_id=$1 AND currency=$2 AND deleted_at IS NULL`

	err := repo.db.GetContext(ctx, &wallet, query, userID, currency)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &wallet, true, nil
}

// GetOneForUpdate holds a pessimistic row lock on the wallet until tx ends.
func (repo *WalletRepositoryImpl) GetOneForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Wallet, error) {
	var wallet models.Wallet

	query := `
		SELECT id, user_id, balance, currency, status, created_at FROM wallets
		WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`

	if err := tx.GetContext(ctx, &wallet, query, id); err != nil {
		return nil, err
	}

	return &wallet, nil
}

// ApplyDelta credits (positive) or debits (negative) the wallet and returns the new balance.
// A debit that would take the balance below zero is refused.
func (repo *WalletRepositoryImpl) ApplyDelta(ctx context.Context, tx *sqlx.Tx, id string, delta int64) (int64, error) {
	var balance int64

	query := `
		UPDATE wallets SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2 AND deleted_at IS NULL AND balance + $1 >= 0
		RETURNING balance`

	err := tx.GetContext(ctx, &balance, query, delta, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrInsufficientBalance
		}
		return 0, err
	}

	return balance, nil
}
