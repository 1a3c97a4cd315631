package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cradoe/fundsrail/internal/models"
	"github.com/jmoiron/sqlx"
)

type BlockchainWalletRepository interface {
	GetOne(ctx context.Context, id string) (*models.BlockchainWallet, bool, error)
}

type BlockchainWalletRepositoryImpl struct {
	db *sqlx.DB
}

func NewBlockchainWalletRepository(db *sqlx.DB) BlockchainWalletRepository {
	return &BlockchainWalletRepositoryImpl{db: db}
}

func (repo *BlockchainWalletRepositoryImpl) GetOne(ctx context.Context, id string) (*models.BlockchainWallet, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var wallet models.BlockchainWallet

	query := `SELECT id, user_id, asset, address, balance, created_at FROM blockchain_wallets WHERE id = $1`

	err := repo.db.GetContext(ctx, &wallet, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &wallet, true, nil
}
