package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cradoe/fundsrail/internal/models"
	"github.com/jmoiron/sqlx"
)

// LedgerRepository groups the multi-row units of the deposit/withdraw saga.
// Every method that writes runs in its own database transaction.
type LedgerRepository interface {
	HasInFlightTransfer(ctx context.Context, userID, transferType string) (bool, error)
	SumTransfersSince(ctx context.Context, userID, transferType, currency string, since time.Time) (int64, error)
	UserWallet(ctx context.Context, userID, currency string) (*models.Wallet, bool, error)
	GetWalletTransaction(ctx context.Context, id string) (*models.WalletTransaction, bool, error)
	GetTransaction(ctx context.Context, id string) (*models.Transaction, bool, error)

	CreatePending(ctx context.Context, transaction *models.Transaction, walletTx *models.WalletTransaction) error
	Transition(ctx context.Context, walletTxID string, from []string, to string, reason sql.NullString) (bool, error)
	RefreshQuote(ctx context.Context, walletTxID string, quote models.Quote, metadata models.TransactionMetadata) (bool, error)
	RecordExecution(ctx context.Context, walletTxID, externalRef string) (bool, error)
	CompleteFunding(ctx context.Context, walletTxID, externalRef string) (*FundingOutcome, error)
}

// FundingOutcome reports what the queue consumer's finalisation did.
type FundingOutcome struct {
	Applied       bool
	Status        string
	BalanceBefore int64
	BalanceAfter  int64
}

type LedgerRepositoryImpl struct {
	db           *sqlx.DB
	transactions TransactionRepository
	walletTxs    WalletTransactionRepository
	wallets      WalletRepository
}

func NewLedgerRepository(db *sqlx.DB, transactions TransactionRepository, walletTxs WalletTransactionRepository, wallets WalletRepository) LedgerRepository {
	return &LedgerRepositoryImpl{
		db:           db,
		transactions: transactions,
		walletTxs:    walletTxs,
		wallets:      wallets,
	}
}

func (repo *LedgerRepositoryImpl) HasInFlightTransfer(ctx context.Context, userID, transferType string) (bool, error) {
	return repo.walletTxs.HasInFlight(ctx, userID, transferType)
}

func (repo *LedgerRepositoryImpl) SumTransfersSince(ctx context.Context, userID, transferType, currency string, since time.Time) (int64, error) {
	return repo.walletTxs.SumSince(ctx, userID, transferType, currency, since)
}

func (repo *LedgerRepositoryImpl) UserWallet(ctx context.Context, userID, currency string) (*models.Wallet, bool, error) {
	return repo.wallets.GetByUserAndCurrency(ctx, userID, currency)
}

func (repo *LedgerRepositoryImpl) GetWalletTransaction(ctx context.Context, id string) (*models.WalletTransaction, bool, error) {
	return repo.walletTxs.GetOne(ctx, id)
}

func (repo *LedgerRepositoryImpl) GetTransaction(ctx context.Context, id string) (*models.Transaction, bool, error) {
	return repo.transactions.GetOne(ctx, id)
}

// CreatePending writes the Transaction and its WalletTransaction in one unit.
// The wallet row references the transaction id assigned inside the same unit.
func (repo *LedgerRepositoryImpl) CreatePending(ctx context.Context, transaction *models.Transaction, walletTx *models.WalletTransaction) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		transactionID, err := repo.transactions.Insert(ctx, tx, transaction)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		walletTx.TransactionID = sql.NullString{String: transactionID, Valid: true}
		if _, err := repo.walletTxs.Insert(ctx, tx, walletTx); err != nil {
			return fmt.Errorf("insert wallet transaction: %w", err)
		}

		return nil
	})
}

// Transition moves both rows to the target status when the wallet row is in one of from.
// It reports false, with nothing written, when the wallet row is in any other status.
func (repo *LedgerRepositoryImpl) Transition(ctx context.Context, walletTxID string, from []string, to string, reason sql.NullString) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	applied := false

	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		walletTx, err := repo.walletTxs.GetOneForUpdate(ctx, tx, walletTxID)
		if err != nil {
			return err
		}

		updated, err := repo.walletTxs.UpdateStatus(ctx, tx, walletTx.ID, from, to, reason)
		if err != nil || !updated {
			return err
		}

		if walletTx.TransactionID.Valid {
			if err := repo.transactions.UpdateStatus(ctx, tx, walletTx.TransactionID.String, to, reason); err != nil {
				return err
			}
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return applied, nil
}

// RefreshQuote replaces provider_quote_ref and the quote snapshot while the row is still in review.
func (repo *LedgerRepositoryImpl) RefreshQuote(ctx context.Context, walletTxID string, quote models.Quote, metadata models.TransactionMetadata) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	applied := false

	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		walletTx, err := repo.walletTxs.GetOneForUpdate(ctx, tx, walletTxID)
		if err != nil {
			return err
		}
		if walletTx.Status != models.StatusReview || !walletTx.TransactionID.Valid {
			return nil
		}

		if err := repo.walletTxs.UpdateQuoteRef(ctx, tx, walletTx.ID, quote.QuoteRef); err != nil {
			return err
		}

		metadata.Quote = &quote
		if err := repo.transactions.UpdateMetadata(ctx, tx, walletTx.TransactionID.String, metadata); err != nil {
			return err
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return applied, nil
}

// RecordExecution stores the provider's execution ref on the main transaction while the
// wallet transaction is still processing, so a redelivered job finalises without executing
// the quote again.
func (repo *LedgerRepositoryImpl) RecordExecution(ctx context.Context, walletTxID, externalRef string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	applied := false

	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		walletTx, err := repo.walletTxs.GetOneForUpdate(ctx, tx, walletTxID)
		if err != nil {
			return err
		}
		if walletTx.Status != models.StatusProcessing || !walletTx.TransactionID.Valid {
			return nil
		}

		applied, err = repo.transactions.SetExternalReference(ctx, tx, walletTx.TransactionID.String, externalRef)
		return err
	})
	if err != nil {
		return false, err
	}

	return applied, nil
}

// CompleteFunding reconciles the wallet balance once the provider executed the quote.
// Deposits credit the wallet, withdrawals debit it. Rows that are no longer processing
// (moved to review by a webhook, for instance) are left untouched.
func (repo *LedgerRepositoryImpl) CompleteFunding(ctx context.Context, walletTxID, externalRef string) (*FundingOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	outcome := &FundingOutcome{}

	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		walletTx, err := repo.walletTxs.GetOneForUpdate(ctx, tx, walletTxID)
		if err != nil {
			return err
		}

		outcome.Status = walletTx.Status
		if walletTx.Status != models.StatusProcessing {
			return nil
		}

		wallet, err := repo.wallets.GetOneForUpdate(ctx, tx, walletTx.WalletID)
		if err != nil {
			return err
		}

		delta := walletTx.Amount
		if walletTx.Type == models.TransactionTypeWithdrawal {
			delta = -walletTx.Amount
		}

		balanceAfter, err := repo.wallets.ApplyDelta(ctx, tx, wallet.ID, delta)
		if err != nil {
			return err
		}

		if err := repo.walletTxs.Complete(ctx, tx, walletTx.ID, wallet.Balance, balanceAfter); err != nil {
			return err
		}
		if walletTx.TransactionID.Valid {
			if err := repo.transactions.Complete(ctx, tx, walletTx.TransactionID.String, wallet.Balance, balanceAfter, externalRef); err != nil {
				return err
			}
		}

		outcome.Applied = true
		outcome.Status = models.StatusCompleted
		outcome.BalanceBefore = wallet.Balance
		outcome.BalanceAfter = balanceAfter
		return nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("wallet transaction %s: %w", walletTxID, err)
		}
		return nil, err
	}

	return outcome, nil
}
