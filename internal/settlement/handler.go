// Package settlement completes blockchain wallet debits in two phases: the ledger unit
// commits first, and only then is the wallet row linked to the committed transaction.
package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cradoe/fundsrail/internal/apperr"
	"github.com/cradoe/fundsrail/internal/lock"
	"github.com/cradoe/fundsrail/internal/metrics"
	"github.com/cradoe/fundsrail/internal/models"
	"github.com/cradoe/fundsrail/internal/notify"
	"github.com/cradoe/fundsrail/internal/repository"
)

const msgLockBusy = "This transaction is already being settled, please retry shortly"

type Ledger interface {
	GetBlockchainTransaction(ctx context.Context, id string) (*models.BlockchainWalletTransaction, bool, error)
	SettleDebit(ctx context.Context, walletTxID string, main *models.Transaction, settlement repository.BlockchainSettlement) (string, error)
	LinkMainTransaction(ctx context.Context, walletTxID, mainTransactionID string) error
	ListUnlinkedSettled(ctx context.Context, limit int) ([]repository.UnlinkedSettlement, error)
}

type BackgroundRunner interface {
	BackgroundTask(name string, fn func() error)
}

type Config struct {
	Lock lock.Options
	// LinkRetries bounds the in-request attempts at the second phase
	LinkRetries    int
	LinkRetryDelay time.Duration
}

// Update is the provider-confirmed data for a settled debit.
type Update struct {
	TxHash string `json:"tx_hash"`
	// BalanceAfter is the on-chain balance after the debit, in the asset's smallest unit.
	// The wallet's current balance is used when it is nil.
	BalanceAfter *int64 `json:"balance_after,omitempty"`
	Description  string `json:"description,omitempty"`
}

type Result struct {
	TransactionID       string `json:"transaction_id"`
	WalletTransactionID string `json:"wallet_transaction_id"`
	Reference           string `json:"reference"`
	// Linked is false when the second phase was left to the reconciler
	Linked bool `json:"linked"`
}

type Handler struct {
	cfg        Config
	ledger     Ledger
	locker     lock.Locker
	notifier   notify.Sink
	background BackgroundRunner
	logger     *slog.Logger
	now        func() time.Time
}

func New(cfg Config, ledger Ledger, locker lock.Locker, notifier notify.Sink, background BackgroundRunner, logger *slog.Logger) *Handler {
	if cfg.LinkRetries <= 0 {
		cfg.LinkRetries = 3
	}
	if cfg.LinkRetryDelay <= 0 {
		cfg.LinkRetryDelay = 100 * time.Millisecond
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		cfg:        cfg,
		ledger:     ledger,
		locker:     locker,
		notifier:   notifier,
		background: background,
		logger:     logger,
		now:        time.Now,
	}
}

// MarkBlockchainTransactionSuccessful settles a pending debit on the given wallet.
func (h *Handler) MarkBlockchainTransactionSuccessful(ctx context.Context, txID string, wallet *models.BlockchainWallet, update Update) (*Result, error) {
	res, err := lock.WithLock(ctx, h.locker, h.logger, lock.SettleBlockchainKey(txID), h.cfg.Lock, func(ctx context.Context) (*Result, error) {
		return h.settle(ctx, txID, wallet, update)
	})
	if errors.Is(err, lock.ErrLockAcquisition) {
		metrics.RecordLockFailure("settle-blockchain")
		return nil, apperr.Wrap(apperr.KindLockAcquisition, msgLockBusy, err)
	}

	return res, err
}

func (h *Handler) settle(ctx context.Context, txID string, wallet *models.BlockchainWallet, update Update) (*Result, error) {
	walletTx, found, err := h.ledger.GetBlockchainTransaction(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("load blockchain transaction: %w", err)
	}
	if !found {
		return nil, apperr.NotFound("Blockchain transaction not found")
	}
	if walletTx.Direction != models.DirectionDebit {
		return nil, apperr.BadRequest("Only debit transactions can be settled")
	}
	if walletTx.Status != models.StatusPending {
		return nil, apperr.BadRequest(fmt.Sprintf("Transaction is %s, only pending transactions can be settled", walletTx.Status))
	}
	if wallet == nil || wallet.ID != walletTx.BlockchainWalletID {
		return nil, apperr.BadRequest("Transaction does not belong to this wallet")
	}
	if strings.TrimSpace(update.TxHash) == "" {
		return nil, apperr.BadRequest("Transaction hash is required")
	}

	balanceAfter := wallet.Balance
	if update.BalanceAfter != nil {
		balanceAfter = *update.BalanceAfter
	}

	description := update.Description
	if description == "" && walletTx.Description.Valid {
		description = walletTx.Description.String
	}

	now := h.now().UTC()
	main := &models.Transaction{
		UserID:            wallet.UserID,
		ExternalReference: sql.NullString{String: update.TxHash, Valid: true},
		Asset:             walletTx.Asset,
		Amount:            -walletTx.Amount,
		BalanceBefore:     walletTx.BalanceBefore,
		BalanceAfter:      balanceAfter,
		Type:              walletTx.Type,
		Category:          models.TransactionCategoryBlockchain,
		Scope:             models.TransactionScopeInternal,
		Status:            models.StatusCompleted,
		Description:       sql.NullString{String: description, Valid: description != ""},
		ProcessedAt:       sql.NullTime{Time: now, Valid: true},
	}

	mainID, err := h.ledger.SettleDebit(ctx, walletTx.ID, main, repository.BlockchainSettlement{
		TxHash:       update.TxHash,
		BalanceAfter: balanceAfter,
		Description:  update.Description,
	})
	if err != nil {
		metrics.RecordSettlement("commit", "error")
		switch {
		case errors.Is(err, repository.ErrStateChanged):
			return nil, apperr.BadRequest("Transaction is no longer pending")
		case errors.Is(err, sql.ErrNoRows):
			return nil, apperr.NotFound("Blockchain transaction not found")
		}
		return nil, fmt.Errorf("settle debit: %w", err)
	}
	metrics.RecordSettlement("commit", "ok")

	// the main transaction is durable from here on
	linked := h.LinkMainTransaction(ctx, walletTx.ID, mainID) == nil

	h.publish(main, walletTx)

	return &Result{
		TransactionID:       mainID,
		WalletTransactionID: walletTx.ID,
		Reference:           main.Reference,
		Linked:              linked,
	}, nil
}

// LinkMainTransaction sets main_transaction_id with bounded retries. A conflicting link is
// not retried. Failures are logged and left to ReconcileUnlinked.
func (h *Handler) LinkMainTransaction(ctx context.Context, walletTxID, mainTransactionID string) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = h.cfg.LinkRetryDelay
	policy.MaxInterval = 10 * h.cfg.LinkRetryDelay

	// phase one already committed, so the link outlives the request
	linkCtx := context.WithoutCancel(ctx)

	_, err := backoff.Retry(linkCtx, func() (struct{}, error) {
		err := h.ledger.LinkMainTransaction(linkCtx, walletTxID, mainTransactionID)
		if errors.Is(err, repository.ErrLinkConflict) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(h.cfg.LinkRetries)))
	if err != nil {
		metrics.RecordSettlement("link", "error")
		h.logger.Error("failed to link settled blockchain transaction",
			slog.String("wallet_transaction_id", walletTxID),
			slog.String("transaction_id", mainTransactionID),
			slog.Any("error", err))
		return err
	}

	metrics.RecordSettlement("link", "ok")
	return nil
}

// ReconcileUnlinked links settled debits whose second phase never ran, and returns how many it linked.
func (h *Handler) ReconcileUnlinked(ctx context.Context, limit int) (int, error) {
	pending, err := h.ledger.ListUnlinkedSettled(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list unlinked settlements: %w", err)
	}

	linked := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return linked, ctx.Err()
		}

		err := h.ledger.LinkMainTransaction(ctx, p.WalletTransactionID, p.TransactionID)
		if err != nil {
			metrics.RecordSettlement("reconcile", "error")
			h.logger.Warn("reconcile link failed",
				slog.String("wallet_transaction_id", p.WalletTransactionID),
				slog.String("transaction_id", p.TransactionID),
				slog.Any("error", err))
			continue
		}

		metrics.RecordSettlement("reconcile", "ok")
		linked++
	}

	if linked > 0 {
		h.logger.Info("reconciled settlement links", slog.Int("linked", linked), slog.Int("candidates", len(pending)))
	}

	return linked, nil
}

func (h *Handler) publish(main *models.Transaction, walletTx *models.BlockchainWalletTransaction) {
	if h.background == nil {
		return
	}

	event := notify.Event{
		Type:          notify.EventSettlementComplete,
		UserID:        main.UserID,
		TransactionID: main.ID,
		Reference:     main.Reference,
		TransferType:  walletTx.Type,
		Amount:        models.FromMinorUnits(walletTx.Amount, walletTx.Asset).StringFixed(models.AssetDecimals(walletTx.Asset)),
		Asset:         walletTx.Asset,
		Status:        models.StatusCompleted,
		OccurredAt:    h.now().UTC(),
	}

	h.background.BackgroundTask("notify:"+event.Type, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return h.notifier.Notify(ctx, event)
	})
}
